// Package sessionlog records finished sessions in SQLite for reporting.
package sessionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"convsearch/internal/domain"
	"convsearch/internal/session"
)

// Store is a SQLite-backed session log. It is safe for concurrent use.
type Store struct {
	db *sqlx.DB
}

// Record is one finished session with the context it ran in.
type Record struct {
	session.Result
	Target    string
	Actor     string
	StartedAt time.Time
	Duration  time.Duration
}

// Found reports whether the session ended on its target. A session run
// without a target, such as a human chat, is found when anything was selected.
func (r Record) Found() bool {
	return r.Mode == session.ModeSuccess && (r.Target == "" || r.Selection == r.Target)
}

// Row is a stored session without its turns.
type Row struct {
	ID         string `db:"id"`
	Target     string `db:"target"`
	Actor      string `db:"actor"`
	Mode       string `db:"mode"`
	Selection  string `db:"selection"`
	Turns      int    `db:"turns"`
	Query      string `db:"query"`
	Reason     string `db:"reason"`
	Disliked   string `db:"disliked"`
	StartedMs  int64  `db:"started_ms"`
	DurationMs int64  `db:"duration_ms"`
}

// Stats aggregates all stored sessions. Successes count only sessions that
// found their target, see Record.Found.
type Stats struct {
	Sessions        int     `db:"sessions"`
	Successes       int     `db:"successes"`
	AvgTurns        float64 `db:"avg_turns"`
	AvgSuccessTurns float64 `db:"avg_success_turns"`
}

// SuccessRate is the share of sessions that ended with a selection.
func (s Stats) SuccessRate() float64 {
	if s.Sessions == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Sessions)
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	// one writer at a time; parallel simulations share the store
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			target TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL,
			selection TEXT NOT NULL DEFAULT '',
			turns INTEGER NOT NULL,
			query TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			disliked TEXT NOT NULL DEFAULT '[]',
			started_ms INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL REFERENCES sessions(id),
			seq INTEGER NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_ms)`,
	}
	for _, q := range tables {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init session log schema: %w", err)
		}
	}
	return nil
}

// Save stores rec and its question/answer history in one transaction.
func (s *Store) Save(ctx context.Context, rec Record) error {
	disliked, err := json.Marshal(rec.Disliked)
	if err != nil {
		return err
	}
	if rec.Disliked == nil {
		disliked = []byte("[]")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := Row{
		ID:         rec.ID,
		Target:     rec.Target,
		Actor:      rec.Actor,
		Mode:       string(rec.Mode),
		Selection:  rec.Selection,
		Turns:      rec.Turns,
		Query:      rec.Query,
		Reason:     rec.Reason,
		Disliked:   string(disliked),
		StartedMs:  rec.StartedAt.UnixMilli(),
		DurationMs: rec.Duration.Milliseconds(),
	}
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO sessions
		(id, target, actor, mode, selection, turns, query, reason, disliked, started_ms, duration_ms)
		VALUES (:id, :target, :actor, :mode, :selection, :turns, :query, :reason, :disliked, :started_ms, :duration_ms)`, row); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	for i, ex := range rec.History {
		if _, err := tx.ExecContext(ctx, `INSERT INTO turns (session_id, seq, question, answer) VALUES (?, ?, ?, ?)`,
			rec.ID, i+1, ex.Question, ex.Answer); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	return tx.Commit()
}

// Stats aggregates every stored session.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	const found = `mode = ? AND (target = '' OR selection = target)`
	err := s.db.GetContext(ctx, &st, `SELECT
		COUNT(*) AS sessions,
		COALESCE(SUM(CASE WHEN `+found+` THEN 1 ELSE 0 END), 0) AS successes,
		COALESCE(AVG(turns), 0.0) AS avg_turns,
		COALESCE(AVG(CASE WHEN `+found+` THEN turns END), 0.0) AS avg_success_turns
		FROM sessions`, string(session.ModeSuccess), string(session.ModeSuccess))
	if err != nil {
		return Stats{}, fmt.Errorf("session stats: %w", err)
	}
	return st, nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Row, error) {
	var rows []Row
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM sessions ORDER BY started_ms DESC, id LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	return rows, nil
}

// History returns the question/answer pairs of one session in order.
func (s *Store) History(ctx context.Context, id string) ([]domain.Exchange, error) {
	var out []domain.Exchange
	err := s.db.SelectContext(ctx, &out, `SELECT question, answer FROM turns WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	return out, nil
}
