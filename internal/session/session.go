// Package session runs a conversational search: it asks clarifying
// questions until the plausible candidates are few enough to recommend, and
// stops on a selection or when the turn budget runs out.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"convsearch/internal/domain"
	"convsearch/internal/llm"
	"convsearch/internal/ranker"
)

// Searcher ranks the whole index for a query.
type Searcher interface {
	HybridSearch(ctx context.Context, query string, k int, w float64) ([]domain.RankedHit, error)
	Size() int
}

// Assistant is the text-generation side of the conversation.
type Assistant interface {
	RewriteQuery(ctx context.Context, input string) (string, error)
	Reformulate(ctx context.Context, history []domain.Exchange) (string, error)
	Clarify(ctx context.Context, hits []domain.RankedHit, history []domain.Exchange) (llm.Clarification, error)
}

// Actor is the reader being helped, human or simulated.
type Actor interface {
	InitialQuery(ctx context.Context) (string, error)
	Answer(ctx context.Context, question string, options []string) (string, error)
	Choose(ctx context.Context, ids []string) (string, error)
}

// Observer is notified as each turn completes.
type Observer interface {
	Asked(turn int, c llm.Clarification, answer, query string)
	Filtered(turn int, candidates []string, next Mode)
	Recommended(turn int, presented []string, selection string)
}

// Option configures a Session.
type Option func(*Session)

// WithObserver registers o for turn notifications.
func WithObserver(o Observer) Option { return func(s *Session) { s.observer = o } }

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option { return func(s *Session) { s.logger = l } }

// WithID overrides the generated session id.
func WithID(id string) Option { return func(s *Session) { s.id = id } }

// Session is one conversation. It is not safe for concurrent use; run
// separate sessions for separate readers.
type Session struct {
	id        string
	params    Params
	searcher  Searcher
	assistant Assistant
	actor     Actor
	observer  Observer
	logger    *zap.Logger
	state     State
}

// New creates a session in INIT mode.
func New(searcher Searcher, assistant Assistant, actor Actor, params Params, opts ...Option) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if searcher == nil || assistant == nil || actor == nil {
		return nil, errors.New("session: searcher, assistant and actor are required")
	}
	s := &Session{
		id:        uuid.NewString(),
		params:    params,
		searcher:  searcher,
		assistant: assistant,
		actor:     actor,
		logger:    zap.NewNop(),
		state:     State{Mode: ModeInit, Disliked: map[string]struct{}{}},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id))
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns a copy of the committed state.
func (s *Session) State() State { return s.state.clone() }

// Result summarises the committed state.
func (s *Session) Result() Result {
	return Result{
		ID:        s.id,
		Mode:      s.state.Mode,
		Selection: s.state.Selection,
		Turns:     s.state.Turn,
		Query:     s.state.Query,
		History:   append([]domain.Exchange(nil), s.state.History...),
		Disliked:  s.state.DislikedIDs(),
		Reason:    s.state.Reason,
	}
}

// Run steps the session until it reaches a terminal mode. It returns an
// error only if ctx is cancelled; failures of external calls end the
// session in DONE_EXHAUSTED.
func (s *Session) Run(ctx context.Context) (Result, error) {
	for !s.state.Mode.Done() {
		if err := s.Step(ctx); err != nil {
			return s.Result(), err
		}
	}
	s.logger.Info("session finished",
		zap.String("mode", string(s.state.Mode)),
		zap.Int("turns", s.state.Turn),
		zap.String("selection", s.state.Selection),
		zap.String("reason", s.state.Reason),
	)
	return s.Result(), nil
}

// Step runs INIT or one ASK/RECOMMEND round. The new state is committed
// only when the round completes, so a cancelled step leaves the previous
// state intact.
func (s *Session) Step(ctx context.Context) error {
	if s.state.Mode.Done() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.state.Mode == ModeInit {
		next, err := s.init(ctx)
		return s.commit(ctx, next, err)
	}
	if s.state.Turn >= s.params.MaxTurns {
		next := s.state.clone()
		next.Mode = ModeExhausted
		next.Reason = "turn budget exhausted"
		s.state = next
		return nil
	}
	next := s.state.clone()
	next.Turn++
	var err error
	switch s.state.Mode {
	case ModeAsk:
		next, err = s.ask(ctx, next)
	case ModeRecommend:
		next, err = s.recommend(ctx, next)
	default:
		return fmt.Errorf("session: unexpected mode %q", s.state.Mode)
	}
	return s.commit(ctx, next, err)
}

// commit publishes next unless the step failed. Cancellation of ctx is
// returned to the caller with the state untouched; any other failure ends
// the session.
func (s *Session) commit(ctx context.Context, next State, err error) error {
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("external call failed, ending session", zap.Error(err))
		ended := s.state.clone()
		ended.Mode = ModeExhausted
		ended.Reason = err.Error()
		s.state = ended
		return nil
	}
	s.state = next
	return nil
}

func (s *Session) init(ctx context.Context) (State, error) {
	next := s.state.clone()
	raw, err := retry(ctx, s, "initial query", s.params.ActorTimeout, domain.ErrActorTimeout,
		func(ctx context.Context) (string, error) { return s.actor.InitialQuery(ctx) })
	if err != nil {
		return next, err
	}
	q, err := retry(ctx, s, "rewrite query", s.params.GenerationTimeout, domain.ErrGenerationTimeout,
		func(ctx context.Context) (string, error) { return s.assistant.RewriteQuery(ctx, raw) })
	if err != nil {
		return next, err
	}
	next.Query = q
	next.Mode = ModeAsk
	s.logger.Debug("session started", zap.String("initial", raw), zap.String("query", q))
	return next, nil
}

func (s *Session) ask(ctx context.Context, next State) (State, error) {
	hits, err := s.search(ctx, next.Query, s.params.TopK)
	if err != nil {
		return next, err
	}
	c, err := retry(ctx, s, "clarify", s.params.GenerationTimeout, domain.ErrGenerationTimeout,
		func(ctx context.Context) (llm.Clarification, error) { return s.assistant.Clarify(ctx, hits, next.History) })
	if err != nil {
		return next, err
	}
	answer, err := retry(ctx, s, "answer", s.params.ActorTimeout, domain.ErrActorTimeout,
		func(ctx context.Context) (string, error) { return s.actor.Answer(ctx, c.Question, c.Options) })
	if err != nil {
		return next, err
	}
	next.History = append(next.History, domain.Exchange{Question: c.Question, Answer: answer})

	query, err := retry(ctx, s, "reformulate", s.params.GenerationTimeout, domain.ErrGenerationTimeout,
		func(ctx context.Context) (string, error) { return s.assistant.Reformulate(ctx, next.History) })
	if err != nil {
		return next, err
	}
	next.Query = query

	all, err := s.search(ctx, query, s.searcher.Size())
	if err != nil {
		return next, err
	}
	scores := make([]float64, len(all))
	for i, h := range all {
		scores[i] = h.Score
	}
	var candidates []string
	for i, norm := range ranker.Normalize(scores) {
		if _, disliked := next.Disliked[all[i].ID]; norm > s.params.Threshold && !disliked {
			candidates = append(candidates, all[i].ID)
		}
	}
	if len(candidates) > s.params.NRec {
		next.Candidates = nil
		next.Mode = ModeAsk
	} else {
		next.Candidates = candidates
		next.Mode = ModeRecommend
	}

	s.logger.Debug("asked",
		zap.Int("turn", next.Turn),
		zap.String("question", c.Question),
		zap.String("answer", answer),
		zap.String("query", query),
		zap.Int("candidates", len(candidates)),
	)
	if s.observer != nil {
		s.observer.Asked(next.Turn, c, answer, query)
		s.observer.Filtered(next.Turn, candidates, next.Mode)
	}
	return next, nil
}

func (s *Session) recommend(ctx context.Context, next State) (State, error) {
	presented := make([]string, 0, len(next.Candidates))
	for _, id := range next.Candidates {
		if _, disliked := next.Disliked[id]; !disliked {
			presented = append(presented, id)
		}
	}
	selection, err := retry(ctx, s, "choose", s.params.ActorTimeout, domain.ErrActorTimeout,
		func(ctx context.Context) (string, error) { return s.actor.Choose(ctx, presented) })
	if err != nil {
		return next, err
	}

	accepted := false
	for _, id := range presented {
		if id == selection {
			accepted = true
			break
		}
	}
	if accepted {
		next.Mode = ModeSuccess
		next.Selection = selection
	} else {
		for _, id := range presented {
			next.Disliked[id] = struct{}{}
		}
		next.Candidates = nil
		next.Mode = ModeAsk
	}

	s.logger.Debug("recommended",
		zap.Int("turn", next.Turn),
		zap.Strings("presented", presented),
		zap.String("selection", selection),
	)
	if s.observer != nil {
		s.observer.Recommended(next.Turn, presented, selection)
	}
	return next, nil
}

func (s *Session) search(ctx context.Context, query string, k int) ([]domain.RankedHit, error) {
	return retry(ctx, s, "search", s.params.SearchTimeout, domain.ErrServiceError,
		func(ctx context.Context) ([]domain.RankedHit, error) {
			return s.searcher.HybridSearch(ctx, query, k, s.params.HybridWeight)
		})
}
