package tui

import (
	"context"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"convsearch/internal/domain"
	"convsearch/internal/llm"
	"convsearch/internal/session"
)

// Lookup resolves a document id for display.
type Lookup func(id string) (domain.Document, bool)

// SummarizeFunc condenses the documents about to be recommended.
type SummarizeFunc func(ctx context.Context, hits []domain.RankedHit) (string, error)

// queryRequest asks the reader what they are looking for.
type queryRequest struct{ reply chan string }

// questionRequest shows a clarifying question and waits for the answer.
type questionRequest struct {
	question string
	options  []string
	reply    chan string
}

// choiceRequest shows recommendations and waits for a pick or "none".
type choiceRequest struct {
	items   []domain.Document
	summary string
	reply   chan string
}

type askedMsg struct {
	turn   int
	answer string
	query  string
}

type filteredMsg struct {
	turn       int
	candidates int
	next       session.Mode
}

type recommendedMsg struct {
	turn      int
	selection string
}

// Bridge lets a session running in its own goroutine talk to the terminal
// UI. It is the session's Actor and Observer: actor calls become request
// messages carrying a reply channel and block until the model answers or
// ctx ends.
type Bridge struct {
	lookup       Lookup
	summarize    SummarizeFunc
	summaryLimit int

	mu   sync.RWMutex
	send func(tea.Msg)
}

// NewBridge creates a bridge that resolves ids with lookup.
func NewBridge(lookup Lookup) *Bridge {
	return &Bridge{lookup: lookup, send: func(tea.Msg) {}}
}

// WithSummary makes Choose show a summary of at most limit of the presented
// documents. A failed summary is left out.
func (b *Bridge) WithSummary(fn SummarizeFunc, limit int) *Bridge {
	b.summarize, b.summaryLimit = fn, limit
	return b
}

// Attach routes messages to p. It must be called before p.Run.
func (b *Bridge) Attach(p *tea.Program) { b.setSend(p.Send) }

func (b *Bridge) setSend(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

func (b *Bridge) emit(msg tea.Msg) {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	send(msg)
}

func (b *Bridge) await(ctx context.Context, msg tea.Msg, reply chan string) (string, error) {
	b.emit(msg)
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// InitialQuery implements session.Actor.
func (b *Bridge) InitialQuery(ctx context.Context) (string, error) {
	reply := make(chan string, 1)
	return b.await(ctx, queryRequest{reply: reply}, reply)
}

// Answer implements session.Actor.
func (b *Bridge) Answer(ctx context.Context, question string, options []string) (string, error) {
	reply := make(chan string, 1)
	return b.await(ctx, questionRequest{question: question, options: options, reply: reply}, reply)
}

// Choose implements session.Actor.
func (b *Bridge) Choose(ctx context.Context, ids []string) (string, error) {
	items := make([]domain.Document, len(ids))
	for i, id := range ids {
		if d, ok := b.lookup(id); ok {
			items[i] = d
		} else {
			items[i] = domain.Document{ID: id}
		}
	}
	reply := make(chan string, 1)
	return b.await(ctx, choiceRequest{items: items, summary: b.summary(ctx, items), reply: reply}, reply)
}

func (b *Bridge) summary(ctx context.Context, items []domain.Document) string {
	if b.summarize == nil || b.summaryLimit < 1 {
		return ""
	}
	hits := make([]domain.RankedHit, 0, min(len(items), b.summaryLimit))
	for _, d := range items {
		if len(hits) == b.summaryLimit {
			break
		}
		if d.Text != "" {
			hits = append(hits, domain.RankedHit{ID: d.ID, Text: d.Text})
		}
	}
	if len(hits) == 0 {
		return ""
	}
	s, err := b.summarize(ctx, hits)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Asked implements session.Observer.
func (b *Bridge) Asked(turn int, _ llm.Clarification, answer, query string) {
	b.emit(askedMsg{turn: turn, answer: answer, query: query})
}

// Filtered implements session.Observer.
func (b *Bridge) Filtered(turn int, candidates []string, next session.Mode) {
	b.emit(filteredMsg{turn: turn, candidates: len(candidates), next: next})
}

// Recommended implements session.Observer.
func (b *Bridge) Recommended(turn int, _ []string, selection string) {
	b.emit(recommendedMsg{turn: turn, selection: selection})
}
