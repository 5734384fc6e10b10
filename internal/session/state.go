package session

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"convsearch/internal/domain"
)

// Mode is the phase of a conversation.
type Mode string

const (
	ModeInit      Mode = "INIT"
	ModeAsk       Mode = "ASK"
	ModeRecommend Mode = "RECOMMEND"
	ModeSuccess   Mode = "DONE_SUCCESS"
	ModeExhausted Mode = "DONE_EXHAUSTED"
)

// Done reports whether m is terminal.
func (m Mode) Done() bool { return m == ModeSuccess || m == ModeExhausted }

// Params are fixed for the lifetime of a session.
type Params struct {
	MaxTurns     int
	TopK         int
	Threshold    float64
	NRec         int
	HybridWeight float64
	// Retries is the number of extra attempts for a failing external call.
	Retries      int
	RetryInitial time.Duration
	// Zero disables the per-call deadlines.
	ActorTimeout      time.Duration
	GenerationTimeout time.Duration
	SearchTimeout     time.Duration
}

// DefaultParams returns the default session parameters.
func DefaultParams() Params {
	return Params{
		MaxTurns:          10,
		TopK:              100,
		Threshold:         0.7,
		NRec:              10,
		HybridWeight:      0.5,
		Retries:           3,
		RetryInitial:      500 * time.Millisecond,
		GenerationTimeout: 60 * time.Second,
		SearchTimeout:     30 * time.Second,
	}
}

// Validate rejects parameters a session cannot run with.
func (p Params) Validate() error {
	switch {
	case p.MaxTurns < 1:
		return fmt.Errorf("max turns must be positive, got %d", p.MaxTurns)
	case p.TopK < 1:
		return fmt.Errorf("top k must be positive, got %d", p.TopK)
	case p.Threshold < 0 || p.Threshold > 1:
		return fmt.Errorf("threshold %v outside [0,1]", p.Threshold)
	case p.NRec < 1:
		return fmt.Errorf("n_rec must be positive, got %d", p.NRec)
	case p.HybridWeight < 0 || p.HybridWeight > 1:
		return fmt.Errorf("hybrid weight %v outside [0,1]", p.HybridWeight)
	case p.Retries < 0:
		return fmt.Errorf("retries must not be negative, got %d", p.Retries)
	}
	return nil
}

// State is a snapshot of a conversation. History only grows and Disliked
// never shrinks.
type State struct {
	Mode       Mode
	Turn       int
	Query      string
	History    []domain.Exchange
	Disliked   map[string]struct{}
	Candidates []string
	Selection  string
	Reason     string
}

func (s State) clone() State {
	c := s
	c.History = slices.Clone(s.History)
	c.Candidates = slices.Clone(s.Candidates)
	c.Disliked = make(map[string]struct{}, len(s.Disliked))
	for id := range s.Disliked {
		c.Disliked[id] = struct{}{}
	}
	return c
}

// DislikedIDs returns the disliked set sorted.
func (s State) DislikedIDs() []string {
	out := make([]string, 0, len(s.Disliked))
	for id := range s.Disliked {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Result summarises a finished session.
type Result struct {
	ID        string            `json:"id"`
	Mode      Mode              `json:"mode"`
	Selection string            `json:"selection,omitempty"`
	Turns     int               `json:"turns"`
	Query     string            `json:"query"`
	History   []domain.Exchange `json:"history"`
	Disliked  []string          `json:"disliked"`
	Reason    string            `json:"reason,omitempty"`
}
