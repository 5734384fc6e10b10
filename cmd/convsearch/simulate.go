package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"convsearch/internal/actor"
	"convsearch/internal/corpus"
	"convsearch/internal/domain"
	"convsearch/internal/profile"
	"convsearch/internal/service"
	"convsearch/internal/session"
	"convsearch/internal/sessionlog"
)

func simulateCmd() *cobra.Command {
	var (
		sample   int
		seed     int64
		targets  []string
		parallel int
		kind     string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run simulated readers against sampled target documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "profile" && kind != "llm" {
				return fmt.Errorf("unknown actor %q (want profile or llm)", kind)
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := loadApp(false, nil)
			if err != nil {
				return err
			}
			defer a.close()
			idx, err := a.loadIndex(ctx, false)
			if err != nil {
				return err
			}
			gen, err := service.NewGenerator(a.cfg.Generator, a.logger)
			if err != nil {
				return err
			}
			assistant := service.NewAssistant(gen, a.cfg.Generator, a.logger)
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			picked, err := pickTargets(idx.Docs(), targets, sample, seed, a.svc.Get)
			if err != nil {
				return err
			}

			var sum tally
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(1, parallel))
			for _, target := range picked {
				g.Go(func() error {
					var act session.Actor
					opts := []session.Option{session.WithLogger(a.logger)}
					if kind == "llm" {
						act = actor.NewTargetSimulator(target, gen)
					} else {
						attrs := domain.Structured{}
						if target.Structured != nil {
							attrs = *target.Structured
						}
						pa := actor.NewProfileActor(profile.Generate(attrs))
						act = pa
						opts = append(opts, session.WithObserver(pa))
					}
					sess, err := session.New(a.svc.Ranker(), assistant, act, a.cfg.Session.Params(), opts...)
					if err != nil {
						return err
					}
					started := time.Now()
					res, err := sess.Run(gctx)
					if err != nil {
						return err
					}
					rec := sessionlog.Record{Result: res, Target: target.ID, Actor: kind, StartedAt: started, Duration: time.Since(started)}
					if err := store.Save(gctx, rec); err != nil {
						a.logger.Warn("failed to record session", zap.String("session", res.ID), zap.Error(err))
					}

					sum.add(rec)
					fmt.Printf("%-24s %-15s turns=%-3d selection=%s found=%t\n", target.ID, res.Mode, res.Turns, res.Selection, rec.Found())
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			fmt.Printf("\n%s\n", sum.String())
			return nil
		},
	}
	cmd.Flags().IntVar(&sample, "sample", 10, "number of targets to sample from the corpus")
	cmd.Flags().Int64Var(&seed, "seed", 1, "sampling seed")
	cmd.Flags().StringSliceVar(&targets, "target", nil, "explicit target document ids (overrides --sample)")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "sessions to run at once")
	cmd.Flags().StringVar(&kind, "actor", "llm", "simulated reader: profile or llm")
	return cmd
}

// tally aggregates finished simulations. A session counts as found only
// when it ended on its own target.
type tally struct {
	mu       sync.Mutex
	sessions int
	found    int
	turns    int
}

func (t *tally) add(rec sessionlog.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions++
	t.turns += rec.Turns
	if rec.Found() {
		t.found++
	}
}

func (t *tally) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessions == 0 {
		return "no sessions"
	}
	return fmt.Sprintf("%d/%d found, %.2f turns on average", t.found, t.sessions, float64(t.turns)/float64(t.sessions))
}

// pickTargets resolves explicit target ids, or samples n documents when none are given.
func pickTargets(docs []domain.Document, ids []string, n int, seed int64, get func(string) (domain.Document, bool)) ([]domain.Document, error) {
	if len(ids) == 0 {
		return corpus.Sample(docs, n, seed), nil
	}
	out := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		d, ok := get(id)
		if !ok {
			return nil, fmt.Errorf("unknown target %q", id)
		}
		out = append(out, d)
	}
	return out, nil
}
