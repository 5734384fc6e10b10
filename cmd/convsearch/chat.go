package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"convsearch/internal/session"
	"convsearch/internal/sessionlog"
	"convsearch/internal/tui"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive search conversation in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			// the terminal belongs to the UI; logs go to the file sink only
			a, err := loadApp(true, nil)
			if err != nil {
				return err
			}
			defer a.close()
			if _, err := a.loadIndex(ctx, false); err != nil {
				return err
			}
			assistant, err := a.assistant()
			if err != nil {
				return err
			}

			bridge := tui.NewBridge(a.svc.Get).WithSummary(assistant.Summarize, a.cfg.Session.SummaryHits)
			sess, err := session.New(a.svc.Ranker(), assistant, bridge, a.cfg.Session.Params(),
				session.WithObserver(bridge),
				session.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			started := time.Now()
			p := tea.NewProgram(tui.New(ctx, sess.Run), tea.WithAltScreen())
			bridge.Attach(p)
			final, err := p.Run()
			if err != nil {
				return err
			}

			m, ok := final.(tui.Model)
			if !ok {
				return nil
			}
			res, ok := m.Result()
			if !ok {
				return nil
			}
			store, err := a.openStore()
			if err != nil {
				a.logger.Warn("session log unavailable", zap.Error(err))
			} else {
				defer store.Close()
				rec := sessionlog.Record{Result: res, Actor: "human", StartedAt: started, Duration: time.Since(started)}
				if err := store.Save(ctx, rec); err != nil {
					a.logger.Warn("failed to record session", zap.Error(err))
				}
			}
			if res.Mode == session.ModeSuccess {
				fmt.Printf("Selected %s after %d turns.\n", res.Selection, res.Turns)
			} else {
				fmt.Printf("No selection after %d turns.\n", res.Turns)
			}
			return nil
		},
	}
}
