package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func reportCmd() *cobra.Command {
	var recent int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise recorded sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := loadApp(false, nil)
			if err != nil {
				return err
			}
			defer a.close()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("sessions:             %d\n", stats.Sessions)
			fmt.Printf("successes:            %d (%.1f%%)\n", stats.Successes, 100*stats.SuccessRate())
			fmt.Printf("average turns:        %.2f\n", stats.AvgTurns)
			fmt.Printf("average turns (hits): %.2f\n", stats.AvgSuccessTurns)

			if recent <= 0 {
				return nil
			}
			rows, err := store.Recent(ctx, recent)
			if err != nil {
				return err
			}
			fmt.Println()
			for _, r := range rows {
				started := time.UnixMilli(r.StartedMs).Format(time.DateTime)
				fmt.Printf("%s  %-8s %-24s %-15s turns=%-3d %s\n", started, r.Actor, r.Target, r.Mode, r.Turns, r.Selection)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 10, "also list the most recent sessions")
	return cmd
}
