package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"convsearch/internal/service"
	"convsearch/internal/summarizer"
)

func searchCmd() *cobra.Command {
	var (
		k         int
		mode      string
		weight    float64
		summarize bool
	)
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Run a single ranked search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := loadApp(false, nil)
			if err != nil {
				return err
			}
			defer a.close()
			if _, err := a.loadIndex(ctx, false); err != nil {
				return err
			}
			if !cmd.Flags().Changed("weight") {
				weight = a.cfg.Session.HybridWeight
			}

			query := strings.Join(args, " ")
			hits, err := a.svc.Search(ctx, service.Mode(mode), query, k, weight)
			if err != nil {
				return err
			}
			snip := summarizer.NewFrequency()
			for i, h := range hits {
				fmt.Printf("%2d. %-24s %.4f\n", i+1, h.ID, h.Score)
				fmt.Printf("    %s\n", snip.Snippet(h.Text, a.cfg.Generator.SnippetRunes))
			}
			if !summarize || len(hits) == 0 {
				return nil
			}
			assistant, err := a.assistant()
			if err != nil {
				return err
			}
			top := hits[:min(len(hits), a.cfg.Session.SummaryHits)]
			summary, err := assistant.Summarize(ctx, top)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s\n", summary)
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", 10, "number of results")
	cmd.Flags().StringVar(&mode, "mode", string(service.ModeHybrid), "lexical, semantic or hybrid")
	cmd.Flags().Float64Var(&weight, "weight", 0.5, "lexical weight for hybrid mode (default from config)")
	cmd.Flags().BoolVar(&summarize, "summarize", false, "summarise the top results with the text generator")
	return cmd
}
