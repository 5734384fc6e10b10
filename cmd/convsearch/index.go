package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"convsearch/internal/config"
)

func indexCmd() *cobra.Command {
	var (
		corpusPath  string
		force       bool
		lexicalOnly bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the search index, or reuse it if the corpus is unchanged",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := loadApp(false, func(cfg *config.AppConfig) {
				if corpusPath != "" {
					cfg.Index.Corpus = corpusPath
				}
				if cmd.Flags().Changed("lexical-only") {
					cfg.Index.LexicalOnly = lexicalOnly
				}
			})
			if err != nil {
				return err
			}
			defer a.close()

			idx, err := a.loadIndex(ctx, force)
			if err != nil {
				return err
			}
			// later commands must see the same setting or they rebuild
			if cmd.Flags().Changed("lexical-only") {
				if err := config.SetLexicalOnly(a.cfgPath, lexicalOnly); err != nil {
					return fmt.Errorf("failed to record lexical-only setting: %w", err)
				}
				fmt.Printf("index.lexical_only=%t saved to %s\n", lexicalOnly, a.cfgPath)
			}
			m := idx.Manifest()
			fmt.Printf("index ready in %s\n", a.cfg.Index.Dir)
			fmt.Printf("  documents:   %d\n", m.DocCount)
			fmt.Printf("  fingerprint: %.16s\n", m.Fingerprint)
			if m.LexicalOnly {
				fmt.Printf("  mode:        lexical-only\n")
			} else {
				fmt.Printf("  mode:        hybrid (%s, %d dims)\n", m.Embedder, m.Dimension)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "JSON Lines corpus file (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "rebuild even if the stored index matches")
	cmd.Flags().BoolVar(&lexicalOnly, "lexical-only", false, "skip embeddings and build only the BM25 index; saved to the config file (--lexical-only=false restores hybrid)")
	return cmd
}
