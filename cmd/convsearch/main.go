package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"convsearch/internal/config"
	"convsearch/internal/corpus"
	"convsearch/internal/index"
	"convsearch/internal/llm"
	"convsearch/internal/logging"
	"convsearch/internal/service"
	"convsearch/internal/sessionlog"
)

var configPath string // overridable via --config flag

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "convsearch",
		Short:        "Conversational search over a document collection",
		Long:         "convsearch narrows a collection down to the item a reader wants by asking clarifying questions between hybrid lexical/semantic searches.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ./config.yaml or ~/.config/convsearch/config.yaml)")

	root.AddCommand(indexCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(simulateCmd())
	root.AddCommand(reportCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand needs.
type app struct {
	cfg     *config.AppConfig
	cfgPath string
	logger  *zap.Logger
	svc     *service.Service
}

// loadApp reads the configuration, lets the command adjust it and assembles
// the logger and search service. quiet keeps log output off the terminal.
func loadApp(quiet bool, adjust func(*config.AppConfig)) (*app, error) {
	var cfg *config.AppConfig
	var err error
	path := configPath
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if adjust != nil {
		adjust(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logCfg := cfg.Logging
	logCfg.NoConsole = quiet
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	svc, err := service.New(cfg, service.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, cfgPath: path, logger: logger, svc: svc}, nil
}

func (a *app) close() { _ = a.logger.Sync() }

// loadIndex reads the configured corpus and builds or loads its index.
func (a *app) loadIndex(ctx context.Context, force bool) (*index.Index, error) {
	docs, err := corpus.Load(a.cfg.Index.Corpus)
	if err != nil {
		return nil, err
	}
	return a.svc.BuildOrLoad(ctx, docs, force)
}

func (a *app) assistant() (*llm.Assistant, error) {
	gen, err := service.NewGenerator(a.cfg.Generator, a.logger)
	if err != nil {
		return nil, err
	}
	return service.NewAssistant(gen, a.cfg.Generator, a.logger), nil
}

func (a *app) openStore() (*sessionlog.Store, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.Store.Path), 0o755); err != nil {
		return nil, err
	}
	return sessionlog.Open(a.cfg.Store.Path)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
