package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shudh/internal/config"
	"shudh/internal/logging"
	"shudh/pkg/database"
)

// app holds what every subcommand needs once config and logging are up.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	cleanup    func()
	bestEffort bool
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "shudh",
		Short: "SHUDH operations backend",
		Long: `Backend that records cleaning-robot operations.

Without a subcommand it bootstraps the service (dependency check, images
directory, schema) and then serves the HTTP API until interrupted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVar(&a.bestEffort, "best-effort", false,
		"continue past failed bootstrap steps (also BOOTSTRAP_BEST_EFFORT)")

	root.AddCommand(newServeCmd(a), newMigrateCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return errors.WithMessage(err, "failed to load configuration")
	}
	if a.bestEffort {
		cfg.Bootstrap.BestEffort = true
	}

	log, cleanup, err := logging.New(cfg)
	if err != nil {
		return errors.WithMessage(err, "failed to initialise logging")
	}
	zap.ReplaceGlobals(log)

	a.cfg = cfg
	a.log = log
	a.cleanup = cleanup
	return nil
}

func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

func (a *app) databaseConfig() (database.Config, error) {
	gormLog, err := logging.GormLogger(a.log, a.cfg.DB.LogLevel)
	if err != nil {
		return database.Config{}, err
	}
	return database.Config{
		URL:          a.cfg.DB.URL,
		SSLMode:      a.cfg.DB.SSLMode,
		MaxOpenConns: a.cfg.DB.MaxOpenConns,
		MaxIdleConns: a.cfg.DB.MaxIdleConns,
		Logger:       gormLog,
	}, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
