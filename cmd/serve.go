package main

import (
	"context"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shudh/internal/bootstrap"
	"shudh/internal/server"
	"shudh/pkg/database"
	"shudh/pkg/redis"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Bootstrap and run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()

	dbCfg, err := a.databaseConfig()
	if err != nil {
		return err
	}

	a.log.Info("starting SHUDH backend",
		zap.String("addr", a.cfg.Addr()),
		zap.String("images_dir", a.cfg.Storage.ImagesDir),
		zap.Bool("best_effort", a.cfg.Bootstrap.BestEffort))

	runner := bootstrap.Sequence(a.log, a.cfg.Bootstrap.BestEffort, a.cfg.Storage.ImagesDir, dbCfg,
		func(ctx context.Context) error {
			return a.runServer(ctx, dbCfg)
		})
	return runner.Run(ctx)
}

func (a *app) runServer(ctx context.Context, dbCfg database.Config) error {
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			a.log.Warn("failed to close database", zap.Error(err))
		}
	}()

	// an in-memory sqlite database does not outlive the schema step's connection
	if db.Dialector.Name() == "sqlite" {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	var redisClient *goredis.Client
	if a.cfg.Redis.URL != "" {
		redisClient, err = redis.Connect(ctx, a.cfg.Redis.URL, a.log)
		if err != nil {
			a.log.Warn("redis unavailable, running without cache", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	srv := server.New(a.cfg, server.Deps{DB: db, Redis: redisClient, Logger: a.log})
	if err := srv.Run(ctx); err != nil {
		return errors.WithMessage(err, "http server")
	}
	return nil
}
