package main

import (
	"github.com/spf13/cobra"

	"shudh/internal/bootstrap"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Check dependencies, create the images directory and the operations table, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			dbCfg, err := a.databaseConfig()
			if err != nil {
				return err
			}
			return bootstrap.NewRunner(a.log, false).Add(
				bootstrap.DependenciesStep(a.log, bootstrap.RequiredModules),
				bootstrap.ImagesDirStep(a.cfg.Storage.ImagesDir),
				bootstrap.SchemaStep(dbCfg, a.log),
			).Run(ctx)
		},
	}
}
