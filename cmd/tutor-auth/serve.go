package main

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/brizzai/tutor-auth/internal/app"
	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/brizzai/tutor-auth/internal/server"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the browser sign-in flow on a local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		var srv *server.Server
		fxApp := fx.New(
			app.Serve(cfg),
			fx.Populate(&srv),
		)
		if err := fxApp.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := fxApp.Stop(context.Background()); err != nil {
				logger.Warn("Failed to stop application", zap.Error(err))
			}
		}()

		pterm.Info.Printfln("Open %s%s to sign in", cfg.Server.ServerOrigin(), cfg.Callback.LoginPath)
		return srv.Start(ctx)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
