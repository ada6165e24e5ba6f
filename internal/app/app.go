// Package app assembles the dependency graphs of the two runtimes.
package app

import (
	"github.com/brizzai/tutor-auth/internal/auth"
	"github.com/brizzai/tutor-auth/internal/auth/callback"
	"github.com/brizzai/tutor-auth/internal/auth/flow"
	"github.com/brizzai/tutor-auth/internal/auth/providers"
	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/logger"
	"github.com/brizzai/tutor-auth/internal/requester"
	"github.com/brizzai/tutor-auth/internal/server"
	"github.com/brizzai/tutor-auth/internal/storage"
	"github.com/brizzai/tutor-auth/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"
)

func base(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: logger.GetLogger().Named("fx")}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			fx.Annotate(
				telemetry.NewLogSink,
				fx.As(new(telemetry.Sink)),
			),
		),
	)
}

// Native is the graph of the command-line runtime: durable storage from
// config, one controller and the strategy chosen from caps.
func Native(cfg *config.Config, caps flow.Capabilities, notifier flow.Notifier) fx.Option {
	if notifier == nil {
		notifier = flow.NopNotifier{}
	}
	return fx.Options(
		base(cfg),
		storage.Module,
		requester.Module,
		flow.Module,
		fx.Supply(caps),
		fx.Provide(func() flow.Notifier { return notifier }),
	)
}

// Serve is the graph of the browser runtime. Storage lives per browser
// session, so no durable store is provided.
func Serve(cfg *config.Config) fx.Option {
	return fx.Options(
		base(cfg),
		fx.Provide(
			providers.NewFromConfig,
			newAuthService,
		),
		server.Module,
	)
}

func newAuthService(cfg *config.Config, provider providers.Provider, sink telemetry.Sink) *auth.Service {
	return auth.NewService(cfg, provider, sink, callback.RealClock{})
}
