package flow

import (
	"github.com/brizzai/tutor-auth/internal/auth/providers"
	"github.com/brizzai/tutor-auth/internal/auth/session"
	"go.uber.org/fx"
)

// Module provides the login controller. The host supplies Capabilities.
var Module = fx.Module("flow",
	fx.Provide(
		providers.NewFromConfig,
		SelectStrategy,
		fx.Annotate(
			session.NewStore,
			fx.As(new(session.Publisher)),
			fx.As(new(session.Reader)),
		),
		NewController,
	),
)
