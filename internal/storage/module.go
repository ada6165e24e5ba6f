package storage

import (
	"context"

	"github.com/brizzai/tutor-auth/internal/config"
	"go.uber.org/fx"
)

type storeParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
}

func provideStore(p storeParams) (Store, error) {
	s, err := New(p.Config.Storage)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error { return Close(s) },
	})
	return s, nil
}

// Module provides the durable store and the token store
var Module = fx.Module("storage",
	fx.Provide(
		provideStore,
		NewTokenStore,
	),
)
