package globals

import (
	"context"

	"buffcart/internal/credentials"
	"buffcart/internal/kvstore"
	"buffcart/services/buffcart"
)

type ctxKey struct{}

// Value is the application wired up by the root command for its subcommands.
type Value struct {
	Config  Config
	Service *buffcart.Service
	Store   kvstore.Store
	// Bridge is the in-memory live store, nil when cookies are read from an export file.
	Bridge *credentials.BridgeStore
	Close  func() error
}

func Set(ctx context.Context, value *Value) context.Context {
	return context.WithValue(ctx, ctxKey{}, value)
}

func Get(ctx context.Context) *Value {
	return ctx.Value(ctxKey{}).(*Value)
}
