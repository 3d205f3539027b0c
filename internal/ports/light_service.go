package ports

import (
	"context"
	"lighting-bridge/internal/domain/model"
)

// LightChangedHandler receives daemon notifications on the bus-owning context.
type LightChangedHandler func(model.ExternalLightState)

type Subscription interface {
	Close() error
}

// LightServicePort is the remote light daemon. Every method blocks until the
// daemon answers or the call times out; failures wrap model.ErrInternal.
type LightServicePort interface {
	Subscribe(ctx context.Context, handler LightChangedHandler) (Subscription, error)
	FetchState(ctx context.Context) (model.ExternalLightState, error)
	PushState(ctx context.Context, on bool, level model.Level) error
}
