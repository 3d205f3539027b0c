package ports

import (
	"context"
	"lighting-bridge/internal/domain/model"

	"github.com/amimof/huego"
)

// LightingPort is the upward-facing contract of the bridge.
type LightingPort interface {
	Init(ctx context.Context) error
	IsTurnedOn() bool
	GetLevel() model.Level
	SetLevel(value model.Level)
	InitiateAction(action model.Action) bool
	SetCallbacks(onInitiated, onCompleted model.ActionCallback)
	State() *huego.State
}

// AttributeStore receives external light changes as device-abstraction
// attribute writes.
type AttributeStore interface {
	SetOnOff(on bool) error
	SetCurrentLevel(level model.Level) error
}
