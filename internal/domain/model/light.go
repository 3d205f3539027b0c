package model

import "errors"

// ErrInternal is the only failure kind surfaced by the bridge. Adapters wrap
// the underlying cause with it.
var ErrInternal = errors.New("internal error")

type PowerState int

const (
	PowerOff PowerState = iota
	PowerOn
)

func (p PowerState) String() string {
	if p == PowerOn {
		return "on"
	}
	return "off"
}

type Action int

const (
	ActionTurnOn Action = iota
	ActionTurnOff
)

func (a Action) String() string {
	switch a {
	case ActionTurnOn:
		return "turn_on"
	case ActionTurnOff:
		return "turn_off"
	default:
		return "unknown"
	}
}

// Level is the device-abstraction brightness. 0 means not yet initialized.
type Level = uint8

// ExternalLightState is the daemon's view of the light.
type ExternalLightState struct {
	Power          bool
	Brightness     uint32
	AutoBrightness bool
}

// ActionCallback is invoked around committed actions.
type ActionCallback func(Action)
