package service

import (
	"context"
	"sync"

	"lighting-bridge/internal/domain/model"
	"lighting-bridge/internal/ports"

	"github.com/amimof/huego"
	"go.uber.org/zap"
)

// LightingManager holds the authoritative power state and level of the light
// and propagates every committed change to the daemon.
//
// Local state is ground truth: a failed push is logged and the local change
// stays committed.
type LightingManager struct {
	light  ports.LightServicePort
	logger *zap.Logger

	// actionMu serializes InitiateAction and SetLevel.
	actionMu sync.Mutex

	mu          sync.RWMutex
	state       model.PowerState
	level       model.Level
	onInitiated model.ActionCallback
	onCompleted model.ActionCallback
	sub         ports.Subscription
	onChanged   ports.LightChangedHandler
}

func NewLightingManager(light ports.LightServicePort, logger *zap.Logger) *LightingManager {
	return &LightingManager{
		light:  light,
		logger: logger,
		state:  model.PowerOn,
	}
}

var _ ports.LightingPort = (*LightingManager)(nil)

// SetChangeHandler sets the receiver of daemon notifications. It must be
// called before Init.
func (m *LightingManager) SetChangeHandler(h ports.LightChangedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = h
}

// Init subscribes to daemon notifications and fetches the daemon state. The
// fetched state is only logged; on success the local state is reset to on
// with an uninitialized level. On failure local state is left untouched.
func (m *LightingManager) Init(ctx context.Context) error {
	m.actionMu.Lock()
	defer m.actionMu.Unlock()

	m.mu.RLock()
	handler := m.onChanged
	m.mu.RUnlock()

	sub, err := m.light.Subscribe(ctx, handler)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()

	remote, err := m.light.FetchState(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.state = model.PowerOn
	m.level = 0
	m.mu.Unlock()

	m.logger.Info("Lighting manager initialized",
		zap.Bool("remote_power", remote.Power),
		zap.Uint32("remote_brightness", remote.Brightness),
		zap.Bool("remote_auto_brightness", remote.AutoBrightness))
	return nil
}

func (m *LightingManager) IsTurnedOn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == model.PowerOn
}

func (m *LightingManager) GetLevel() model.Level {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

// State returns a snapshot in the device-abstraction representation.
func (m *LightingManager) State() *huego.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &huego.State{
		On:        m.state == model.PowerOn,
		Bri:       m.level,
		Reachable: true,
	}
}

func (m *LightingManager) SetCallbacks(onInitiated, onCompleted model.ActionCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInitiated = onInitiated
	m.onCompleted = onCompleted
}

// InitiateAction applies a power transition. Redundant actions are not
// initiated and return false without invoking callbacks or the daemon.
// Callbacks run synchronously and must not call InitiateAction or SetLevel.
func (m *LightingManager) InitiateAction(action model.Action) bool {
	return m.transition(action, true)
}

// AdoptAction records a transition the daemon already made. Callbacks run as
// for InitiateAction but nothing is pushed.
func (m *LightingManager) AdoptAction(action model.Action) bool {
	return m.transition(action, false)
}

// SetLevel commits a new level and pushes it to the daemon. The push happens
// even while the light is off.
func (m *LightingManager) SetLevel(value model.Level) {
	m.changeLevel(value, true)
}

// AdoptLevel records a level the daemon already reports, without pushing.
func (m *LightingManager) AdoptLevel(value model.Level) {
	m.changeLevel(value, false)
}

func (m *LightingManager) transition(action model.Action, push bool) bool {
	m.actionMu.Lock()
	defer m.actionMu.Unlock()

	m.logger.Info("Initiating action", zap.Stringer("action", action), zap.Bool("push", push))

	m.mu.RLock()
	current := m.state
	onInitiated, onCompleted := m.onInitiated, m.onCompleted
	m.mu.RUnlock()

	var next model.PowerState
	switch {
	case current == model.PowerOff && action == model.ActionTurnOn:
		next = model.PowerOn
	case current == model.PowerOn && action == model.ActionTurnOff:
		next = model.PowerOff
	default:
		return false
	}

	if onInitiated != nil {
		onInitiated(action)
	}

	m.set(next == model.PowerOn, push)

	if onCompleted != nil {
		onCompleted(action)
	}
	return true
}

func (m *LightingManager) changeLevel(value model.Level, push bool) {
	m.actionMu.Lock()
	defer m.actionMu.Unlock()

	m.mu.Lock()
	if value == m.level {
		m.mu.Unlock()
		return
	}
	m.level = value
	on := m.state == model.PowerOn
	m.mu.Unlock()

	m.logger.Info("Setting level", zap.Uint8("level", value), zap.Bool("push", push))
	if !push {
		return
	}
	if !on {
		m.logger.Info("Light is off, pushing level anyway", zap.Uint8("level", value))
	}

	m.push(on, value)
}

func (m *LightingManager) set(on, push bool) {
	m.mu.Lock()
	if on {
		m.state = model.PowerOn
	} else {
		m.state = model.PowerOff
	}
	level := m.level
	m.mu.Unlock()

	m.logger.Info("Power state committed", zap.Bool("on", on))
	if push {
		m.push(on, level)
	}
}

func (m *LightingManager) push(on bool, level model.Level) {
	if err := m.light.PushState(context.Background(), on, level); err != nil {
		m.logger.Warn("Light state push failed, keeping local state",
			zap.Bool("on", on),
			zap.Uint8("level", level),
			zap.Error(err))
	}
}

// Close releases the daemon subscription.
func (m *LightingManager) Close() error {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Close()
}
