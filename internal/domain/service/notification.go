package service

import (
	"context"

	"lighting-bridge/internal/domain/model"
	"lighting-bridge/internal/domain/translator"
	"lighting-bridge/internal/ports"

	"go.uber.org/zap"
)

type lightState interface {
	IsTurnedOn() bool
	GetLevel() model.Level
}

// ChangeHandler receives daemon-side light changes.
//
// With feedback disabled it only logs. With feedback enabled it writes the
// change into the attribute store from its own goroutine, never from the bus
// loop, since attribute writes take the manager lock and run action hooks.
type ChangeHandler struct {
	state    lightState
	store    ports.AttributeStore
	scale    translator.Scale
	feedback bool
	queue    chan model.ExternalLightState
	logger   *zap.Logger
}

func NewChangeHandler(state lightState, store ports.AttributeStore, scale translator.Scale, cfg model.NotificationConfig, logger *zap.Logger) *ChangeHandler {
	size := cfg.QueueSize
	if size <= 0 {
		size = model.DefaultFeedbackQueue
	}
	return &ChangeHandler{
		state:    state,
		store:    store,
		scale:    scale,
		feedback: cfg.Feedback,
		queue:    make(chan model.ExternalLightState, size),
		logger:   logger,
	}
}

// HandleLightChanged runs on the bus loop and must not block.
func (h *ChangeHandler) HandleLightChanged(ext model.ExternalLightState) {
	h.logger.Info("Light changed externally",
		zap.Bool("power", ext.Power),
		zap.Uint32("brightness", ext.Brightness),
		zap.Bool("auto_brightness", ext.AutoBrightness),
		zap.Bool("feedback", h.feedback))

	if !h.feedback {
		return
	}
	select {
	case h.queue <- ext:
	default:
		h.logger.Warn("Feedback queue full, dropping light change")
	}
}

// Run applies queued changes until ctx is done.
func (h *ChangeHandler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ext := <-h.queue:
			h.apply(ext)
		}
	}
}

func (h *ChangeHandler) apply(ext model.ExternalLightState) {
	on := h.state.IsTurnedOn()
	if ext.Power != on {
		h.logger.Info("Applying external power change", zap.Bool("on", ext.Power))
		if err := h.store.SetOnOff(ext.Power); err != nil {
			h.logger.Error("Failed to apply external power change", zap.Error(err))
		}
	}

	// Compare in the daemon's range: the local level that produced this
	// brightness would otherwise be replaced by a different one on every echo.
	current := h.state.GetLevel()
	if h.scale.ToExternal(current) == ext.Brightness {
		return
	}
	level := h.scale.LevelFor(ext.Brightness)
	h.logger.Info("Applying external level change",
		zap.Uint8("from", current),
		zap.Uint8("to", level))
	if err := h.store.SetCurrentLevel(level); err != nil {
		h.logger.Error("Failed to apply external level change", zap.Error(err))
	}
}

// remoteState is the part of the manager that records daemon-side changes.
type remoteState interface {
	AdoptAction(action model.Action) bool
	AdoptLevel(level model.Level)
}

// AttributeBinding routes attribute writes through the manager so hooks fire
// as for local changes. Writes are not pushed back: the daemon already holds
// the state it reported.
type AttributeBinding struct {
	manager remoteState
}

func NewAttributeBinding(manager remoteState) *AttributeBinding {
	return &AttributeBinding{manager: manager}
}

var _ ports.AttributeStore = (*AttributeBinding)(nil)

func (b *AttributeBinding) SetOnOff(on bool) error {
	action := model.ActionTurnOff
	if on {
		action = model.ActionTurnOn
	}
	b.manager.AdoptAction(action)
	return nil
}

func (b *AttributeBinding) SetCurrentLevel(level model.Level) error {
	b.manager.AdoptLevel(level)
	return nil
}
