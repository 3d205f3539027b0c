package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"lighting-bridge/internal/domain/model"
	"lighting-bridge/internal/domain/translator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockAttributeStore struct {
	mock.Mock
}

func (m *MockAttributeStore) SetOnOff(on bool) error {
	args := m.Called(on)
	return args.Error(0)
}

func (m *MockAttributeStore) SetCurrentLevel(level model.Level) error {
	args := m.Called(level)
	return args.Error(0)
}

type staticState struct {
	on    bool
	level model.Level
}

func (s staticState) IsTurnedOn() bool      { return s.on }
func (s staticState) GetLevel() model.Level { return s.level }

func newHandler(state lightState, store *MockAttributeStore, feedback bool) *ChangeHandler {
	cfg := model.NotificationConfig{Feedback: feedback, QueueSize: 4}
	return NewChangeHandler(state, store, translator.DefaultScale, cfg, zap.NewNop())
}

func TestChangeHandler_InertWithoutFeedback(t *testing.T) {
	store := new(MockAttributeStore)
	h := newHandler(staticState{on: true, level: 10}, store, false)

	h.HandleLightChanged(model.ExternalLightState{Power: false, Brightness: 5})

	assert.Empty(t, h.queue)
	store.AssertNotCalled(t, "SetOnOff", mock.Anything)
	store.AssertNotCalled(t, "SetCurrentLevel", mock.Anything)
}

func TestChangeHandler_AppliesPowerAndLevel(t *testing.T) {
	store := new(MockAttributeStore)
	store.On("SetOnOff", false).Return(nil).Once()
	store.On("SetCurrentLevel", model.Level(102)).Return(nil).Once()

	h := newHandler(staticState{on: true, level: 10}, store, true)
	h.apply(model.ExternalLightState{Power: false, Brightness: 3})

	store.AssertExpectations(t)
}

func TestChangeHandler_SkipsMatchingState(t *testing.T) {
	store := new(MockAttributeStore)
	// Level 102 maps to brightness 3 on the daemon
	h := newHandler(staticState{on: true, level: 102}, store, true)
	h.apply(model.ExternalLightState{Power: true, Brightness: 3})

	store.AssertNotCalled(t, "SetOnOff", mock.Anything)
	store.AssertNotCalled(t, "SetCurrentLevel", mock.Anything)
}

func TestChangeHandler_StoreErrorsAreLogged(t *testing.T) {
	store := new(MockAttributeStore)
	store.On("SetOnOff", true).Return(errors.New("store unavailable")).Once()
	store.On("SetCurrentLevel", model.Level(1)).Return(errors.New("store unavailable")).Once()

	h := newHandler(staticState{on: false, level: 200}, store, true)
	assert.NotPanics(t, func() {
		h.apply(model.ExternalLightState{Power: true, Brightness: 1})
	})
	store.AssertExpectations(t)
}

func TestChangeHandler_RunDrainsQueue(t *testing.T) {
	store := new(MockAttributeStore)
	done := make(chan struct{})
	store.On("SetOnOff", true).Return(nil).Once()
	store.On("SetCurrentLevel", model.Level(204)).Run(func(mock.Arguments) { close(done) }).Return(nil).Once()

	h := newHandler(staticState{on: false, level: 0}, store, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	h.HandleLightChanged(model.ExternalLightState{Power: true, Brightness: 5})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("feedback was not applied")
	}
	store.AssertExpectations(t)
}

func TestChangeHandler_FullQueueDrops(t *testing.T) {
	store := new(MockAttributeStore)
	h := newHandler(staticState{}, store, true)

	for i := 0; i < 10; i++ {
		h.HandleLightChanged(model.ExternalLightState{Power: true, Brightness: 1})
	}
	assert.Len(t, h.queue, 4)
}

func TestChangeHandler_FeedbackDoesNotPushBack(t *testing.T) {
	light := new(MockLightService)
	m := newManager(light)
	h := NewChangeHandler(m, NewAttributeBinding(m), translator.DefaultScale,
		model.NotificationConfig{Feedback: true}, zap.NewNop())

	for b := uint32(1); b <= 5; b++ {
		h.apply(model.ExternalLightState{Power: b%2 == 0, Brightness: b})
		assert.Equal(t, b%2 == 0, m.IsTurnedOn(), "brightness %d", b)
		assert.Equal(t, b, translator.DefaultScale.ToExternal(m.GetLevel()), "brightness %d", b)
	}
	for b := uint32(5); b >= 1; b-- {
		h.apply(model.ExternalLightState{Power: true, Brightness: b})
		assert.Equal(t, b, translator.DefaultScale.ToExternal(m.GetLevel()), "brightness %d", b)
	}

	light.AssertNotCalled(t, "PushState", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangeHandler_AdoptedLevelPushesSameBrightness(t *testing.T) {
	light := new(MockLightService)
	m := newManager(light)
	h := NewChangeHandler(m, NewAttributeBinding(m), translator.DefaultScale,
		model.NotificationConfig{Feedback: true}, zap.NewNop())

	h.apply(model.ExternalLightState{Power: true, Brightness: 3})
	require.Equal(t, model.Level(102), m.GetLevel())

	// A later local power change carries the adopted level, which the
	// daemon reads as the brightness it reported.
	light.On("PushState", mock.Anything, false, model.Level(102)).Return(nil).Once()
	require.True(t, m.InitiateAction(model.ActionTurnOff))
	assert.Equal(t, uint32(3), translator.DefaultScale.ToExternal(102))
	light.AssertExpectations(t)
}

func TestAttributeBinding(t *testing.T) {
	light := new(MockLightService)
	m := newManager(light)
	b := NewAttributeBinding(m)

	var events []string
	m.SetCallbacks(
		func(a model.Action) { events = append(events, "initiated:"+a.String()) },
		func(a model.Action) { events = append(events, "completed:"+a.String()) },
	)

	require.NoError(t, b.SetOnOff(false))
	assert.False(t, m.IsTurnedOn())
	assert.Equal(t, []string{"initiated:turn_off", "completed:turn_off"}, events)

	require.NoError(t, b.SetCurrentLevel(9))
	assert.Equal(t, model.Level(9), m.GetLevel())

	light.AssertNotCalled(t, "PushState", mock.Anything, mock.Anything, mock.Anything)
}
