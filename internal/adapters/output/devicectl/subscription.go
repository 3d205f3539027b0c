package devicectl

import (
	"context"
	"sync"

	"lighting-bridge/internal/domain/model"
	"lighting-bridge/internal/ports"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

type subscription struct {
	client  *Client
	signals chan *dbus.Signal
	handler ports.LightChangedHandler

	done     chan struct{}
	doneOnce sync.Once
}

// pump moves signals from the connection onto the loop.
func (s *subscription) pump() {
	for {
		select {
		case <-s.done:
			return
		case sig, ok := <-s.signals:
			if !ok {
				return
			}
			if !s.client.isLightChanged(sig) {
				continue
			}
			if err := s.client.loop.Post(func() { s.deliver(sig) }); err != nil {
				s.client.logger.Warn("Dropping light change signal", zap.Error(err))
				return
			}
		}
	}
}

// deliver runs on the loop.
func (s *subscription) deliver(sig *dbus.Signal) {
	select {
	case <-s.done:
		return
	default:
	}

	var st model.ExternalLightState
	if err := dbus.Store(sig.Body, &st.Power, &st.Brightness, &st.AutoBrightness); err != nil {
		s.client.logger.Warn("Malformed light change signal", zap.Error(err))
		return
	}

	s.client.logger.Info("Light change signal received",
		zap.Bool("power", st.Power),
		zap.Uint32("brightness", st.Brightness),
		zap.Bool("auto_brightness", st.AutoBrightness))

	if s.handler != nil {
		s.handler(st)
	}
}

// teardown runs on the loop.
func (s *subscription) teardown() {
	c := s.client
	if c.sub != s {
		return
	}
	if c.conn != nil {
		if err := c.conn.RemoveMatchSignal(c.matchOptions()...); err != nil {
			c.logger.Warn("Failed to remove signal match", zap.Error(err))
		}
		c.conn.RemoveSignal(s.signals)
	}
	s.doneOnce.Do(func() { close(s.done) })
	c.sub = nil
}

func (s *subscription) Close() error {
	return s.client.invoke(context.Background(), func(ctx context.Context) error {
		s.teardown()
		return nil
	})
}
