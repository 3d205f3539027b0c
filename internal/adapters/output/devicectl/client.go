// Package devicectl talks to the light control daemon over D-Bus.
//
// Every touch of the connection (dial, match rules, method calls, signal
// decoding) runs on the dispatch loop that owns it.
package devicectl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lighting-bridge/internal/dispatch"
	"lighting-bridge/internal/domain/model"
	"lighting-bridge/internal/domain/translator"
	"lighting-bridge/internal/ports"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	signalLightChanged = "onLightChanged"
	methodGetStates    = "getLightStates"
	methodSetPower     = "setLightPower"
)

// Conn is the part of *dbus.Conn the client uses.
type Conn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

type Dialer func() (Conn, error)

func SystemBus() (Conn, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func SessionBus() (Conn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func DialerFor(busType model.BusType) Dialer {
	if busType == model.BusTypeSession {
		return SessionBus
	}
	return SystemBus
}

type Options struct {
	Service     string
	Path        string
	Interface   string
	CallTimeout time.Duration
	Scale       translator.Scale
}

func OptionsFromConfig(cfg *model.Config) Options {
	return Options{
		Service:     cfg.Bus.Service,
		Path:        cfg.Bus.Path,
		Interface:   cfg.Bus.Interface,
		CallTimeout: cfg.Bus.CallTimeout.Duration(),
		Scale:       translator.NewScale(cfg.Scale),
	}
}

type Client struct {
	loop   *dispatch.Loop
	dial   Dialer
	opts   Options
	logger *zap.Logger

	// Owned by the loop goroutine.
	conn Conn
	obj  dbus.BusObject
	sub  *subscription
}

func NewClient(loop *dispatch.Loop, dial Dialer, opts Options, logger *zap.Logger) *Client {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = model.DefaultCallTimeout
	}
	return &Client{
		loop:   loop,
		dial:   dial,
		opts:   opts,
		logger: logger,
	}
}

var _ ports.LightServicePort = (*Client)(nil)

// Subscribe registers for onLightChanged. The handler runs on the loop. Only
// the first call registers; later calls return the same subscription.
func (c *Client) Subscribe(ctx context.Context, handler ports.LightChangedHandler) (ports.Subscription, error) {
	var sub *subscription
	err := c.invoke(ctx, func(ctx context.Context) error {
		if err := c.connect(); err != nil {
			return err
		}
		if c.sub != nil {
			sub = c.sub
			return nil
		}

		if err := c.conn.AddMatchSignal(c.matchOptions()...); err != nil {
			return fmt.Errorf("%w: subscribe to %s: %v", model.ErrInternal, signalLightChanged, err)
		}

		signals := make(chan *dbus.Signal, 16)
		c.conn.Signal(signals)
		sub = &subscription{
			client:  c,
			signals: signals,
			handler: handler,
			done:    make(chan struct{}),
		}
		c.sub = sub
		go sub.pump()
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to subscribe to light changes", zap.Error(err))
		return nil, err
	}

	c.logger.Info("Subscribed to light changes",
		zap.String("interface", c.opts.Interface),
		zap.String("path", c.opts.Path))
	return sub, nil
}

// FetchState queries the daemon. The returned brightness is in the daemon's
// range.
func (c *Client) FetchState(ctx context.Context) (model.ExternalLightState, error) {
	var st model.ExternalLightState
	err := c.invoke(ctx, func(ctx context.Context) error {
		if err := c.connect(); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()

		call := c.obj.CallWithContext(callCtx, c.member(methodGetStates), 0)
		if call.Err != nil {
			return fmt.Errorf("%w: %s: %v", model.ErrInternal, methodGetStates, call.Err)
		}
		if err := call.Store(&st.Power, &st.Brightness, &st.AutoBrightness); err != nil {
			return fmt.Errorf("%w: decode %s reply: %v", model.ErrInternal, methodGetStates, err)
		}
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to fetch light state", zap.Error(err))
		return model.ExternalLightState{}, err
	}

	c.logger.Info("Fetched light state",
		zap.Bool("power", st.Power),
		zap.Uint32("brightness", st.Brightness),
		zap.Uint8("level", c.opts.Scale.ToInternal(st.Brightness)),
		zap.Bool("auto_brightness", st.AutoBrightness))
	return st, nil
}

// PushState sends power and level, converted to the daemon's range.
func (c *Client) PushState(ctx context.Context, on bool, level model.Level) error {
	brightness := int32(c.opts.Scale.ToExternal(level))

	c.logger.Debug("Pushing light state",
		zap.Bool("power", on),
		zap.Uint8("level", level),
		zap.Int32("brightness", brightness))

	err := c.invoke(ctx, func(ctx context.Context) error {
		if err := c.connect(); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()

		call := c.obj.CallWithContext(callCtx, c.member(methodSetPower), 0, on, brightness)
		if call.Err != nil {
			return fmt.Errorf("%w: %s: %v", model.ErrInternal, methodSetPower, call.Err)
		}
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to push light state", zap.Error(err))
		return err
	}
	return nil
}

// Close drops the subscription and the bus connection.
func (c *Client) Close() error {
	return c.invoke(context.Background(), func(ctx context.Context) error {
		if c.sub != nil {
			c.sub.teardown()
		}
		if c.conn == nil {
			return nil
		}
		err := c.conn.Close()
		c.conn = nil
		c.obj = nil
		return err
	})
}

// invoke runs work on the loop and reports every failure as ErrInternal.
func (c *Client) invoke(ctx context.Context, work dispatch.Work) error {
	err := c.loop.Invoke(ctx, work)
	if err != nil && !errors.Is(err, model.ErrInternal) {
		return fmt.Errorf("%w: %v", model.ErrInternal, err)
	}
	return err
}

func (c *Client) connect() error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.dial()
	if err != nil {
		return fmt.Errorf("%w: connect to bus: %v", model.ErrInternal, err)
	}
	c.conn = conn
	c.obj = conn.Object(c.opts.Service, dbus.ObjectPath(c.opts.Path))
	c.logger.Debug("Connected to bus", zap.String("service", c.opts.Service))
	return nil
}

func (c *Client) member(name string) string {
	return c.opts.Interface + "." + name
}

func (c *Client) matchOptions() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(c.opts.Service),
		dbus.WithMatchObjectPath(dbus.ObjectPath(c.opts.Path)),
		dbus.WithMatchInterface(c.opts.Interface),
		dbus.WithMatchMember(signalLightChanged),
	}
}

func (c *Client) isLightChanged(sig *dbus.Signal) bool {
	return sig.Name == c.member(signalLightChanged) && sig.Path == dbus.ObjectPath(c.opts.Path)
}
