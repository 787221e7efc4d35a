// Package bus wraps the NATS connection TaylorDash uses as its message
// broker: topic subscription with ack/nack semantics, at-least-once publish,
// and reconnect-with-backoff.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/taylordash/taylordash/internal/logger"
)

// Config configures the broker connection.
type Config struct {
	BrokerURL string
	Username  string
	Password  string
	ClientID  string
}

// Handler processes one delivered message. Returning nil acknowledges it.
// An error is terminal for the delivery: core NATS has no broker-side
// redelivery, so handlers must capture anything they cannot process (the
// event pipeline writes a DLQ row) before returning the error.
type Handler func(ctx context.Context, topic string, payload []byte) error

// Adapter is a thin, swappable wrapper around a NATS connection.
type Adapter struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

// Connect dials the broker with exponential backoff (1s up to a 30s cap)
// baked into the client's own reconnect loop.
func Connect(cfg Config) (*Adapter, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.ReconnectWait(1 * time.Second),
		nats.MaxReconnects(-1),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			if attempts < 1 {
				attempts = 1
			}
			if attempts > 6 {
				return 30 * time.Second
			}
			d := time.Second << uint(attempts-1)
			if d > 30*time.Second {
				d = 30 * time.Second
			}
			return d
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				busLog := logger.Bus()
				busLog.Warn().Err(err).Msg("disconnected from broker")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			busLog := logger.Bus()
			busLog.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to broker")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			busLog := logger.Bus()
			busLog.Error().Err(err).Msg("broker async error")
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.BrokerURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	busLog := logger.Bus()
	busLog.Info().Str("url", conn.ConnectedUrl()).Msg("connected to broker")
	return &Adapter{conn: conn}, nil
}

// Subscribe registers handler against a topic pattern (NATS wildcard
// semantics: "+" maps to "*", "#" maps to ">"). Each delivered message is
// dispatched on its own goroutine so a slow or blocking handler invocation
// never serializes the rest of the subscription's traffic.
func (a *Adapter) Subscribe(pattern string, handler Handler) error {
	sub, err := a.conn.Subscribe(toNATSPattern(pattern), func(msg *nats.Msg) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			topic := toBusTopic(msg.Subject)
			if err := handler(ctx, topic, msg.Data); err != nil {
				busLog := logger.Bus()
				busLog.Warn().Err(err).Str("topic", topic).Msg("handler failed; message will not be redelivered")
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", pattern, err)
	}
	a.subs = append(a.subs, sub)
	return nil
}

// Publish sends payload to topic and blocks until the client library has
// flushed it to the broker, giving qos=1 publish-side guarantees (NATS core
// has no broker-side redelivery; JetStream would be needed for that, which
// this deployment does not require).
func (a *Adapter) Publish(topic string, payload []byte) error {
	if err := a.conn.Publish(toNATSPattern(topic), payload); err != nil {
		return err
	}
	return a.conn.FlushTimeout(5 * time.Second)
}

// Close drains the subscriptions' pending messages for up to 30s, then
// closes the connection. Handler goroutines already dispatched by Subscribe
// are not waited for.
func (a *Adapter) Close() error {
	drained := make(chan struct{})
	a.conn.SetClosedHandler(func(_ *nats.Conn) { close(drained) })
	if err := a.conn.FlushTimeout(30 * time.Second); err != nil {
		busLog := logger.Bus()
		busLog.Warn().Err(err).Msg("flush before close timed out")
	}
	drainErr := a.conn.Drain()
	if drainErr == nil {
		select {
		case <-drained:
		case <-time.After(30 * time.Second):
			busLog := logger.Bus()
			busLog.Warn().Msg("drain before close timed out")
		}
	}
	a.conn.Close()
	return drainErr
}

// Probe reports the broker connection's current status, used by the health
// aggregator's /health/stack sub-check.
func (a *Adapter) Probe() (healthy bool, details string) {
	status := a.conn.Status()
	return status == nats.CONNECTED, status.String()
}

// toNATSPattern maps a slash-separated bus topic (or pattern) onto NATS
// subject syntax: "/" → ".", "+" → "*", "#" → ">". Publish and Subscribe
// both go through it so callers only ever see slash form.
func toNATSPattern(pattern string) string {
	out := make([]byte, 0, len(pattern))
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '/':
			out = append(out, '.')
		case '+':
			out = append(out, '*')
		case '#':
			out = append(out, '>')
		default:
			out = append(out, pattern[i])
		}
	}
	return string(out)
}

// toBusTopic maps a delivered NATS subject back to the slash form the rest
// of the platform (mirror rows, DLQ rows, metrics labels) speaks.
func toBusTopic(subject string) string {
	out := make([]byte, 0, len(subject))
	for i := 0; i < len(subject); i++ {
		if subject[i] == '.' {
			out = append(out, '/')
		} else {
			out = append(out, subject[i])
		}
	}
	return string(out)
}
