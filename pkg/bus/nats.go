package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	defaultNATSTimeout = 10 * time.Second
	// streamMaxAge bounds how long a JetStream stream keeps distribution events.
	streamMaxAge = 30 * 24 * time.Hour
)

// NATSBus publishes over a NATS connection. With a stream configured,
// distribution events go through JetStream and each publish waits for the
// server's ack.
type NATSBus struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	timeout time.Duration
	closed  atomic.Bool
}

// NewNATSBus dials cfg.URL and reconnects indefinitely after drops.
func NewNATSBus(cfg Config) (*NATSBus, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name(cfg.Name),
		nats.Timeout(timeoutOrDefault(cfg.Timeout)),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}

	b, err := NewNATSBusFromConn(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

// NewNATSBusFromConn wraps an open connection, creating or updating the
// configured stream.
func NewNATSBusFromConn(conn *nats.Conn, cfg Config) (*NATSBus, error) {
	b := &NATSBus{conn: conn, timeout: timeoutOrDefault(cfg.Timeout)}
	if cfg.Stream == "" {
		return b, nil
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, distributionStream(cfg.Stream)); err != nil {
		return nil, fmt.Errorf("jetstream stream %s: %w", cfg.Stream, err)
	}
	b.js = js
	return b, nil
}

// distributionStream retains every distribution subject on disk for
// streamMaxAge, dropping the oldest events first.
func distributionStream(name string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        name,
		Description: "leadsplit distribution events",
		Subjects:    []string{SubjectDistributionPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
		MaxAge:      streamMaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return defaultNATSTimeout
}

func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if b.js == nil {
		return b.conn.Publish(subject, data)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("jetstream publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe listens on core NATS. The subscription ends when ctx does.
func (b *NATSBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{Subject: msg.Subject, Data: msg.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = sub.Unsubscribe() })
	return &natsSubscription{sub: sub, stop: stop}, nil
}

// Close drains pending messages before disconnecting.
func (b *NATSBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	err := b.conn.Drain()
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		b.conn.Close()
		return err
	}
	return nil
}

// Conn exposes the connection for health checks.
func (b *NATSBus) Conn() *nats.Conn {
	return b.conn
}

type natsSubscription struct {
	sub  *nats.Subscription
	stop func() bool
}

func (s *natsSubscription) Unsubscribe() error {
	s.stop()
	err := s.sub.Unsubscribe()
	if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}

func (s *natsSubscription) Subject() string {
	return s.sub.Subject
}
