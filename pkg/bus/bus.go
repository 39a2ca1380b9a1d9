// Package bus publishes distribution events to interested listeners.
// The NATS implementation is used in deployments; the in-memory bus backs
// tests and single-process setups.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("bus or subscription closed")

	// ErrUnknownDriver is returned by Open for an unrecognised driver name.
	ErrUnknownDriver = errors.New("unknown bus driver")
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverNATS   = "nats"
)

// MessageBus fans distribution events out to listeners. Implementations
// are safe for concurrent use.
type MessageBus interface {
	// Publish sends data on subject without waiting for handlers.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe calls handler for each message whose subject matches.
	// "*" matches one token and a trailing ">" matches the rest, so
	// "leadsplit.distribution.*" sees "leadsplit.distribution.created".
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Close releases the bus and ends every subscription.
	Close() error
}

// MessageHandler receives one delivered message.
type MessageHandler func(msg *Message)

// Message is a delivered payload and the subject it was published on.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription is a live registration returned by Subscribe.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// Config selects and tunes the NATS connection. The memory driver ignores it.
type Config struct {
	URL     string
	Name    string // client name shown in NATS monitoring
	Timeout time.Duration

	// Stream, when set, captures distribution events in a JetStream stream
	// of that name so late consumers can replay them.
	Stream string
}

// DefaultConfig points at a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Name:    "leadsplit",
		Timeout: 10 * time.Second,
	}
}

// Open builds the bus selected by driver.
func Open(driver string, cfg Config) (MessageBus, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemoryBus(), nil
	case DriverNATS:
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
