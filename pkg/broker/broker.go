package broker

import (
	"context"
	"errors"
)

// ErrUnknownBroker is returned when a broker id cannot be resolved.
var ErrUnknownBroker = errors.New("unknown broker")

// Broker is a registered client application. The secret is shared out of
// band and never travels over the protocol.
type Broker struct {
	ID     string `yaml:"id" json:"id"`
	Secret string `yaml:"secret" json:"-"`
}

// Store resolves broker ids. Implementations must be safe for concurrent
// use; lookups happen on every protocol operation.
type Store interface {
	// FindByID returns the broker registered under id, or ErrUnknownBroker.
	FindByID(ctx context.Context, id string) (*Broker, error)
}
