// Package sessionstore holds the bounded, insertion-ordered key/value stores
// backing the three short-lived session namespaces. A store never grows past
// its configured size by more than one sweep interval's worth of writes: each
// sweep evicts the oldest entries (FIFO, not LRU) until the size is back at the
// limit. A miss means the session expired or was evicted.
package sessionstore

import (
	"context"
	"time"
)

// Namespace names one independent key space.
type Namespace string

const (
	NamespaceIdentity         Namespace = "identity"
	NamespaceOwnership        Namespace = "ownership"
	NamespacePasskeyChallenge Namespace = "passkey-challenge"
)

const (
	DefaultMaxSize       = 5000
	DefaultSweepInterval = 5 * time.Minute
)

// Store is a bounded key/value store. Get returns an error wrapping
// sentinel.ErrNotFound for absent keys.
type Store[V any] interface {
	Put(ctx context.Context, key string, value V) error
	Get(ctx context.Context, key string) (V, error)
	Delete(ctx context.Context, key string) error
	Len(ctx context.Context) (int, error)
	Sweep(ctx context.Context) (int, error)
}
