package store

//go:generate mockgen -package=mocks -destination=mocks/mock_store.go github.com/KirkDiggler/doodle/internal/repositories/store Store,Subscription

import (
	"context"
)

// Handler receives the value written to a record key
type Handler func(value []byte)

// ChildHandler receives one child of a collection key
type ChildHandler func(childID string, value []byte)

// Subscription is an active subscription; Close stops delivery
type Subscription interface {
	Close() error
}

// Child is one element of a collection
type Child struct {
	ID    string
	Value []byte
}

// Store is a key-addressed shared store with change notification.
// Values are JSON documents. A key holds either a record (Put, PutVersioned)
// or a collection (Set), never both. Delivery is at-least-once and ordered
// per key.
type Store interface {
	// Get returns the record at key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Put overwrites the record at key, last write wins
	Put(ctx context.Context, key string, value []byte) error

	// PutVersioned writes the record only if its version equals expected.
	// An absent record has version 0. On success the version becomes expected+1.
	PutVersioned(ctx context.Context, key string, expected int64, value []byte) (bool, error)

	// Set appends value to the collection at key and returns its child ID
	Set(ctx context.Context, key string, value []byte) (string, error)

	// Children lists a collection in insertion order
	Children(ctx context.Context, key string) ([]Child, error)

	// On delivers every future write to the record at key
	On(ctx context.Context, key string, h Handler) (Subscription, error)

	// MapOn delivers the existing children of a collection, then every new one
	MapOn(ctx context.Context, key string, h ChildHandler) (Subscription, error)

	// MapOnce is MapOn that delivers each child at most once
	MapOnce(ctx context.Context, key string, h ChildHandler) (Subscription, error)
}
