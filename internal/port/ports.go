// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"errors"

	"github.com/boddenberg/security-assessment-go/internal/domain"
)

// ErrKeyNotFound is returned by KVStore.Get for an absent key.
var ErrKeyNotFound = errors.New("kv: key not found")

// ErrKeyExists is returned by KVStore.PutIfAbsent when the key is taken.
var ErrKeyExists = errors.New("kv: key already exists")

// KVStore is the persistence contract: string keys, JSON-encoded values.
// Implemented by the memory, sqlite, mongo, postgres and supabase adapters.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// PutIfAbsent writes value only when key does not exist yet.
	PutIfAbsent(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// RegistryLookup resolves a CNPJ against the public company registry.
type RegistryLookup interface {
	Lookup(ctx context.Context, cnpj string) (*domain.RegistryRecord, error)
}

// EventPublisher delivers domain events to a broker.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, evt domain.CompletedEvent) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
