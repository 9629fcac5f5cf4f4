// Package identity manages the stable per-installation identifier the
// reporting endpoints key observations on.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UserIDKey is the storage slot the identifier lives under. The background
// runner reads this slot directly since it cannot rely on in-memory state
// surviving between invocations.
const UserIDKey = "user_id"

var (
	// ErrNotFound is returned by a Store when a key has no value.
	ErrNotFound = errors.New("key not found")

	// ErrStoreUnavailable indicates the persistent store could not be
	// reached. Without an identity no reporting can happen.
	ErrStoreUnavailable = errors.New("identity store unavailable")
)

// Store is the read-mostly key-value contract both execution contexts
// (foreground controller and background runner) share.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Provider lazily resolves the device identity, generating and persisting a
// v4 UUID on the first launch that finds no stored value.
type Provider struct {
	mu     sync.Mutex
	store  Store
	cached string
	log    *logrus.Logger
}

// NewProvider creates a Provider on top of the given store.
func NewProvider(store Store, log *logrus.Logger) *Provider {
	return &Provider{store: store, log: log}
}

// Resolve returns the device identity, creating it if necessary. Repeated
// calls within a session return the cached value without touching storage.
func (p *Provider) Resolve(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, nil
	}

	v, err := p.store.Get(ctx, UserIDKey)
	switch {
	case err == nil && v != "":
		p.cached = v
		return v, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	id := uuid.NewString()
	if err := p.store.Set(ctx, UserIDKey, id); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	p.log.WithField("user_id", id).Info("generated new device identity")
	p.cached = id
	return id, nil
}
