package datasource

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Factory creates an adapter for a connection URL.
type Factory func(ctx context.Context, databaseURL string, logger *zap.Logger) (Adapter, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a factory available under a dialect name. Adapter packages
// call this from init(); importing a package for side effects enables its
// dialect.
func Register(dialect string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[dialect] = factory
}

// GetFactory returns the factory registered for a dialect.
func GetFactory(dialect string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := factories[dialect]
	return f, ok
}

// IsRegistered reports whether a dialect has a registered factory.
func IsRegistered(dialect string) bool {
	_, ok := GetFactory(dialect)
	return ok
}

// Open detects the dialect from the URL scheme and constructs the matching
// adapter.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (Adapter, error) {
	dialect, err := DetectDialect(databaseURL)
	if err != nil {
		return nil, err
	}
	factory, ok := GetFactory(dialect)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for dialect %q", dialect)
	}
	return factory(ctx, databaseURL, logger)
}
