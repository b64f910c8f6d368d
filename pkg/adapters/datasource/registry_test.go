package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterAndOpen(t *testing.T) {
	called := false
	Register("testdialect", func(ctx context.Context, url string, logger *zap.Logger) (Adapter, error) {
		called = true
		return nil, nil
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(factories, "testdialect")
		registryMu.Unlock()
	})

	assert.True(t, IsRegistered("testdialect"))
	f, ok := GetFactory("testdialect")
	require.True(t, ok)
	_, err := f(context.Background(), "", zap.NewNop())
	require.NoError(t, err)
	assert.True(t, called)
}

func TestOpenFailsForUnregisteredDialect(t *testing.T) {
	registryMu.Lock()
	saved := factories[DialectMySQL]
	delete(factories, DialectMySQL)
	registryMu.Unlock()
	t.Cleanup(func() {
		if saved != nil {
			Register(DialectMySQL, saved)
		}
	})

	_, err := Open(context.Background(), "mysql://u:p@localhost/db", zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no adapter registered")
}
