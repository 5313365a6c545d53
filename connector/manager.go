package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/Konsultn-Engineering/stormweaver/database"
)

type standardConnector struct {
	provider Provider
	config   Config
}

var globalManager = &Manager{
	providers: make(map[string]Provider),
}

// Manager holds the registered providers.
type Manager struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// Register adds a provider under a backend name.
func Register(name string, provider Provider) {
	globalManager.mu.Lock()
	defer globalManager.mu.Unlock()
	globalManager.providers[name] = provider
}

// New builds a Connector for a registered backend.
func New(name string, config Config) (Connector, error) {
	globalManager.mu.RLock()
	provider, ok := globalManager.providers[name]
	globalManager.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %s not registered", name)
	}
	return &standardConnector{provider: provider, config: config}, nil
}

func (c *standardConnector) Connect(ctx context.Context) (database.Driver, error) {
	return c.provider.Connect(ctx, c.config)
}

func (c *standardConnector) ConnectWithRetry(ctx context.Context, opts RetryOptions) (database.Driver, error) {
	return retryConnect(ctx, opts, c.Connect)
}
