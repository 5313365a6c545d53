package connector

import (
	"context"

	"github.com/Konsultn-Engineering/stormweaver/database"
)

// Provider dials drivers for one backend flavor.
type Provider interface {
	Connect(ctx context.Context, config Config) (database.Driver, error)
	HealthCheck(ctx context.Context, drv database.Driver) error
}

// Connector binds a Provider to a Config.
type Connector interface {
	Connect(ctx context.Context) (database.Driver, error)
	ConnectWithRetry(ctx context.Context, opts RetryOptions) (database.Driver, error)
}
