package connector

import (
	"context"
	"fmt"

	"github.com/Konsultn-Engineering/stormweaver/database"
)

// postgresProvider dials PostgreSQL-family servers through pgx.
type postgresProvider struct{}

func init() {
	Register("postgres", postgresProvider{})
}

func (postgresProvider) Connect(ctx context.Context, cfg Config) (database.Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	drv, err := database.ConnectPgx(ctx, buildPostgresDSN(cfg))
	if err != nil {
		if cfg.Retry != nil {
			return retryConnect(ctx, RetryOptions{
				MaxRetries: cfg.Retry.MaxRetries,
				BaseDelay:  cfg.Retry.BaseDelay,
				MaxDelay:   cfg.Retry.MaxDelay,
			}, func(ctx context.Context) (database.Driver, error) {
				return database.ConnectPgx(ctx, buildPostgresDSN(cfg))
			})
		}
		return nil, err
	}
	return drv, nil
}

func (postgresProvider) HealthCheck(ctx context.Context, drv database.Driver) error {
	res := drv.ExecuteQuery("SELECT 1")
	if err := res.Err(); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func buildPostgresDSN(cfg Config) string {
	b := NewDSNBuilder("postgres").
		Auth(cfg.Username, cfg.Password).
		Host(cfg.Host, cfg.Port).
		Database(cfg.Database).
		Param("sslmode", cfg.SSLMode).
		Params(cfg.Params)
	if cfg.Socket != "" {
		b.Param("host", cfg.Socket)
	}
	return b.Build()
}
