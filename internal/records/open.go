package records

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/postgres"
)

// Backend is a Source with a connection behind it.
type Backend interface {
	Source
	Ping(ctx context.Context) error
	Close() error
}

type postgresBackend struct {
	*PostgresSource
	client *postgres.Client
}

func (b postgresBackend) Close() error { return b.client.Close() }

// Open connects the record store selected by cfg.Records.Driver.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Records.Driver {
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLite.Path)
	case config.DriverPostgres:
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return postgresBackend{PostgresSource: NewPostgresSource(client.DB), client: client}, nil
	default:
		return nil, fmt.Errorf("unknown records driver %q", cfg.Records.Driver)
	}
}
