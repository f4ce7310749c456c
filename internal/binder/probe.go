package binder

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PostgresProber opens and pings a short-lived pgx connection. The engine's
// own connector reports unreachable hosts only after long libpq timeouts;
// probing first turns that into a fast, bounded binding failure.
type PostgresProber struct{}

// Probe implements Prober.
func (PostgresProber) Probe(ctx context.Context, connString string) error {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("parse connection string: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
