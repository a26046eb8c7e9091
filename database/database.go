package database

import (
	"context" // For managing request context and cancellation signals
	"fmt"     // For string formatting
	"time"    // For time-related operations (e.g., connection timeout)

	"github.com/jackc/pgx/v5"         // Base pgx package
	"github.com/jackc/pgx/v5/pgconn"  // For pgconn.CommandTag
	"github.com/jackc/pgx/v5/pgxpool" // PostgreSQL driver and connection pool
	"go.uber.org/zap"

	"bloodbank/backend/config" // Import the local config package
)

// DBPool defines the interface for database operations we need.
// This allows mocking for tests. It includes methods from pgxpool.Pool.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
	Begin(ctx context.Context) (pgx.Tx, error) // Transactions for the lifecycle operations
}

// Querier is the subset shared by DBPool and pgx.Tx, so read helpers can run inside or
// outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ConnectDB opens the connection pool described by cfg.DatabaseURL and pings it.
func ConnectDB(ctx context.Context, cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	log.Info("Attempting to connect to database...")

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Set connection pool settings
	poolCfg.MaxConns = 10                      // Maximum number of connections in the pool
	poolCfg.MinConns = 2                       // Minimum number of connections to keep open
	poolCfg.MaxConnLifetime = time.Hour        // Maximum lifetime of a connection
	poolCfg.MaxConnIdleTime = time.Minute * 30 // Maximum idle time for a connection
	poolCfg.HealthCheckPeriod = time.Minute    // How often to check connection health

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close() // Close the pool if ping fails
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("Database connection pool established successfully")
	return pool, nil
}

// CloseDB closes the database connection pool.
// Should be called on application shutdown.
func CloseDB(db DBPool, log *zap.Logger) {
	if db == nil {
		return
	}
	log.Info("Closing database connection pool...")
	db.Close()
	log.Info("Database connection pool closed")
}
