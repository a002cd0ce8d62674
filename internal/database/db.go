package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/vaidashi/coffee-queue/internal/config"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

// Driver names as registered with database/sql
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	Driver string
	logger logger.Logger
}

// New opens the database selected by cfg.StoreBackend
func New(cfg *config.Config, logger logger.Logger) (*Database, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := Open(DriverPostgres, cfg.GetDBConnString(), logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to database", "host", cfg.DB.Host, "database", cfg.DB.Name)
		return db, nil
	case config.BackendSQLite:
		db, err := Open(DriverSQLite, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Opened SQLite database", "path", cfg.SQLitePath)
		return db, nil
	default:
		return nil, fmt.Errorf("backend %q is not a SQL database", cfg.StoreBackend)
	}
}

// Open connects with an explicit driver and DSN
func Open(driver, dsn string, logger logger.Logger) (*Database, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	if driver == DriverSQLite {
		// a single writer; also keeps ":memory:" databases on one connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return &Database{
		DB:     db,
		Driver: driver,
		logger: logger,
	}, nil
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

// RunMigrations creates the orders table if it does not exist yet
func (d *Database) RunMigrations() error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(50) PRIMARY KEY,
		customer_name VARCHAR(200) NOT NULL,
		coffee_type VARCHAR(50) NOT NULL,
		milk_option VARCHAR(50) NOT NULL,
		extras TEXT NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		collection_spot INTEGER,
		order_timestamp TIMESTAMP NOT NULL,
		collected_timestamp TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_order_timestamp ON orders(order_timestamp);

	-- at most one Ready order per collection spot
	CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_ready_spot ON orders(collection_spot) WHERE status = 'Ready';
	`

	_, err := d.DB.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Info("Database migrations completed successfully", "driver", d.Driver)
	return nil
}
