package implementation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	config "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Config"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
)

// PostgresStore hands out gateways backed by a dedicated *sql.Conn each
type PostgresStore struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewPostgresStore(db *sql.DB, log *logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: log.WithComponent("postgres")}
}

// ConnectPostgresWithTimeout creates a PostgreSQL connection pool with a timeout context
func ConnectPostgresWithTimeout(cfg *config.Config, timeout time.Duration) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.GetPostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(cfg.Storage.Postgres.MaxConns)
	db.SetMaxIdleConns(cfg.Storage.Postgres.MinConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Acquire reserves one pooled connection for the caller
func (s *PostgresStore) Acquire(ctx context.Context) (interfaces.Gateway, error) {
	if s.db == nil {
		return nil, apperrors.Connection("acquire", apperrors.ErrNoConnection)
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		s.logger.Logger.Error().Err(err).Msg("Connection failed")
		return nil, apperrors.Connection("acquire", err)
	}
	return newPostgresGateway(conn, s.logger), nil
}

// Ping checks if the PostgreSQL connection is healthy
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return apperrors.ErrNoConnection
	}
	return s.db.PingContext(ctx)
}

// Bootstrap creates the required tables if they don't exist
func (s *PostgresStore) Bootstrap(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	createReadingsTable := `
		CREATE TABLE IF NOT EXISTS tbl_dht11 (
			id           BIGSERIAL PRIMARY KEY,
			device_id    INTEGER NOT NULL,
			temperature  DOUBLE PRECISION NOT NULL,
			humidity     DOUBLE PRECISION NOT NULL,
			relay_status VARCHAR(3) NOT NULL DEFAULT 'Off',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	createThresholdTable := `
		CREATE TABLE IF NOT EXISTS tbl_threshold (
			id             INTEGER PRIMARY KEY,
			temp_threshold DOUBLE PRECISION NOT NULL,
			hum_threshold  DOUBLE PRECISION NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	createUsersTable := `
		CREATE TABLE IF NOT EXISTS users (
			id        BIGSERIAL PRIMARY KEY,
			username  TEXT NOT NULL UNIQUE,
			password  TEXT NOT NULL,
			role      TEXT NOT NULL DEFAULT 'user'
		);
	`

	createIndexes := `
		CREATE INDEX IF NOT EXISTS idx_dht11_device_created_desc ON tbl_dht11 (device_id, created_at DESC, id DESC);
	`

	queries := []string{
		createReadingsTable,
		createThresholdTable,
		createUsersTable,
		createIndexes,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
