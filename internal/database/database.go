// Package database opens the MySQL pool, applies migrations and connects to Redis
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/japanesestudent/listening-service/internal/config"
	"go.uber.org/zap"
)

// MigrationsTable is the golang-migrate bookkeeping table of this service
const MigrationsTable = "listening_schema_migrations"

// connectTimeout bounds how long startup waits for a dependency to come up
const connectTimeout = 30 * time.Second

func newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = connectTimeout
	return bo
}

// Connect opens the MySQL pool and pings it until the server answers
func Connect(dsn string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ping := func() error {
		err := db.Ping()
		if err != nil {
			logger.Warn("Database not ready, retrying", zap.Error(err))
		}
		return err
	}
	if err := backoff.Retry(ping, newBackOff()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// RunMigrations applies pending migrations from the migrations directory
func RunMigrations(db *sql.DB) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationPath(), "mysql", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrationPath finds the migrations folder from the repository root or from cmd/<binary>
func migrationPath() string {
	for _, dir := range []string{"migrations", "../migrations", "../../migrations"} {
		if _, err := os.Stat(dir); err == nil {
			return "file://" + dir
		}
	}
	return "file://migrations"
}

// ConnectRedis creates a Redis client and pings it until the server answers
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ping := func() error {
		err := client.Ping(ctx).Err()
		if err != nil {
			logger.Warn("Redis not ready, retrying", zap.String("addr", cfg.Addr()), zap.Error(err))
		}
		return err
	}
	if err := backoff.Retry(ping, backoff.WithContext(newBackOff(), ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
