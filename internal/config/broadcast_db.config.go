package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDB creates the PostgreSQL connection pool, retrying while the
// database comes up so container start order does not matter.
func ConnectDB() (*pgxpool.Pool, error) {
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
	)

	log.Printf("[DB] Connecting to database: host=%s port=%s db=%s user=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_USER"),
	)

	maxConns := getEnvAsInt("DB_MAX_CONNS", 20)
	minConns := getEnvAsInt("DB_MIN_CONNS", 2)

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolConfig.MaxConns = int32(maxConns)
	poolConfig.MinConns = int32(minConns)
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	var dbpool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		dbpool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			err = dbpool.Ping(ctx)
		}
		cancel()
		if err == nil {
			log.Printf("[DB] Connected. Pool: max_conns=%d min_conns=%d", maxConns, minConns)
			return dbpool, nil
		}

		wait := time.Duration(attempt) * 2 * time.Second
		log.Printf("[DB] Connection attempt %d failed: %v (retrying in %s)", attempt, err, wait)
		time.Sleep(wait)
	}

	return nil, fmt.Errorf("database unreachable: %w", err)
}
