package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresPingTimeout = 5 * time.Second

// ProvidePostgres opens the pool behind every store. The returned cleanup
// closes it.
func ProvidePostgres(loggerFactory *LoggerFactory) (*sql.DB, func(), error) {
	logger := loggerFactory.Create("Postgres").Sugar()

	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		logger.Errorf("DATABASE_URL is not set")
		return nil, nil, errors.New("missing DATABASE_URL")
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), postgresPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logger.Errorf("cannot ping postgres %v", err)
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Infof("postgres connected")
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Errorf("cannot close postgres %v", err)
		}
	}, nil
}
