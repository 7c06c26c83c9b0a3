package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"mealshare-backend/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Transactor runs fn inside one database transaction. Any error returned by
// fn rolls the whole transaction back.
type Transactor interface {
	WithTx(ctx context.Context, fn func(Querier) error) error
}

type DB struct {
	Pool *pgxpool.Pool
}

//go:embed schema.sql
var schema string

func New(ctx context.Context, databaseURL string) (*DB, error) {
	zap.L().Info("Initializing database connection pool")
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		zap.L().Error("Failed to create connection pool", zap.Error(err))
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		zap.L().Error("Failed to ping database", zap.Error(err))
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	zap.L().Info("Database connection established successfully")
	return &DB{Pool: pool}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	zap.L().Info("Applying database schema")
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

func (db *DB) Close() {
	zap.L().Info("Closing database connection pool")
	db.Pool.Close()
}

type purposeKey struct{}

// WithPurpose labels the transactions started under ctx, e.g. "payout.request".
// The label shows up in transaction logs and the ledger tx metrics.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

func Purpose(ctx context.Context) string {
	if p, ok := ctx.Value(purposeKey{}).(string); ok && p != "" {
		return p
	}
	return "unlabelled"
}

func (db *DB) WithTx(ctx context.Context, fn func(Querier) error) error {
	purpose := Purpose(ctx)
	log := zap.L().With(zap.String("tx_id", uuid.New().String()), zap.String("purpose", purpose))
	startTime := time.Now()
	outcome := "rollback"
	defer func() {
		metrics.LedgerTxDuration.WithLabelValues(purpose, outcome).Observe(time.Since(startTime).Seconds())
	}()

	log.Debug("Beginning transaction")

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		outcome = "begin_failed"
		log.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("beginning %s transaction: %w", purpose, err)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("Recovered from panic in transaction", zap.Any("panic", p))
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			log.Warn("Rolling back transaction due to error", zap.Error(err))
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	err = fn(tx)
	if err != nil {
		return err
	}

	if cErr := tx.Commit(ctx); cErr != nil {
		log.Error("Failed to commit transaction", zap.Error(cErr))
		return fmt.Errorf("committing %s transaction: %w", purpose, cErr)
	}

	outcome = "commit"
	log.Debug("Transaction committed", zap.Duration("duration", time.Since(startTime)))
	return nil
}
