package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bettabuckz/internal/config"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const maxTxAttempts = 5

type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type SQLXTxRunner struct {
	db *sqlx.DB
}

func NewTxRunner(db *sqlx.DB) SQLXTxRunner {
	return SQLXTxRunner{db: db}
}

func (r SQLXTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return WithTx(ctx, r.db, fn)
}

func Connect(cfg config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

var serializationRetry = retrypolicy.NewBuilder[any]().
	HandleIf(func(_ any, err error) bool { return IsRetryable(err) }).
	WithMaxAttempts(maxTxAttempts).
	WithBackoff(20*time.Millisecond, 500*time.Millisecond).
	WithJitterFactor(0.1).
	ReturnLastFailure().
	Build()

// WithTx runs fn in a SERIALIZABLE transaction, re-running the whole
// transaction on serialization failures and deadlocks.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	return failsafe.With[any](serializationRetry).WithContext(ctx).Run(func() error {
		return runTx(ctx, db, fn)
	})
}

func runTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func IsRetryable(err error) bool {
	return hasCode(err, "40001", "40P01")
}

func IsUniqueViolation(err error) bool {
	return hasCode(err, "23505")
}

func IsForeignKeyViolation(err error) bool {
	return hasCode(err, "23503")
}

func IsCheckViolation(err error) bool {
	return hasCode(err, "23514")
}

func hasCode(err error, codes ...pq.ErrorCode) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	for _, code := range codes {
		if pqErr.Code == code {
			return true
		}
	}
	return false
}
