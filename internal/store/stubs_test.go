package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// stubDB satisfies DB, Execer and Getter. Unset funcs succeed with no rows.
type stubDB struct {
	getFn    func(ctx context.Context, dest any, query string, args ...any) error
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
	execFn   func(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s stubDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.getFn != nil {
		return s.getFn(ctx, dest, query, args...)
	}
	return nil
}

func (s stubDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.selectFn != nil {
		return s.selectFn(ctx, dest, query, args...)
	}
	return nil
}

func (s stubDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.execFn != nil {
		return s.execFn(ctx, query, args...)
	}
	return stubResult{}, nil
}

type stubResult struct {
	rows int64
}

func (r stubResult) LastInsertId() (int64, error) { return 0, nil }

func (r stubResult) RowsAffected() (int64, error) { return r.rows, nil }

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return sqlx.NewDb(conn, "sqlmock"), mock
}
