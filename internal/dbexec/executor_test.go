package dbexec

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardExecutor(t *testing.T) {
	t.Run("nil db returns error", func(t *testing.T) {
		executor := &StandardExecutor{db: nil}

		_, err := executor.QueryContext(context.Background(), "SELECT 1")
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})

	t.Run("queries pass through to the pool", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT id FROM genes").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		rows, err := NewStandardExecutor(db).QueryContext(context.Background(), "SELECT id FROM genes")
		require.NoError(t, err)
		cols, err := rows.Columns()
		require.NoError(t, err)
		assert.Equal(t, []string{"id"}, cols)
		require.NoError(t, rows.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSession(t *testing.T) {
	t.Run("acquires lazily and prepares once", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("PRAGMA query_only = ON").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectQuery("SELECT 2").WillReturnRows(sqlmock.NewRows([]string{"2"}).AddRow(2))
		mock.ExpectExec("PRAGMA query_only = OFF").WillReturnResult(sqlmock.NewResult(0, 0))

		session := NewSession(ReadOnlySessionConfig(db, "sqlite"))
		ctx := context.Background()

		rows, err := session.QueryContext(ctx, "SELECT 1")
		require.NoError(t, err)
		require.NoError(t, rows.Close())

		rows, err = session.QueryContext(ctx, "SELECT 2")
		require.NoError(t, err)
		require.NoError(t, rows.Close())

		require.NoError(t, session.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("close without queries is a no-op", func(t *testing.T) {
		session := NewSession(SessionConfig{})
		assert.NoError(t, session.Close())
		assert.NoError(t, session.Close())
	})

	t.Run("queries after close fail", func(t *testing.T) {
		session := NewSession(SessionConfig{})
		require.NoError(t, session.Close())

		_, err := session.QueryContext(context.Background(), "SELECT 1")
		assert.ErrorIs(t, err, ErrSessionClosed)
	})

	t.Run("nil db returns ErrConnDone", func(t *testing.T) {
		session := NewSession(SessionConfig{})
		_, err := session.QueryContext(context.Background(), "SELECT 1")
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})
}

func TestReadOnlySessionConfig(t *testing.T) {
	assert.Equal(t, []string{"PRAGMA query_only = ON"}, ReadOnlySessionConfig(nil, "sqlite").Setup)
	assert.Equal(t, []string{"SET SESSION TRANSACTION READ ONLY"}, ReadOnlySessionConfig(nil, "mysql").Setup)
	assert.Empty(t, ReadOnlySessionConfig(nil, "other").Setup)
}

func TestForContext(t *testing.T) {
	fallback := &StandardExecutor{}
	assert.Same(t, fallback, ForContext(context.Background(), fallback))

	session := NewSession(SessionConfig{})
	ctx := WithSession(context.Background(), session)
	assert.Same(t, session, ForContext(ctx, fallback))
}
