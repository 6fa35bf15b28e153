package resolver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"moalmanac-api/internal/dbexec"
)

type fakeRows struct {
	columns []string
	rows    [][]any
	idx     int
	err     error
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.rows) {
		return errors.New("scan called without advancing rows")
	}
	row := r.rows[r.idx-1]
	if len(row) != len(dest) {
		return fmt.Errorf("scan row has %d values, dest has %d", len(row), len(dest))
	}
	for i, value := range row {
		d, ok := dest[i].(*interface{})
		if !ok {
			return fmt.Errorf("unsupported scan dest %T", dest[i])
		}
		*d = value
	}
	return nil
}

func (r *fakeRows) Columns() ([]string, error) {
	return r.columns, nil
}

func (r *fakeRows) Err() error {
	return r.err
}

func (r *fakeRows) Close() error {
	return nil
}

type fakeExecutor struct {
	columns   []string
	responses [][][]any
	calls     int
	args      [][]any
}

func (e *fakeExecutor) QueryContext(_ context.Context, _ string, args ...any) (dbexec.Rows, error) {
	e.calls++
	e.args = append(e.args, args)
	idx := e.calls - 1
	if idx >= len(e.responses) {
		return &fakeRows{columns: e.columns}, nil
	}
	return &fakeRows{columns: e.columns, rows: e.responses[idx]}, nil
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return db, mock
}

func expectQuery(t *testing.T, mock sqlmock.Sqlmock, sql string, args []interface{}, rows *sqlmock.Rows) {
	t.Helper()

	expectation := mock.ExpectQuery(regexp.QuoteMeta(sql))
	if len(args) > 0 {
		expectation = expectation.WithArgs(toDriverValues(args)...)
	}
	expectation.WillReturnRows(rows)
}

func toDriverValues(args []interface{}) []driver.Value {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg
	}
	return values
}
