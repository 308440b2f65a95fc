package postgres

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow scans a fixed list of values into the destinations.
type mockRow struct {
	values []any
	err    error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) != len(m.values) {
		return errors.New("mockRow: column count mismatch")
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if m.values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(m.values[i]))
	}
	return nil
}

type mockCall struct {
	sql  string
	args []any
}

// mockQuerier records statements and answers QueryRow from a queue.
type mockQuerier struct {
	mu       sync.Mutex
	rows     []*mockRow
	execTags []string
	calls    []mockCall
}

func (m *mockQuerier) GetQuerier(context.Context) Querier { return m }

func (m *mockQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mockCall{sql, args})
	tag := "UPDATE 1"
	if len(m.execTags) > 0 {
		tag, m.execTags = m.execTags[0], m.execTags[1:]
	}
	return pgconn.NewCommandTag(tag), nil
}

func (m *mockQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("mockQuerier: Query not supported")
}

func (m *mockQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mockCall{sql, args})
	if len(m.rows) == 0 {
		return &mockRow{err: pgx.ErrNoRows}
	}
	row := m.rows[0]
	m.rows = m.rows[1:]
	return row
}
