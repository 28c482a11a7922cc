package stmtcache

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect Dialect
		start   int
		n       int
		want    string
	}{
		{name: "postgres numbered", dialect: Postgres, start: 1, n: 3, want: "$1,$2,$3"},
		{name: "postgres offset", dialect: Postgres, start: 4, n: 2, want: "$4,$5"},
		{name: "sqlite positional", dialect: SQLite, start: 1, n: 3, want: "?,?,?"},
		{name: "sqlite offset ignored", dialect: SQLite, start: 7, n: 2, want: "?,?"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.dialect.Placeholders(tt.start, tt.n))
		})
	}
}

func TestGetPreparesOncePerKey(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	query := "SELECT id FROM comments WHERE rid IN ($1,$2)"
	mock.ExpectPrepare(regexp.QuoteMeta(query))

	c := New(db, Postgres)
	builds := 0
	build := func(d Dialect) string {
		builds++
		return fmt.Sprintf("SELECT id FROM comments WHERE rid IN (%s)", d.Placeholders(1, 2))
	}

	first, err := c.Get(context.Background(), CountKey("replies_in", 2), build)
	require.NoError(t, err)

	second, err := c.Get(context.Background(), CountKey("replies_in", 2), build)
	require.NoError(t, err)

	// Equal keys yield the same statement pointer and a single preparation.
	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDistinctKeysPrepareSeparately(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPrepare(regexp.QuoteMeta("SELECT id FROM comments WHERE rid IN ($1)"))
	mock.ExpectPrepare(regexp.QuoteMeta("SELECT id FROM comments WHERE rid IN ($1,$2,$3)"))

	c := New(db, Postgres)
	build := func(n int) func(Dialect) string {
		return func(d Dialect) string {
			return fmt.Sprintf("SELECT id FROM comments WHERE rid IN (%s)", d.Placeholders(1, n))
		}
	}

	one, err := c.Get(context.Background(), CountKey("replies_in", 1), build(1))
	require.NoError(t, err)
	three, err := c.Get(context.Background(), CountKey("replies_in", 3), build(3))
	require.NoError(t, err)

	assert.NotSame(t, one, three)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDoesNotCacheFailedPreparation(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPrepare("SELECT broken").WillReturnError(fmt.Errorf("syntax error"))
	mock.ExpectPrepare("SELECT broken")

	c := New(db, Postgres)
	build := func(Dialect) string { return "SELECT broken" }

	_, err = c.Get(context.Background(), "broken", build)
	require.Error(t, err)

	// The next call re-attempts preparation instead of serving the failure.
	_, err = c.Get(context.Background(), "broken", build)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizeFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields []string
		want   []string
	}{
		{name: "sorted", fields: []string{"top", "body", "is_spam"}, want: []string{"body", "is_spam", "top"}},
		{name: "duplicates dropped", fields: []string{"nick", "nick", "body"}, want: []string{"body", "nick"}},
		{name: "empty", fields: nil, want: []string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeFields(tt.fields))
		})
	}
}

func TestFieldsKeyOrderInsensitive(t *testing.T) {
	t.Parallel()

	a := FieldsKey("update", NormalizeFields([]string{"top", "body"}))
	b := FieldsKey("update", NormalizeFields([]string{"body", "top"}))
	assert.Equal(t, a, b)
}
