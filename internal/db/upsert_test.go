package db

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var factorUpsert = UpsertConfig{
	Table:        "emission_factors",
	Columns:      []string{"transport_mode", "factor_per_km_kg", "updated_at"},
	ConflictKeys: []string{"transport_mode"},
}

func TestBuildUpsert(t *testing.T) {
	sql, err := BuildUpsert(factorUpsert)
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "emission_factors" ("transport_mode", "factor_per_km_kg", "updated_at") VALUES ($1, $2, $3) `+
			`ON CONFLICT ("transport_mode") DO UPDATE SET "factor_per_km_kg" = EXCLUDED."factor_per_km_kg", "updated_at" = EXCLUDED."updated_at"`,
		sql)
}

func TestBuildUpsert_DoNothingWhenNoUpdateCols(t *testing.T) {
	sql, err := BuildUpsert(UpsertConfig{
		Table:        "public.tags",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "public"."tags" ("id") VALUES ($1) ON CONFLICT ("id") DO NOTHING`, sql)
}

func TestBuildUpsert_Invalid(t *testing.T) {
	_, err := BuildUpsert(UpsertConfig{Table: "t", ConflictKeys: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = BuildUpsert(UpsertConfig{Table: "t", Columns: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestUpsert_EmptyRows(t *testing.T) {
	n, err := Upsert(context.Background(), nil, factorUpsert, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestUpsert_CommitsAllRows(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "emission_factors"`).
		WithArgs("ground", 0.1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO "emission_factors"`).
		WithArgs("air", 0.5, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := Upsert(context.Background(), mock, factorUpsert, [][]any{
		{"ground", 0.1, "now"},
		{"air", 0.5, "now"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "emission_factors"`).
		WithArgs("ground", -1.0, pgxmock.AnyArg()).
		WillReturnError(errors.New("violates check constraint"))
	mock.ExpectRollback()

	_, err = Upsert(context.Background(), mock, factorUpsert, [][]any{{"ground", -1.0, "now"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: upsert into emission_factors")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_RowWidthMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = Upsert(context.Background(), mock, factorUpsert, [][]any{{"ground"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has 1 values, want 3")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.calculations", `"public"."calculations"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}
