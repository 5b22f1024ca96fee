package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertMissing_EmptyRows(t *testing.T) {
	t.Parallel()

	n, err := InsertMissing(context.Background(), nil, SeedConfig{
		Table:        "lifecycle_items",
		Columns:      []string{"contractor_id", "kind", "item_type"},
		ConflictKeys: []string{"contractor_id", "kind", "item_type"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestInsertMissing_NoColumns(t *testing.T) {
	t.Parallel()

	_, err := InsertMissing(context.Background(), nil, SeedConfig{
		Table:        "lifecycle_items",
		ConflictKeys: []string{"contractor_id"},
	}, [][]any{{"c1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestInsertMissing_NoConflictKeys(t *testing.T) {
	t.Parallel()

	_, err := InsertMissing(context.Background(), nil, SeedConfig{
		Table:   "lifecycle_items",
		Columns: []string{"contractor_id"},
	}, [][]any{{"c1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestInsertMissing_Flow(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE _tmp_seed_lifecycle_items`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_seed_lifecycle_items"}, []string{"contractor_id", "kind", "item_type", "status"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "lifecycle_items" .* ON CONFLICT .* DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := InsertMissing(context.Background(), mock, SeedConfig{
		Table:        "lifecycle_items",
		Columns:      []string{"contractor_id", "kind", "item_type", "status"},
		ConflictKeys: []string{"contractor_id", "kind", "item_type"},
	}, [][]any{
		{"c1", "onboarding_step", "invite_accepted", "pending"},
		{"c1", "onboarding_step", "contract_signed", "pending"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"lifecycle.items", `"lifecycle"."items"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"contractor_id", "kind", "item_type"`,
		quoteAndJoin([]string{"contractor_id", "kind", "item_type"}))
}
