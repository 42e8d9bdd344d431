package database

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/medflow/labstock/pkg/errors"
	"github.com/medflow/labstock/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return Wrap(sqlx.NewDb(raw, "postgres"), logger.Nop()), mock
}

func TestTransaction_CommitsOnSuccess(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE inventory_batches").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		_, err := tx.Exec("UPDATE inventory_batches SET remaining_quantity = 0")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	boom := stderrors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantNil  bool
	}{
		{"not a pq error", stderrors.New("x"), "", true},
		{"unique active name", &pq.Error{Code: "23505", Constraint: "uq_inventory_items_active_name"}, "CONFLICT", false},
		{"foreign key", &pq.Error{Code: "23503"}, "NOT_FOUND", false},
		{"remaining check", &pq.Error{Code: "23514", Constraint: "chk_batches_remaining_quantity"}, "VALIDATION_ERROR", false},
		{"unknown check", &pq.Error{Code: "23514", Constraint: "chk_other"}, "BAD_REQUEST", false},
		{"not null", &pq.Error{Code: "23502", Column: "name"}, "VALIDATION_ERROR", false},
		{"consumption quantity check", &pq.Error{Code: "23514", Constraint: "chk_consumptions_quantity_positive"}, "VALIDATION_ERROR", false},
		{"numeric overflow", &pq.Error{Code: "22003"}, "BAD_REQUEST", false},
		{"unmapped code", &pq.Error{Code: "40001"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPQError(tt.err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}

	conflict := MapPQError(&pq.Error{Code: "23505", Constraint: "uq_inventory_items_active_name"})
	assert.True(t, errors.IsConflict(conflict))
	assert.Equal(t, "an active item with this name already exists", conflict.Message)
}
