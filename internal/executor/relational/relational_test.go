package relational

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbench/ledgerbench/internal/config"
	"github.com/ledgerbench/ledgerbench/internal/workload"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseResult(t *testing.T) {
	logger := testLogger()

	assert.Equal(t, workload.Success, parseResult("success", logger))
	assert.Equal(t, workload.InsufficientBalance, parseResult("insufficient_balance", logger))
	assert.Equal(t, workload.AccountNotFound, parseResult("account_not_found", logger))
	assert.Equal(t, workload.Failed, parseResult("something_unexpected", logger))
	assert.Equal(t, workload.Failed, parseResult("", logger))
}

func TestIsSerializationFailure_StructuredCode(t *testing.T) {
	err := &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
	assert.True(t, isSerializationFailure(err))

	other := &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
	assert.False(t, isSerializationFailure(other))
}

func TestIsSerializationFailure_TextualFallback(t *testing.T) {
	wrapped := errors.New("driver error: 40001 serialization failure")
	assert.True(t, isSerializationFailure(wrapped))

	unrelated := errors.New("connection refused")
	assert.False(t, isSerializationFailure(unrelated))
}

func TestNew_RejectsInvalidDSN(t *testing.T) {
	_, err := New(context.Background(), "not a valid dsn \x00", 1, config.ReadCommitted, testLogger())
	require.Error(t, err)
}
