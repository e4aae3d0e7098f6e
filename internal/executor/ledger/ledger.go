// Package ledger wraps the accounting engine's native batched client behind
// the single-transfer executor contract, mapping its domain error kinds
// onto the common outcome taxonomy.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"github.com/ledgerbench/ledgerbench/internal/workload"
)

// ledgerID and transferCode are fixed constants for every transfer this
// harness issues; the backend does not use them to distinguish workloads,
// only to tag records for audit.
const (
	ledgerID     uint32 = 1
	transferCode uint16 = 1
)

// Executor wraps a tigerbeetle-go Client. The client is internally
// synchronized for concurrent submission, so a single Executor value is
// shared by reference across every worker.
type Executor struct {
	client tb.Client
	logger *slog.Logger
}

// New connects to the accounting engine cluster at the given addresses.
func New(addresses []string, logger *slog.Logger) (*Executor, error) {
	client, err := tb.NewClient(tbtypes.ToUint128(0), addresses)
	if err != nil {
		return nil, fmt.Errorf("ledger: connect: %w", err)
	}

	return &Executor{client: client, logger: logger}, nil
}

// Close releases the client's resources.
func (e *Executor) Close() {
	e.client.Close()
}

// Execute constructs and submits one transfer record with a freshly
// generated 128-bit id, then maps the backend's result code to the common
// outcome taxonomy.
func (e *Executor) Execute(ctx context.Context, source, dest, amount uint64) (workload.Result, error) {
	transfer := tbtypes.Transfer{
		ID:              uuidToUint128(uuid.New()),
		DebitAccountID:  tbtypes.ToUint128(source),
		CreditAccountID: tbtypes.ToUint128(dest),
		Amount:          tbtypes.ToUint128(amount),
		Ledger:          ledgerID,
		Code:            transferCode,
	}

	results, err := e.client.CreateTransfers([]tbtypes.Transfer{transfer})
	if err != nil {
		return workload.Failed, fmt.Errorf("ledger: create transfer: %w", err)
	}

	if len(results) == 0 {
		return workload.Success, nil
	}

	return mapResult(results[0].Result, e.logger), nil
}

// mapResult translates a single-transfer result code into the common
// outcome taxonomy, per the error-kind mapping table: ExceedsCredits and
// ExceedsDebits become InsufficientBalance; the two not-found kinds become
// AccountNotFound; every other API error becomes Failed.
func mapResult(result tbtypes.TransferResult, logger *slog.Logger) workload.Result {
	switch result {
	case tbtypes.TransferExceedsCredits, tbtypes.TransferExceedsDebits:
		return workload.InsufficientBalance
	case tbtypes.TransferDebitAccountNotFound, tbtypes.TransferCreditAccountNotFound:
		return workload.AccountNotFound
	default:
		logger.Warn("transfer rejected by ledger backend", slog.Any("result", result))

		return workload.Failed
	}
}

// uuidToUint128 reinterprets a UUID's 16 bytes as the backend's 128-bit id
// type; both are 16-byte values with no further structure the backend
// requires, so the bytes carry over directly.
func uuidToUint128(id uuid.UUID) tbtypes.Uint128 {
	return tbtypes.BytesToUint128(id[:])
}
