package backend

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
)

// fundingBatchSize is the per-call transfer batch limit (8189, one under
// the backend's hard 8190 cap, for safety margin).
const fundingBatchSize = 8189

// bankAccountID is the constraint-free account every user account is
// funded from, standing in for the recommended 2^128-2 id on a backend
// with 128-bit account ids; math.MaxUint64-1 is the 64-bit analogue used
// throughout this harness.
const bankAccountID = math.MaxUint64 - 1

const (
	ledgerID     uint32 = 1
	transferCode uint16 = 1
)

// Ledger adapts the accounting engine's client to the Backend interface.
// Since the backend forbids setting an account balance directly, init
// creates one constraint-free funding account and issues one funding
// transfer per user account.
type Ledger struct {
	client       tb.Client
	logger       *slog.Logger
	accountCount uint64
}

// NewLedger connects a client against the given cluster addresses.
func NewLedger(addresses []string, logger *slog.Logger) (*Ledger, error) {
	client, err := tb.NewClient(tbtypes.ToUint128(0), addresses)
	if err != nil {
		return nil, fmt.Errorf("backend: connect ledger: %w", err)
	}

	return &Ledger{client: client, logger: logger}, nil
}

// Close releases the client's resources.
func (l *Ledger) Close() {
	l.client.Close()
}

// InitAccounts creates numAccounts accounts flagged
// DebitsMustNotExceedCredits, a bank account without that constraint, then
// funds every user account from the bank in batches of fundingBatchSize.
// Accounts that already exist are accepted (Exists is not treated as an
// error), making repeated calls idempotent in effect.
func (l *Ledger) InitAccounts(ctx context.Context, numAccounts, initialBalance uint64) error {
	l.logger.Info("initializing ledger accounts", slog.Uint64("num_accounts", numAccounts), slog.Uint64("initial_balance", initialBalance))

	if err := l.createUserAccounts(ctx, numAccounts); err != nil {
		return err
	}

	if err := l.createBankAccount(ctx); err != nil {
		return err
	}

	if err := l.fundAccounts(ctx, numAccounts, initialBalance); err != nil {
		return err
	}

	l.accountCount = numAccounts

	return nil
}

// createUserAccounts creates accounts numbered 1..=numAccounts (one-based;
// id 0 is reserved, matching workload.Selector's account id space).
func (l *Ledger) createUserAccounts(ctx context.Context, numAccounts uint64) error {
	for start := uint64(1); start <= numAccounts; start += fundingBatchSize {
		end := min(start+fundingBatchSize-1, numAccounts)

		accounts := make([]tbtypes.Account, 0, end-start+1)
		for id := start; id <= end; id++ {
			accounts = append(accounts, tbtypes.Account{
				ID:     tbtypes.ToUint128(id),
				Ledger: ledgerID,
				Code:   transferCode,
				Flags:  tbtypes.AccountFlags{DebitsMustNotExceedCredits: true}.ToUint16(),
			})
		}

		results, err := l.client.CreateAccounts(accounts)
		if err != nil {
			return fmt.Errorf("backend: create accounts: %w", err)
		}

		for _, r := range results {
			if r.Result != tbtypes.AccountOK && r.Result != tbtypes.AccountExists {
				l.logger.Warn("account creation error", slog.Uint64("index", uint64(r.Index)), slog.Any("result", r.Result))
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

func (l *Ledger) createBankAccount(ctx context.Context) error {
	results, err := l.client.CreateAccounts([]tbtypes.Account{{
		ID:     tbtypes.ToUint128(bankAccountID),
		Ledger: ledgerID,
		Code:   transferCode,
	}})
	if err != nil {
		return fmt.Errorf("backend: create bank account: %w", err)
	}

	for _, r := range results {
		if r.Result != tbtypes.AccountOK && r.Result != tbtypes.AccountExists {
			l.logger.Warn("bank account creation error", slog.Any("result", r.Result))
		}
	}

	return ctx.Err()
}

func (l *Ledger) fundAccounts(ctx context.Context, numAccounts, initialBalance uint64) error {
	for start := uint64(1); start <= numAccounts; start += fundingBatchSize {
		end := min(start+fundingBatchSize-1, numAccounts)

		// Each funding transfer's id is its account's id, so a repeated call
		// resubmits the same transfers and the backend reports them as
		// already existing instead of crediting the accounts again.
		transfers := make([]tbtypes.Transfer, 0, end-start+1)
		for id := start; id <= end; id++ {
			transfers = append(transfers, tbtypes.Transfer{
				ID:              tbtypes.ToUint128(id),
				DebitAccountID:  tbtypes.ToUint128(bankAccountID),
				CreditAccountID: tbtypes.ToUint128(id),
				Amount:          tbtypes.ToUint128(initialBalance),
				Ledger:          ledgerID,
				Code:            transferCode,
			})
		}

		if _, err := l.client.CreateTransfers(transfers); err != nil {
			return fmt.Errorf("backend: fund accounts %d-%d: %w", start, end, err)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

// Reset re-runs InitAccounts. It does not restart the storage process, so
// balances and transfers left by a previous run are not cleared; restarting
// that external process is left to the coordinator, which calls
// InitAccounts again after its own restart hook.
func (l *Ledger) Reset(ctx context.Context, numAccounts, initialBalance uint64) error {
	return l.InitAccounts(ctx, numAccounts, initialBalance)
}

// VerifyTotalBalance sums (credits_posted - debits_posted) across every
// user account created by the most recent InitAccounts call (the bank
// account is intentionally excluded, since its balance trends negative by
// design) and compares it to expectedTotal.
func (l *Ledger) VerifyTotalBalance(ctx context.Context, expectedTotal uint64) (bool, error) {
	numAccounts := l.accountCount

	var total uint64

	var found uint64

	for start := uint64(1); start <= numAccounts; start += fundingBatchSize {
		end := min(start+fundingBatchSize-1, numAccounts)

		ids := make([]tbtypes.Uint128, 0, end-start+1)
		for id := start; id <= end; id++ {
			ids = append(ids, tbtypes.ToUint128(id))
		}

		accounts, err := l.client.LookupAccounts(ids)
		if err != nil {
			return false, fmt.Errorf("backend: lookup accounts: %w", err)
		}

		found += uint64(len(accounts))

		for _, a := range accounts {
			total += saturatingSub(uint128ToUint64(a.CreditsPosted), uint128ToUint64(a.DebitsPosted))
		}
	}

	if found != numAccounts {
		l.logger.Warn("account count mismatch during verification", slog.Uint64("expected", numAccounts), slog.Uint64("found", found))
	}

	ok := total == expectedTotal
	if ok {
		l.logger.Info("balance verification passed", slog.Uint64("total", total))
	} else {
		l.logger.Error("balance verification failed", slog.Uint64("expected", expectedTotal), slog.Uint64("actual", total))
	}

	return ok, nil
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}

	return a - b
}

// uint128ToUint64 truncates a Uint128 balance to its low 64 bits. Balances
// in this harness never approach 2^64, since initial_balance and transfer
// amounts are themselves uint64-bounded by workload.AmountGenerator.
func uint128ToUint64(v tbtypes.Uint128) uint64 {
	b := v.Bytes()

	var low uint64
	for i := 7; i >= 0; i-- {
		low = low<<8 | uint64(b[i])
	}

	return low
}

func uuidToUint128(id uuid.UUID) tbtypes.Uint128 {
	return tbtypes.BytesToUint128(id[:])
}
