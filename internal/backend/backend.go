// Package backend implements the collaborator interface an external
// orchestrator uses between runs: seed accounts, verify the ledger balances
// back out, and reset to the pre-run state.
package backend

import "context"

// Backend is the external interface named in the harness design, invoked
// by the coordinator between client runs. Implementations are provided per
// database type; the core workload engine never calls these methods
// directly.
type Backend interface {
	// InitAccounts ensures numAccounts accounts exist, each with
	// initialBalance. Idempotent in effect: calling it twice yields the
	// same account set and balances.
	InitAccounts(ctx context.Context, numAccounts, initialBalance uint64) error

	// Reset returns the backend to the pre-run state.
	Reset(ctx context.Context, numAccounts, initialBalance uint64) error

	// VerifyTotalBalance computes the sum of live balances across all
	// accounts and compares it to expectedTotal.
	VerifyTotalBalance(ctx context.Context, expectedTotal uint64) (bool, error)
}
