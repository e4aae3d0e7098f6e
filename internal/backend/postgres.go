package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres resets and verifies the relational backend's accounts table. It
// holds its own small connection pool, independent of the executor's pool,
// since init/reset/verify are invoked by the coordinator between runs, not
// during measurement.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres connects a small pool against dsn for administrative use.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("backend: connect postgres: %w", err)
	}

	return &Postgres{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// InitAccounts truncates the accounts/transfers tables and re-seeds
// numAccounts accounts numbered 1..=numAccounts, each with initialBalance.
// Truncation makes repeated calls idempotent in effect.
func (p *Postgres) InitAccounts(ctx context.Context, numAccounts, initialBalance uint64) error {
	p.logger.Info("initializing postgres accounts", slog.Uint64("num_accounts", numAccounts), slog.Uint64("initial_balance", initialBalance))

	// Accounts are numbered 1..=numAccounts (one-based); id 0 is reserved,
	// matching workload.Selector's account id space.
	sql := fmt.Sprintf(
		"TRUNCATE transfers, accounts CASCADE; "+
			"INSERT INTO accounts (id, balance) SELECT generate_series(1, %d), %d",
		numAccounts, initialBalance,
	)

	if _, err := p.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("backend: init accounts: %w", err)
	}

	return nil
}

// Reset returns the database to the pre-run state: re-seed accounts, run a
// statistics-update pass, then checkpoint to flush the WAL before the next
// run begins.
func (p *Postgres) Reset(ctx context.Context, numAccounts, initialBalance uint64) error {
	if err := p.InitAccounts(ctx, numAccounts, initialBalance); err != nil {
		return err
	}

	if _, err := p.pool.Exec(ctx, "VACUUM ANALYZE"); err != nil {
		return fmt.Errorf("backend: vacuum analyze: %w", err)
	}

	if _, err := p.pool.Exec(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("backend: checkpoint: %w", err)
	}

	return nil
}

// VerifyTotalBalance sums the balance column across all accounts and
// compares it to expectedTotal.
func (p *Postgres) VerifyTotalBalance(ctx context.Context, expectedTotal uint64) (bool, error) {
	var actual uint64

	row := p.pool.QueryRow(ctx, "SELECT COALESCE(SUM(balance), 0) FROM accounts")
	if err := row.Scan(&actual); err != nil {
		return false, fmt.Errorf("backend: verify total balance: %w", err)
	}

	ok := actual == expectedTotal
	if ok {
		p.logger.Info("balance verification passed", slog.Uint64("total", actual))
	} else {
		p.logger.Error("balance verification failed", slog.Uint64("expected", expectedTotal), slog.Uint64("actual", actual))
	}

	return ok, nil
}
