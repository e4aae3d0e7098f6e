// Package relbatch implements the relational backend's batched executor: a
// single database connection owned exclusively by a background aggregator
// goroutine, fed by a bounded queue of single-transfer requests that are
// coalesced into one bulk batch_transfers() call per round.
//
// The aggregator's ping-pong shape — callers enqueue a request plus a
// single-use reply handle, the aggregator delivers the outcome back through
// that handle — mirrors the queue/JobResult design of a generic batching
// library, hand-built here because that library's flush-on-timer-or-max-size
// semantics don't express "drain greedily until the queue is empty or the
// batch is full" (see DESIGN.md).
package relbatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerbench/ledgerbench/internal/config"
	"github.com/ledgerbench/ledgerbench/internal/workload"
)

// MaxBatchSize is the largest number of requests coalesced into one
// batch_transfers() call.
const MaxBatchSize = 8190

// queueCapacity is 2x MaxBatchSize: enough headroom that a full in-flight
// batch never blocks the next round's early arrivals.
const queueCapacity = 2 * MaxBatchSize

// request is a queued transfer plus its single-use reply handle. reply has
// capacity 1 so the aggregator never blocks delivering an outcome to a
// caller that has already given up (context canceled, handle dropped).
type request struct {
	source, dest, amount uint64
	reply                chan workload.Result
}

// Executor coalesces many concurrent Execute calls into batched
// batch_transfers() round trips over one exclusively-owned connection.
type Executor struct {
	queue     chan request
	conn      *pgx.Conn
	isolation config.IsolationLevel
	logger    *slog.Logger
	done      chan struct{}
}

// New connects a single database connection and starts the aggregator
// goroutine that owns it for the lifetime of the Executor.
func New(ctx context.Context, dsn string, isolation config.IsolationLevel, logger *slog.Logger) (*Executor, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("relbatch: connect: %w", err)
	}

	e := &Executor{
		queue:     make(chan request, queueCapacity),
		conn:      conn,
		isolation: isolation,
		logger:    logger,
		done:      make(chan struct{}),
	}

	go e.aggregate(ctx)

	return e, nil
}

// Close stops the aggregator and closes the connection. Any requests still
// queued when Close is called are processed by one final drain before the
// connection closes, matching the contract that channel closure during
// drain processes any remaining batch cleanly.
func (e *Executor) Close(ctx context.Context) {
	close(e.queue)
	<-e.done
	e.conn.Close(ctx)
}

// Execute enqueues a transfer and blocks until the aggregator delivers its
// outcome or ctx is canceled. The submit side is back-pressured: if the
// queue is at capacity, Execute suspends until room is available.
func (e *Executor) Execute(ctx context.Context, source, dest, amount uint64) (workload.Result, error) {
	req := request{source: source, dest: dest, amount: amount, reply: make(chan workload.Result, 1)}

	select {
	case e.queue <- req:
	case <-ctx.Done():
		return workload.Failed, ctx.Err()
	}

	select {
	case result := <-req.reply:
		return result, nil
	case <-ctx.Done():
		return workload.Failed, ctx.Err()
	}
}

// aggregate is the single goroutine that owns the connection. It blocks for
// the first request of a round, then greedily drains further requests
// non-blockingly up to MaxBatchSize, issues one batch_transfers() call, and
// delivers outcomes before starting the next round. It exits once the queue
// is closed and fully drained.
func (e *Executor) aggregate(ctx context.Context) {
	defer close(e.done)

	for {
		first, ok := <-e.queue
		if !ok {
			return
		}

		batch := make([]request, 0, MaxBatchSize)
		batch = append(batch, first)

		batch = drainNonBlocking(e.queue, batch)

		e.runBatch(ctx, batch)
	}
}

// drainNonBlocking opportunistically appends further queued requests to
// batch, without blocking, until the queue is empty or MaxBatchSize is
// reached, or the queue is closed.
func drainNonBlocking(queue chan request, batch []request) []request {
	for len(batch) < MaxBatchSize {
		select {
		case req, ok := <-queue:
			if !ok {
				return batch
			}

			batch = append(batch, req)
		default:
			return batch
		}
	}

	return batch
}

// runBatch transposes batch into three parallel arrays, executes one
// batch_transfers() round trip, and delivers each outcome through its reply
// handle. Sending to a reply handle whose caller has stopped listening
// (buffered, capacity 1) never blocks and is not treated as an error.
func (e *Executor) runBatch(ctx context.Context, batch []request) {
	sources := make([]int64, len(batch))
	dests := make([]int64, len(batch))
	amounts := make([]int64, len(batch))

	for i, req := range batch {
		sources[i] = int64(req.source)
		dests[i] = int64(req.dest)
		amounts[i] = int64(req.amount)
	}

	results, err := e.callBatchTransfers(ctx, sources, dests, amounts)
	if err != nil {
		e.logger.Warn("batch_transfers round failed", slog.Int("batch_size", len(batch)), slog.Any("error", err))

		deliverAll(batch, workload.Failed)

		return
	}

	if len(results) != len(batch) {
		e.logger.Warn("batch_transfers returned mismatched result length",
			slog.Int("batch_size", len(batch)), slog.Int("result_size", len(results)))

		deliverAll(batch, workload.Failed)

		return
	}

	for i, req := range batch {
		req.reply <- results[i]
	}
}

// callBatchTransfers begins a transaction at the configured isolation
// level, calls the server-side batch_transfers routine, and commits,
// rolling back on any failure to leave the connection clean for reuse.
func (e *Executor) callBatchTransfers(ctx context.Context, sources, dests, amounts []int64) ([]workload.Result, error) {
	tx, err := e.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: toPgxIsoLevel(e.isolation)})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var codes []int16

	row := tx.QueryRow(ctx, "SELECT batch_transfers($1, $2, $3)", sources, dests, amounts)
	if err := row.Scan(&codes); err != nil {
		return nil, fmt.Errorf("call batch_transfers: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	results := make([]workload.Result, len(codes))
	for i, code := range codes {
		results[i] = codeToResult(code)
	}

	return results, nil
}

func codeToResult(code int16) workload.Result {
	switch code {
	case 0:
		return workload.Success
	case 1:
		return workload.InsufficientBalance
	case 2:
		return workload.AccountNotFound
	default:
		return workload.Failed
	}
}

func toPgxIsoLevel(level config.IsolationLevel) pgx.TxIsoLevel {
	switch level {
	case config.RepeatableRead:
		return pgx.RepeatableRead
	case config.Serializable:
		return pgx.Serializable
	default:
		return pgx.ReadCommitted
	}
}

func deliverAll(batch []request, result workload.Result) {
	for _, req := range batch {
		req.reply <- result
	}
}
