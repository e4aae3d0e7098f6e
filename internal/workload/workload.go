// Package workload generates the transfer requests driven against a backend
// executor: account pairs under a configurable Zipfian skew, and amounts
// uniformly drawn from a configured range.
package workload

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Result is the outcome of a single transfer attempt. Every execute call
// yields exactly one Result; Failed is terminal and is never retried by a
// runner.
type Result int

const (
	// Success indicates the transfer committed.
	Success Result = iota
	// InsufficientBalance indicates the source account lacked funds.
	InsufficientBalance
	// AccountNotFound indicates source or destination does not exist.
	AccountNotFound
	// Failed indicates an unrecoverable error (after any retries).
	Failed
)

// String renders the result using the same labels used for metrics.
func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case InsufficientBalance:
		return "insufficient_balance"
	case AccountNotFound:
		return "account_not_found"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request is a single transfer triple. Source and Dest are one-based
// logical account ids in [1, numAccounts]; Source != Dest is an invariant
// enforced by Selector.
type Request struct {
	Source uint64
	Dest   uint64
	Amount uint64
}

// Selector produces account pairs for transfers under a Zipfian
// distribution over the account id space. Exponent 0 is uniform; higher
// exponents bias selection toward low-numbered (hot) accounts.
//
// Selector holds only the precomputed cumulative distribution — it carries
// no RNG state of its own, so a single Selector can be shared (read-only)
// across every worker's goroutine. Each worker supplies its own *rand.Rand
// to SelectPair, matching the requirement that per-worker RNGs avoid
// contention on a shared entropy source.
type Selector struct {
	numAccounts uint64
	cumulative  []float64 // cumulative[i] = sum of weights for ids 1..i+1
	total       float64
}

// NewSelector builds a Selector over numAccounts accounts (numAccounts must
// be >= 2 — Request invariants require distinct source and destination).
// The cumulative-weight table is built once here, in O(numAccounts); per-call
// sampling is O(log numAccounts) via binary search, independent of any
// shared RNG state.
func NewSelector(numAccounts uint64, zipfianExponent float64) (*Selector, error) {
	if numAccounts < 2 {
		return nil, fmt.Errorf("workload: num_accounts must be >= 2, got %d", numAccounts)
	}

	if math.IsNaN(zipfianExponent) || math.IsInf(zipfianExponent, 0) || zipfianExponent < 0 {
		return nil, fmt.Errorf("workload: zipfian_exponent must be finite and >= 0, got %v", zipfianExponent)
	}

	cumulative := make([]float64, numAccounts)

	var running float64

	for i := uint64(0); i < numAccounts; i++ {
		weight := 1.0
		if zipfianExponent != 0 {
			weight = 1.0 / math.Pow(float64(i+1), zipfianExponent)
		}

		running += weight
		cumulative[i] = running
	}

	return &Selector{numAccounts: numAccounts, cumulative: cumulative, total: running}, nil
}

// selectAccount draws a single account id in [1, numAccounts] by sampling a
// point uniformly in [0, total) and locating its bucket. The clamp to
// numAccounts guards against a sample landing exactly on the upper boundary
// due to floating-point rounding in rng.Float64()*total.
func (s *Selector) selectAccount(rng *rand.Rand) uint64 {
	point := rng.Float64() * s.total

	idx := sort.Search(len(s.cumulative), func(i int) bool {
		return s.cumulative[i] > point
	})

	account := uint64(idx) + 1
	if account > s.numAccounts {
		account = s.numAccounts
	}

	return account
}

// SelectPair returns (source, dest) with source != dest, both in
// [1, numAccounts]. With only two accounts the rejection loop is bounded in
// expectation (under exponent 0, one in two draws collides; under skew,
// redraws for the hot source collide more often).
func (s *Selector) SelectPair(rng *rand.Rand) (source, dest uint64) {
	source = s.selectAccount(rng)
	dest = s.selectAccount(rng)

	for dest == source {
		dest = s.selectAccount(rng)
	}

	return source, dest
}

// AmountGenerator draws transfer amounts uniformly from [Min, Max].
type AmountGenerator struct {
	Min, Max uint64
}

// NewAmountGenerator validates Min <= Max and returns a generator.
func NewAmountGenerator(minAmount, maxAmount uint64) (*AmountGenerator, error) {
	if minAmount > maxAmount {
		return nil, fmt.Errorf("workload: min_transfer_amount (%d) must be <= max_transfer_amount (%d)", minAmount, maxAmount)
	}

	return &AmountGenerator{Min: minAmount, Max: maxAmount}, nil
}

// Amount draws a uniform integer amount in [Min, Max] inclusive.
func (g *AmountGenerator) Amount(rng *rand.Rand) uint64 {
	if g.Min == g.Max {
		return g.Min
	}

	span := g.Max - g.Min
	if span == math.MaxUint64 {
		return rng.Uint64()
	}

	return g.Min + rng.Uint64N(span+1)
}

// NewRand returns a new per-worker random source seeded from the process
// entropy source. Call once per worker goroutine; math/rand/v2's PCG is not
// safe for concurrent use, so each worker must own its instance.
func NewRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
