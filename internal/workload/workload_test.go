package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_UniformRange(t *testing.T) {
	sel, err := NewSelector(1000, 0.0)
	require.NoError(t, err)

	rng := NewRand()

	for range 200 {
		source, dest := sel.SelectPair(rng)
		assert.GreaterOrEqual(t, source, uint64(1))
		assert.LessOrEqual(t, source, uint64(1000))
		assert.GreaterOrEqual(t, dest, uint64(1))
		assert.LessOrEqual(t, dest, uint64(1000))
		assert.NotEqual(t, source, dest, "source and destination must differ")
	}
}

func TestSelector_SkewedTowardLowIDs(t *testing.T) {
	sel, err := NewSelector(1000, 1.5)
	require.NoError(t, err)

	rng := NewRand()

	var lowCount int

	for range 2000 {
		source, _ := sel.SelectPair(rng)
		if source <= 100 {
			lowCount++
		}
	}

	assert.Greater(t, lowCount, 1000, "expected a strong skew toward low account ids")
}

func TestSelector_TwoAccountsTerminates(t *testing.T) {
	sel, err := NewSelector(2, 0.0)
	require.NoError(t, err)

	rng := NewRand()

	for range 500 {
		source, dest := sel.SelectPair(rng)
		assert.NotEqual(t, source, dest)
		assert.Contains(t, []uint64{1, 2}, source)
		assert.Contains(t, []uint64{1, 2}, dest)
	}
}

func TestSelector_RejectsTooFewAccounts(t *testing.T) {
	_, err := NewSelector(1, 0.0)
	require.Error(t, err)
}

func TestSelector_RejectsInvalidExponent(t *testing.T) {
	_, err := NewSelector(10, -1.0)
	require.Error(t, err)

	_, err = NewSelector(10, 0.0)
	require.NoError(t, err)
}

func TestAmountGenerator_Range(t *testing.T) {
	gen, err := NewAmountGenerator(1, 1000)
	require.NoError(t, err)

	rng := NewRand()

	for range 200 {
		amount := gen.Amount(rng)
		assert.GreaterOrEqual(t, amount, uint64(1))
		assert.LessOrEqual(t, amount, uint64(1000))
	}
}

func TestAmountGenerator_FixedAmount(t *testing.T) {
	gen, err := NewAmountGenerator(50, 50)
	require.NoError(t, err)

	rng := NewRand()
	assert.Equal(t, uint64(50), gen.Amount(rng))
}

func TestNewAmountGenerator_RejectsInvertedRange(t *testing.T) {
	_, err := NewAmountGenerator(1000, 1)
	require.Error(t, err)
}

func TestResult_String(t *testing.T) {
	cases := map[Result]string{
		Success:             "success",
		InsufficientBalance: "insufficient_balance",
		AccountNotFound:     "account_not_found",
		Failed:              "failed",
	}

	for result, want := range cases {
		assert.Equal(t, want, result.String())
	}
}
