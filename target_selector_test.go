package conjecture

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func validData(buf byte) *Data {
	d := NewData(nil, 100, int(buf), nil)
	d.buffer = []byte{buf}
	d.SetStatus(Valid)
	return d
}

func invalidData(buf byte) *Data {
	d := NewData(nil, 100, int(buf), nil)
	d.buffer = []byte{buf}
	d.SetStatus(Invalid)
	return d
}

// TestPoolBoundIsRespected checks property 5: |fresh| + |used| never
// exceeds PoolSize, across a long sequence of Add/Select calls.
func TestPoolBoundIsRespected(t *testing.T) {
	rnd := rand.New(rand.NewSource(21))
	sel := NewTargetSelector(rnd)

	for i := 0; i < 1000; i++ {
		sel.Add(validData(byte(i)))
		require.LessOrEqual(t, len(sel.fresh)+len(sel.used), PoolSize)

		if rnd.Intn(3) == 0 && !sel.Empty() {
			sel.Select()
			require.LessOrEqual(t, len(sel.fresh)+len(sel.used), PoolSize)
		}
	}
}

func TestInterestingExamplesAreIgnored(t *testing.T) {
	sel := NewTargetSelector(rand.New(rand.NewSource(1)))
	interesting := NewData(nil, 100, 1, nil)
	interesting.SetStatus(Interesting)
	sel.Add(interesting)
	require.True(t, sel.Empty())
}

// TestBestStatusUpgradeClearsPool checks the second half of property 5: a
// status strictly exceeding the current best empties both partitions.
func TestBestStatusUpgradeClearsPool(t *testing.T) {
	sel := NewTargetSelector(rand.New(rand.NewSource(2)))
	for i := 0; i < 5; i++ {
		sel.Add(invalidData(byte(i)))
	}
	require.Equal(t, 5, len(sel.fresh))
	require.Equal(t, Invalid, sel.bestStatus)

	sel.Add(validData(99)) // VALID > INVALID: upgrade
	require.Equal(t, Valid, sel.bestStatus)
	require.Equal(t, 1, len(sel.fresh)+len(sel.used))
}

func TestWorseStatusIsDiscarded(t *testing.T) {
	sel := NewTargetSelector(rand.New(rand.NewSource(3)))
	sel.Add(validData(1))
	sel.Add(invalidData(2)) // worse than VALID: discarded
	require.Equal(t, 1, len(sel.fresh)+len(sel.used))
	require.Equal(t, Valid, sel.bestStatus)
}

func TestSelectMovesFreshToUsed(t *testing.T) {
	sel := NewTargetSelector(rand.New(rand.NewSource(4)))
	sel.Add(validData(1))
	require.Equal(t, 1, len(sel.fresh))
	require.Equal(t, 0, len(sel.used))

	got := sel.Select()
	require.NotNil(t, got)
	require.Equal(t, 0, len(sel.fresh))
	require.Equal(t, 1, len(sel.used))
}

func TestSelectFromUsedWhenFreshEmpty(t *testing.T) {
	sel := NewTargetSelector(rand.New(rand.NewSource(5)))
	sel.Add(validData(1))
	sel.Select() // moves to used
	require.True(t, len(sel.used) == 1)

	got := sel.Select()
	require.NotNil(t, got)
	// used is not consumed by a repeated select
	require.Equal(t, 1, len(sel.used))
}

func TestPoolEvictsOnOverflow(t *testing.T) {
	sel := NewTargetSelector(rand.New(rand.NewSource(6)))
	for i := 0; i < PoolSize+20; i++ {
		sel.Add(validData(byte(i)))
		require.LessOrEqual(t, len(sel.fresh)+len(sel.used), PoolSize)
	}
}
