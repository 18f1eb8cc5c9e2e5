package shuffle

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestNew_IsPermutation(t *testing.T) {
	rnd := newRand()
	for n := 0; n < 20; n++ {
		o := New(n, rnd)
		assert.True(t, o.Valid(n), "length %d: %v", n, o.Indices())
	}
}

func TestParse(t *testing.T) {
	indices, err := Parse("2;0;1")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, indices)

	indices, err = Parse("")
	require.NoError(t, err)
	assert.Empty(t, indices)

	_, err = Parse("2;x;1")
	assert.Error(t, err)
}

func TestOrder_StringRoundTrip(t *testing.T) {
	o, err := FromIndices([]int{3, 1, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, "3;1;0;2", o.String())

	back, err := Parse(o.String())
	require.NoError(t, err)
	assert.Equal(t, o.Indices(), back)
}

func TestFromIndices_RejectsNonPermutation(t *testing.T) {
	_, err := FromIndices([]int{0, 0, 1})
	assert.Error(t, err)

	_, err = FromIndices([]int{0, 3})
	assert.Error(t, err)
}

func TestRestore(t *testing.T) {
	t.Run("matching length keeps the persisted order", func(t *testing.T) {
		o, outcome, err := Restore("2;0;1", 3, newRand())
		require.NoError(t, err)
		assert.Equal(t, Restored, outcome)
		assert.Equal(t, []int{2, 0, 1}, o.Indices())
	})

	t.Run("length mismatch regenerates", func(t *testing.T) {
		o, outcome, err := Restore("2;0;1", 2, newRand())
		require.NoError(t, err)
		assert.Equal(t, Regenerated, outcome)
		assert.True(t, o.Valid(2))
	})

	t.Run("empty falls back to identity", func(t *testing.T) {
		o, outcome, err := Restore("", 3, newRand())
		require.NoError(t, err)
		assert.Equal(t, Fallback, outcome)
		assert.Equal(t, []int{0, 1, 2}, o.Indices())
	})

	t.Run("garbage falls back to identity with an error", func(t *testing.T) {
		o, outcome, err := Restore("a;b", 2, newRand())
		assert.Error(t, err)
		assert.Equal(t, Fallback, outcome)
		assert.Equal(t, []int{0, 1}, o.Indices())
	})

	t.Run("duplicate indices regenerate", func(t *testing.T) {
		o, outcome, err := Restore("1;1;0", 3, newRand())
		require.NoError(t, err)
		assert.Equal(t, Regenerated, outcome)
		assert.True(t, o.Valid(3))
	})
}

func TestOrder_Traversal(t *testing.T) {
	o, err := FromIndices([]int{2, 0, 1})
	require.NoError(t, err)

	assert.Equal(t, 2, o.First())
	assert.Equal(t, 1, o.Last())
	assert.Equal(t, 0, o.Next(2))
	assert.Equal(t, 1, o.Next(0))
	assert.Equal(t, -1, o.Next(1))
	assert.Equal(t, -1, o.Previous(2))
	assert.Equal(t, 2, o.Previous(0))
	assert.Equal(t, 2, o.Position(1))
	assert.Equal(t, -1, o.Next(7))

	var empty Order
	assert.Equal(t, -1, empty.First())
	assert.Equal(t, -1, empty.Last())
}

func TestOrder_Reconcile(t *testing.T) {
	o := Identity(3)

	same, regenerated := o.Reconcile(3, newRand())
	assert.False(t, regenerated)
	assert.Equal(t, o.Indices(), same.Indices())

	fresh, regenerated := o.Reconcile(5, newRand())
	assert.True(t, regenerated)
	assert.True(t, fresh.Valid(5))
}

func TestOrder_CloneAndInsertStaysValid(t *testing.T) {
	rnd := newRand()
	o := New(5, rnd)
	for _, tc := range []struct{ at, count int }{{0, 1}, {5, 2}, {3, 3}, {8, 1}} {
		o = o.CloneAndInsert(tc.at, tc.count, rnd)
		require.True(t, o.Valid(o.Len()), "after insert at %d: %v", tc.at, o.Indices())
	}
	assert.Equal(t, 12, o.Len())
}

func TestOrder_CloneAndInsertShiftsExisting(t *testing.T) {
	o, err := FromIndices([]int{1, 0})
	require.NoError(t, err)

	inserted := o.CloneAndInsert(1, 1, newRand())
	require.True(t, inserted.Valid(3))

	// 1 moved to 2, 0 stayed; the relative order of the old entries is preserved
	var old []int
	for _, v := range inserted.Indices() {
		if v != 1 {
			old = append(old, v)
		}
	}
	assert.Equal(t, []int{2, 0}, old)
}

func TestOrder_CloneAndRemove(t *testing.T) {
	o, err := FromIndices([]int{3, 0, 4, 1, 2})
	require.NoError(t, err)

	removed := o.CloneAndRemove(1, 3)
	assert.Equal(t, []int{1, 0, 2}, removed.Indices())
	assert.True(t, removed.Valid(3))
}
