package clock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickMonotonic(t *testing.T) {
	c := New(0)
	prev := uint64(0)
	for i := 0; i < 1000; i++ {
		v := c.Tick()
		require.Greater(t, v, prev)
		prev = v
	}
}

func TestTickConcurrentNoDuplicates(t *testing.T) {
	c := New(0)
	const n = 500
	results := make([]uint64, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i] = c.Tick()
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, v := range results {
		require.False(t, seen[v], "duplicate tick value %d", v)
		seen[v] = true
	}
	assert.Equal(t, uint64(n), c.Snapshot())
}

func TestObserveAdvancesToMax(t *testing.T) {
	c := New(5)
	c.Observe(3)
	assert.Equal(t, uint64(5), c.Snapshot(), "observe of a smaller value is a no-op")

	c.Observe(10)
	assert.Equal(t, uint64(10), c.Snapshot())

	c.Observe(10)
	assert.Equal(t, uint64(10), c.Snapshot(), "observing the same value twice is idempotent")
}

func TestSnapshotHasNoSideEffect(t *testing.T) {
	c := New(7)
	a := c.Snapshot()
	b := c.Snapshot()
	assert.Equal(t, a, b)
}
