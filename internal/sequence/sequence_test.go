package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryNextIsUniqueUnderConcurrency(t *testing.T) {
	const callers = 64
	const perCaller = 50

	seq := NewMemory(100)
	results := make(chan int64, callers*perCaller)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perCaller; j++ {
				n, err := seq.Next(context.Background())
				if err != nil {
					t.Error(err)
					return
				}
				results <- n
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, callers*perCaller)
	for n := range results {
		assert.Greater(t, n, int64(100))
		assert.False(t, seen[n], "duplicate order number %d", n)
		seen[n] = true
	}
	assert.Len(t, seen, callers*perCaller)
	assert.Equal(t, int64(100+callers*perCaller), seq.Current())
}

func TestMemoryNextIsIncreasing(t *testing.T) {
	seq := NewMemory(0)
	prev := int64(0)
	for i := 0; i < 10; i++ {
		n, err := seq.Next(context.Background())
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestMemoryNextHonoursCancelledContext(t *testing.T) {
	seq := NewMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := seq.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), seq.Current())
}
