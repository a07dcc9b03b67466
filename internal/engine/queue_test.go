package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandQueue_FIFO(t *testing.T) {
	q := newCommandQueue()
	for _, line := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(request{line: line}))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		r, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, r.line)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestCommandQueue_SignalCoalesces(t *testing.T) {
	q := newCommandQueue()
	q.Enqueue(request{line: "A"})
	q.Enqueue(request{line: "B"})

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestCommandQueue_CloseReturnsRest(t *testing.T) {
	q := newCommandQueue()
	q.Enqueue(request{line: "A"})
	<-q.Wait()

	rest := q.Close()
	require.Len(t, rest, 1)
	assert.Equal(t, "A", rest[0].line)

	assert.False(t, q.Enqueue(request{line: "B"}), "closed queue rejects requests")
	_, open := <-q.Wait()
	assert.False(t, open, "close wakes waiters")
	assert.Nil(t, q.Close(), "second close is a no-op")
}

func TestCommandQueue_ConcurrentProducers(t *testing.T) {
	q := newCommandQueue()
	const producers = 8
	const each = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Enqueue(request{line: fmt.Sprintf("%d-%d", p, i)})
			}
		}(p)
	}
	wg.Wait()
	assert.Equal(t, producers*each, q.Len())
}
