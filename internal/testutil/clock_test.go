package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_StartsAtEpoch(t *testing.T) {
	clock := NewFakeClock()
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, time.Duration(0), clock.Elapsed())
}

func TestFakeClock_Advance(t *testing.T) {
	clock := NewFakeClock()

	clock.Advance(150 * time.Millisecond)
	clock.Advance(50 * time.Millisecond)

	assert.Equal(t, 200*time.Millisecond, clock.Elapsed())
}

func TestFakeClock_Set(t *testing.T) {
	clock := NewFakeClock()
	at := Epoch.Add(time.Hour)

	clock.Set(at)
	assert.Equal(t, at, clock.Now())

	// Backwards is allowed
	clock.Set(Epoch)
	assert.Equal(t, Epoch, clock.Now())
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	clock := NewFakeClock()
	const numGoroutines = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, numGoroutines*time.Millisecond, clock.Elapsed())
}
