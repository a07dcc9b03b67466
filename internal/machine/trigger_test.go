package machine

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrigger_FiresOnce(t *testing.T) {
	trig := NewTrigger("pump.start_done")

	assert.True(t, trig.Live())
	assert.True(t, trig.Fire())
	assert.False(t, trig.Fire(), "second fire must report false")
	assert.True(t, trig.Fired())
	assert.False(t, trig.Live())
}

func TestTrigger_DisabledNeverFires(t *testing.T) {
	trig := NewTrigger("t")
	trig.Disable()

	assert.False(t, trig.Fire())
	assert.False(t, trig.Fired())
	assert.False(t, trig.Enabled())
}

func TestTrigger_Matches(t *testing.T) {
	trig := NewTrigger("valve.open_enter")
	assert.True(t, trig.Matches("valve.open_enter"))
	assert.False(t, trig.Matches("open_enter"))
}

func TestTrigger_ConcurrentFireLatchesOnce(t *testing.T) {
	trig := NewTrigger("race")
	var wins atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if trig.Fire() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestTrigger_FiredForRemovedOwnerIsDefect(t *testing.T) {
	f := newFixture(t)
	m := f.create("m", ClassFlag)

	trig := NewTrigger("m.wait")
	trig.owner = m.ID()
	f.reg.Remove(m)
	f.reg.fireTrigger(trig)

	assert.Contains(t, f.logs.String(), "ORPHAN_TRIGGER")
}
