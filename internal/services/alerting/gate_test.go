package alerting

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func TestGate_CooldownEnforcement(t *testing.T) {
	g := NewGate(5 * time.Second)

	require.True(t, g.TryAcquire(at(0)))
	g.RecordSuccess(at(0))

	assert.False(t, g.TryAcquire(at(3)))
	assert.True(t, g.TryAcquire(at(5)), "cooldown boundary is inclusive")
	assert.True(t, g.TryAcquire(at(6)))

	last, ok := g.LastAlert()
	assert.True(t, ok)
	assert.Equal(t, at(0), last)
}

func TestGate_TryAcquireDoesNotMutate(t *testing.T) {
	g := NewGate(5 * time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, g.TryAcquire(at(float64(i))))
	}
	_, ok := g.LastAlert()
	assert.False(t, ok)
}

func TestGate_FailedDispatchDoesNotConsumeCooldown(t *testing.T) {
	g := NewGate(5 * time.Second)

	require.True(t, g.TryAcquire(at(0)))
	// Dispatch failed, no RecordSuccess.
	assert.True(t, g.TryAcquire(at(1)))
}

func TestPermit_CommitAndRelease(t *testing.T) {
	g := NewGate(5 * time.Second)

	p, ok := g.Reserve(at(0))
	require.True(t, ok)

	_, ok = g.Reserve(at(0))
	assert.False(t, ok, "second reservation must wait for the outstanding permit")
	assert.Equal(t, int64(1), g.Suppressed())

	p.Release()
	p.Commit(at(0)) // no-op after Release
	_, sent := g.LastAlert()
	assert.False(t, sent)

	p, ok = g.Reserve(at(1))
	require.True(t, ok, "released permit frees the gate")
	p.Commit(at(1))
	p.Release()

	last, sent := g.LastAlert()
	require.True(t, sent)
	assert.Equal(t, at(1), last)

	_, ok = g.Reserve(at(4))
	assert.False(t, ok)
	_, ok = g.Reserve(at(6))
	assert.True(t, ok)
}

func TestGate_ReserveIsExclusive(t *testing.T) {
	g := NewGate(time.Minute)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p, ok := g.Reserve(at(0)); ok {
				granted.Add(1)
				p.Commit(at(0))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
	assert.Equal(t, int64(49), g.Suppressed())
}

func TestNewGate_NegativeCooldown(t *testing.T) {
	g := NewGate(-time.Second)
	assert.Equal(t, time.Duration(0), g.Cooldown())
	g.RecordSuccess(at(0))
	assert.True(t, g.TryAcquire(at(0)))
}
