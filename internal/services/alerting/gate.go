package alerting

import (
	"sync"
	"time"
)

// Gate enforces a minimum interval between successful alerts. Checking the
// gate and recording a success are separate so a failed dispatch never
// consumes the cooldown.
type Gate struct {
	mu         sync.Mutex
	cooldown   time.Duration
	lastSent   time.Time
	hasSent    bool
	reserved   bool
	suppressed int64
}

// NewGate creates a gate with the given cooldown
func NewGate(cooldown time.Duration) *Gate {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Gate{cooldown: cooldown}
}

// Cooldown returns the configured cooldown
func (g *Gate) Cooldown() time.Duration {
	return g.cooldown
}

// TryAcquire reports whether an alert may be attempted at now. It does not mutate the gate.
func (g *Gate) TryAcquire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readyLocked(now)
}

// RecordSuccess marks now as the time of the last delivered alert
func (g *Gate) RecordSuccess(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recordLocked(now)
}

// LastAlert returns the time of the last delivered alert, if any
func (g *Gate) LastAlert() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSent, g.hasSent
}

// Suppressed returns how many reservations were refused
func (g *Gate) Suppressed() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed
}

// Reserve atomically checks the cooldown and takes the gate for one dispatch
// attempt. While a permit is outstanding every other Reserve fails.
func (g *Gate) Reserve(now time.Time) (*Permit, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.reserved || !g.readyLocked(now) {
		g.suppressed++
		return nil, false
	}
	g.reserved = true
	return &Permit{gate: g}, true
}

func (g *Gate) readyLocked(now time.Time) bool {
	if !g.hasSent {
		return true
	}
	return now.Sub(g.lastSent) >= g.cooldown
}

func (g *Gate) recordLocked(now time.Time) {
	g.lastSent = now
	g.hasSent = true
}

// Permit is an outstanding reservation of a Gate. Exactly one of Commit or
// Release takes effect; later calls are no-ops.
type Permit struct {
	gate *Gate
	once sync.Once
}

// Commit records a successful alert at t and releases the gate
func (p *Permit) Commit(t time.Time) {
	p.once.Do(func() {
		p.gate.mu.Lock()
		defer p.gate.mu.Unlock()
		p.gate.recordLocked(t)
		p.gate.reserved = false
	})
}

// Release frees the gate without recording a success
func (p *Permit) Release() {
	p.once.Do(func() {
		p.gate.mu.Lock()
		defer p.gate.mu.Unlock()
		p.gate.reserved = false
	})
}
