package stats

import (
	"time"

	"github.com/google/uuid"
)

// Basket is one basket-filling session: the cycles produced between two
// basket exchanges, plus the session's idle, break and fuel accounting.
type Basket struct {
	ID        string
	StartTime time.Time

	Cycles       []*Cycle
	CurrentCycle *Cycle

	CompleteTime time.Time
	ExchangeTime time.Time

	// Fuel accounting. StartFuelLevel is captured lazily from the first
	// fuel reading seen during the session; nil means no reading yet.
	StartFuelLevel *float64
	EndFuelLevel   *float64
	FuelConsumed   float64

	// Idle accounting: IdleTime holds closed gaps; the open gap since
	// LastActivityTime is added lazily by CurrentIdleTime.
	IdleTime          time.Duration
	BreakTime         time.Duration
	OnBreak           bool
	BreakStart        time.Time
	LastActivityTime  time.Time
	IsCurrentlyActive bool
}

// NewBasket starts a fresh basket session at ts
func NewBasket(ts time.Time) *Basket {
	return &Basket{
		ID:               uuid.NewString(),
		StartTime:        ts,
		LastActivityTime: ts,
	}
}

// StartNewCycle opens a new cycle. An open incomplete cycle is aborted
// first with reason "new_cycle_started".
func (b *Basket) StartNewCycle(ts time.Time) *Cycle {
	if b.CurrentCycle != nil && !b.CurrentCycle.IsComplete() {
		b.CurrentCycle.Abort("new_cycle_started", ts)
	}
	b.CurrentCycle = NewCycle(ts)
	b.Cycles = append(b.Cycles, b.CurrentCycle)
	return b.CurrentCycle
}

// Complete closes the basket session at ts. An open cycle is
// force-completed as a normal retract-complete; the caller owns the
// split counter and must account for it.
func (b *Basket) Complete(ts time.Time) (forcedSplit bool) {
	b.CompleteTime = ts
	b.ExchangeTime = ts

	if b.CurrentCycle != nil && !b.CurrentCycle.IsComplete() {
		b.CurrentCycle.FinishRetract(ts)
		forcedSplit = true
	}
	if b.OnBreak {
		b.EndBreak(ts)
	}
	return forcedSplit
}

// IsComplete reports whether the basket session is closed
func (b *Basket) IsComplete() bool {
	return !b.CompleteTime.IsZero()
}

// Duration returns the session length, measured to now while open
func (b *Basket) Duration(now time.Time) time.Duration {
	if b.IsComplete() {
		return b.CompleteTime.Sub(b.StartTime)
	}
	return now.Sub(b.StartTime)
}

// SplitCount returns the number of completed, non-aborted cycles
func (b *Basket) SplitCount() int {
	count := 0
	for _, c := range b.Cycles {
		if c.IsSplit() {
			count++
		}
	}
	return count
}

// CycleCount returns all cycles attempted, including aborted ones
func (b *Basket) CycleCount() int {
	return len(b.Cycles)
}

// MarkActivity records an activity signal at ts. If the session was
// idle, the elapsed gap is flushed into IdleTime first. Break periods
// suspend the accounting entirely.
func (b *Basket) MarkActivity(ts time.Time) {
	if b.OnBreak {
		return
	}
	if !b.IsCurrentlyActive && ts.After(b.LastActivityTime) {
		b.IdleTime += ts.Sub(b.LastActivityTime)
	}
	b.IsCurrentlyActive = true
	b.LastActivityTime = ts
}

// MarkIdle flags the session idle at ts, so the gap until the next
// activity counts as idle time. Called on cycle completion.
func (b *Basket) MarkIdle(ts time.Time) {
	b.IsCurrentlyActive = false
	b.LastActivityTime = ts
}

// CurrentIdleTime returns accumulated idle time plus the open gap if
// the session is currently idle.
func (b *Basket) CurrentIdleTime(now time.Time) time.Duration {
	idle := b.IdleTime
	if !b.OnBreak && !b.IsCurrentlyActive && now.After(b.LastActivityTime) {
		idle += now.Sub(b.LastActivityTime)
	}
	return idle
}

// StartBreak suspends idle accounting. A pending idle gap is flushed
// before the break starts. Returns false if already on break.
func (b *Basket) StartBreak(ts time.Time) bool {
	if b.OnBreak {
		return false
	}
	if !b.IsCurrentlyActive && ts.After(b.LastActivityTime) {
		b.IdleTime += ts.Sub(b.LastActivityTime)
	}
	b.OnBreak = true
	b.BreakStart = ts
	b.IsCurrentlyActive = false
	return true
}

// EndBreak resumes accounting and adds the break to BreakTime.
// Returns false if no break is in progress.
func (b *Basket) EndBreak(ts time.Time) bool {
	if !b.OnBreak {
		return false
	}
	if ts.After(b.BreakStart) {
		b.BreakTime += ts.Sub(b.BreakStart)
	}
	b.OnBreak = false
	b.BreakStart = time.Time{}
	b.LastActivityTime = ts
	b.IsCurrentlyActive = false
	return true
}

// RecordFuelLevel feeds a fuel reading into the session. The first
// reading becomes the session's start level.
func (b *Basket) RecordFuelLevel(level float64) {
	if b.StartFuelLevel == nil {
		b.StartFuelLevel = &level
	}
}

// SettleFuel computes the session's fuel consumption from the latest
// reading. Refills between readings produce a negative delta, which
// clamps to zero.
func (b *Basket) SettleFuel(latest float64) {
	b.EndFuelLevel = &latest
	if b.StartFuelLevel == nil {
		return
	}
	consumed := *b.StartFuelLevel - latest
	if consumed < 0 {
		consumed = 0
	}
	b.FuelConsumed = consumed
}
