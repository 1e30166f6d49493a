package stats

import "time"

// Cycle is a single extend/retract production cycle. A cycle is open
// until completed or aborted; finished cycles are never mutated again.
type Cycle struct {
	StartTime       time.Time
	ExtendStart     time.Time
	ExtendComplete  time.Time
	RetractStart    time.Time
	RetractComplete time.Time
	CompleteTime    time.Time
	Aborted         bool
	AbortReason     string
}

// NewCycle opens a cycle at ts
func NewCycle(ts time.Time) *Cycle {
	return &Cycle{StartTime: ts}
}

// StartExtend marks the start of the extend stage
func (c *Cycle) StartExtend(ts time.Time) {
	c.ExtendStart = ts
}

// FinishExtend marks the completion of the extend stage
func (c *Cycle) FinishExtend(ts time.Time) {
	c.ExtendComplete = ts
}

// StartRetract marks the start of the retract stage
func (c *Cycle) StartRetract(ts time.Time) {
	c.RetractStart = ts
}

// FinishRetract marks retract completion, which closes the cycle
func (c *Cycle) FinishRetract(ts time.Time) {
	c.RetractComplete = ts
	c.CompleteTime = ts
}

// Abort closes the cycle as aborted with the wire-format event name as
// the reason ("safety_stop", "new_cycle_started").
func (c *Cycle) Abort(reason string, ts time.Time) {
	c.Aborted = true
	c.AbortReason = reason
	c.CompleteTime = ts
}

// IsComplete reports whether the cycle is closed (completed or aborted)
func (c *Cycle) IsComplete() bool {
	return !c.CompleteTime.IsZero()
}

// IsSplit reports whether the cycle produced a split
func (c *Cycle) IsSplit() bool {
	return c.IsComplete() && !c.Aborted
}

// Duration returns the total cycle time, measured to now while open
func (c *Cycle) Duration(now time.Time) time.Duration {
	if c.IsComplete() {
		return c.CompleteTime.Sub(c.StartTime)
	}
	return now.Sub(c.StartTime)
}

// ExtendDuration returns the extend stage duration, if both marks exist
func (c *Cycle) ExtendDuration() (time.Duration, bool) {
	if c.ExtendStart.IsZero() || c.ExtendComplete.IsZero() {
		return 0, false
	}
	return c.ExtendComplete.Sub(c.ExtendStart), true
}

// RetractDuration returns the retract stage duration, if both marks exist
func (c *Cycle) RetractDuration() (time.Duration, bool) {
	if c.RetractStart.IsZero() || c.RetractComplete.IsZero() {
		return 0, false
	}
	return c.RetractComplete.Sub(c.RetractStart), true
}
