package stats

import (
	"time"

	"github.com/Alex-Pennington/splitterstats/classifier"
	"github.com/Alex-Pennington/splitterstats/snapshot"
	"github.com/Alex-Pennington/splitterstats/pkg/timestamp"
)

// toDocument serializes the full engine state. Runs inside the lock.
func (e *Engine) toDocument() *snapshot.Document {
	doc := &snapshot.Document{
		StartTime:        timestamp.Seconds(e.startTime),
		TotalCycles:      e.totalCycles,
		TotalSplits:      e.totalSplits,
		TotalBaskets:     e.totalBaskets,
		LastActivityTime: timestamp.Seconds(e.lastActivityTime),
		CurrentStage:     string(e.stage),
		CompletedBaskets: make([]*snapshot.Basket, 0, len(e.completedBaskets)),
	}
	for _, b := range e.completedBaskets {
		doc.CompletedBaskets = append(doc.CompletedBaskets, basketToDoc(b))
	}
	if e.currentBasket != nil {
		doc.CurrentBasket = basketToDoc(e.currentBasket)
	}
	return doc
}

func basketToDoc(b *Basket) *snapshot.Basket {
	doc := &snapshot.Basket{
		BasketID:          b.ID,
		StartTime:         timestamp.Seconds(b.StartTime),
		CompleteTime:      snapshot.TimePtr(b.CompleteTime),
		ExchangeTime:      snapshot.TimePtr(b.ExchangeTime),
		StartFuelLevel:    b.StartFuelLevel,
		EndFuelLevel:      b.EndFuelLevel,
		FuelConsumed:      b.FuelConsumed,
		IdleTime:          b.IdleTime.Seconds(),
		BreakTime:         b.BreakTime.Seconds(),
		OnBreak:           b.OnBreak,
		BreakStartTime:    snapshot.TimePtr(b.BreakStart),
		LastActivityTime:  timestamp.Seconds(b.LastActivityTime),
		IsCurrentlyActive: b.IsCurrentlyActive,
		Cycles:            make([]*snapshot.Cycle, 0, len(b.Cycles)),
	}
	for _, c := range b.Cycles {
		doc.Cycles = append(doc.Cycles, &snapshot.Cycle{
			StartTime:       timestamp.Seconds(c.StartTime),
			ExtendStart:     snapshot.TimePtr(c.ExtendStart),
			ExtendComplete:  snapshot.TimePtr(c.ExtendComplete),
			RetractStart:    snapshot.TimePtr(c.RetractStart),
			RetractComplete: snapshot.TimePtr(c.RetractComplete),
			CompleteTime:    snapshot.TimePtr(c.CompleteTime),
			Aborted:         c.Aborted,
			AbortReason:     c.AbortReason,
		})
	}
	return doc
}

// restore rebuilds engine state from a loaded document. Any missing
// field keeps its zero value; a current basket that was already
// completed (data-repair leftovers) is healed rather than kept.
func (e *Engine) restore(doc *snapshot.Document) {
	if t := timestamp.FromSeconds(doc.StartTime); !t.IsZero() {
		e.startTime = t
	}
	if t := timestamp.FromSeconds(doc.LastActivityTime); !t.IsZero() {
		e.lastActivityTime = t
	}
	e.totalCycles = doc.TotalCycles
	e.totalSplits = doc.TotalSplits
	e.totalBaskets = doc.TotalBaskets
	if stage, ok := classifier.ParseStage(doc.CurrentStage); ok {
		e.stage = stage
	}

	for _, b := range doc.CompletedBaskets {
		e.completedBaskets = append(e.completedBaskets, basketFromDoc(b))
	}

	if doc.CurrentBasket != nil {
		current := basketFromDoc(doc.CurrentBasket)
		if current.IsComplete() {
			e.healCompletedCurrent(current)
		} else {
			e.currentBasket = current
		}
	}

	e.logger.Info("restored production statistics",
		"total_splits", e.totalSplits,
		"total_baskets", e.totalBaskets,
		"history", len(e.completedBaskets))
}

// healCompletedCurrent handles a snapshot whose current basket was
// already completed. If the same session is also in history the copy is
// dropped; otherwise it is moved there. Either way a fresh session
// starts.
func (e *Engine) healCompletedCurrent(current *Basket) {
	for _, b := range e.completedBaskets {
		if b.StartTime.Equal(current.StartTime) {
			e.logger.Warn("dropping completed current basket duplicated in history",
				"basket_id", current.ID)
			return
		}
	}
	e.logger.Warn("moving completed current basket to history",
		"basket_id", current.ID)
	e.completedBaskets = append(e.completedBaskets, current)
}

func basketFromDoc(doc *snapshot.Basket) *Basket {
	b := &Basket{
		ID:                doc.BasketID,
		StartTime:         timestamp.FromSeconds(doc.StartTime),
		CompleteTime:      snapshot.TimeVal(doc.CompleteTime),
		ExchangeTime:      snapshot.TimeVal(doc.ExchangeTime),
		StartFuelLevel:    doc.StartFuelLevel,
		EndFuelLevel:      doc.EndFuelLevel,
		FuelConsumed:      doc.FuelConsumed,
		IdleTime:          secondsToDuration(doc.IdleTime),
		BreakTime:         secondsToDuration(doc.BreakTime),
		OnBreak:           doc.OnBreak,
		BreakStart:        snapshot.TimeVal(doc.BreakStartTime),
		LastActivityTime:  timestamp.FromSeconds(doc.LastActivityTime),
		IsCurrentlyActive: doc.IsCurrentlyActive,
	}
	for _, c := range doc.Cycles {
		cycle := &Cycle{
			StartTime:       timestamp.FromSeconds(c.StartTime),
			ExtendStart:     snapshot.TimeVal(c.ExtendStart),
			ExtendComplete:  snapshot.TimeVal(c.ExtendComplete),
			RetractStart:    snapshot.TimeVal(c.RetractStart),
			RetractComplete: snapshot.TimeVal(c.RetractComplete),
			CompleteTime:    snapshot.TimeVal(c.CompleteTime),
			Aborted:         c.Aborted,
			AbortReason:     c.AbortReason,
		}
		b.Cycles = append(b.Cycles, cycle)
	}
	if n := len(b.Cycles); n > 0 {
		b.CurrentCycle = b.Cycles[n-1]
	}
	return b
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
