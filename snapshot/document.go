// Package snapshot defines the persisted statistics document and its
// file store. The document layout is the stable wire format shared with
// historical snapshot files: field names and nesting must not change, and
// readers default any missing field instead of erroring.
//
// All timestamps are floating-point seconds since the Unix epoch, with
// null meaning "not set". No timezone conversion happens here.
package snapshot

import (
	"time"

	"github.com/Alex-Pennington/splitterstats/pkg/timestamp"
)

// Document is the full engine state as persisted to disk
type Document struct {
	StartTime        float64   `json:"start_time"`
	TotalCycles      int64     `json:"total_cycles"`
	TotalSplits      int64     `json:"total_splits"`
	TotalBaskets     int64     `json:"total_baskets"`
	LastActivityTime float64   `json:"last_activity_time"`
	CurrentStage     string    `json:"current_stage,omitempty"`
	CompletedBaskets []*Basket `json:"completed_baskets"`
	CurrentBasket    *Basket   `json:"current_basket"`
}

// Basket is one basket session, completed or in progress
type Basket struct {
	BasketID          string   `json:"basket_id,omitempty"`
	StartTime         float64  `json:"start_time"`
	CompleteTime      *float64 `json:"complete_time"`
	ExchangeTime      *float64 `json:"exchange_time"`
	StartFuelLevel    *float64 `json:"start_fuel_level"`
	EndFuelLevel      *float64 `json:"end_fuel_level"`
	FuelConsumed      float64  `json:"fuel_consumed"`
	IdleTime          float64  `json:"idle_time"`
	BreakTime         float64  `json:"break_time"`
	OnBreak           bool     `json:"on_break"`
	BreakStartTime    *float64 `json:"break_start_time"`
	LastActivityTime  float64  `json:"last_activity_time"`
	IsCurrentlyActive bool     `json:"is_currently_active"`
	Cycles            []*Cycle `json:"cycles"`
}

// Cycle is one extend/retract production cycle
type Cycle struct {
	StartTime       float64  `json:"start_time"`
	ExtendStart     *float64 `json:"extend_start"`
	ExtendComplete  *float64 `json:"extend_complete"`
	RetractStart    *float64 `json:"retract_start"`
	RetractComplete *float64 `json:"retract_complete"`
	CompleteTime    *float64 `json:"complete_time"`
	Aborted         bool     `json:"aborted"`
	AbortReason     string   `json:"abort_reason,omitempty"`
}

// TimePtr converts a time.Time to a nullable wire timestamp.
// The zero time becomes null.
func TimePtr(t time.Time) *float64 {
	if t.IsZero() {
		return nil
	}
	s := timestamp.Seconds(t)
	return &s
}

// TimeVal converts a nullable wire timestamp to a time.Time.
// Null becomes the zero time.
func TimeVal(p *float64) time.Time {
	if p == nil {
		return time.Time{}
	}
	return timestamp.FromSeconds(*p)
}

// FloatPtr returns a pointer to v
func FloatPtr(v float64) *float64 {
	return &v
}
