package stats

import (
	"time"

	"github.com/Alex-Pennington/splitterstats/pkg/timestamp"
)

// CurrentBasketStats describes the in-progress basket session
type CurrentBasketStats struct {
	BasketID            string  `json:"basket_id"`
	BasketDuration      float64 `json:"basket_duration"`
	SplitsCompleted     int     `json:"splits_completed"`
	CyclesAttempted     int     `json:"cycles_attempted"`
	CurrentStage        string  `json:"current_stage"`
	ActiveCycleDuration float64 `json:"active_cycle_duration"`
	IdleTime            float64 `json:"idle_time_seconds"`
	BreakTime           float64 `json:"break_time_seconds"`
	OnBreak             bool    `json:"on_break"`
}

// ProductionRates holds the derived throughput figures
type ProductionRates struct {
	SplitsPerHour              float64 `json:"splits_per_hour"`
	BasketsPerHour             float64 `json:"baskets_per_hour"`
	CurrentBasketSplitsPerHour float64 `json:"current_basket_splits_per_hour"`
	AverageSplitsPerBasket     float64 `json:"average_splits_per_basket"`
}

// ProductionSummary is the comprehensive dashboard payload
type ProductionSummary struct {
	UptimeSeconds    float64            `json:"uptime_seconds"`
	IdleTimeSeconds  float64            `json:"idle_time_seconds"`
	TotalBaskets     int64              `json:"total_baskets"`
	TotalSplits      int64              `json:"total_splits"`
	TotalCycles      int64              `json:"total_cycles"`
	CurrentBasket    CurrentBasketStats `json:"current_basket"`
	ProductionRates  ProductionRates    `json:"production_rates"`
	AverageCycleTime float64            `json:"average_cycle_time"`
	CompletedCycles  int64              `json:"completed_cycles"`
	AbortedCycles    int64              `json:"aborted_cycles"`
	CurrentStage     string             `json:"current_stage"`
	SystemStatus     string             `json:"system_status"`
	LatestFuelLevel  *float64           `json:"latest_fuel_level"`
	LatestPressure   map[string]float64 `json:"latest_pressure,omitempty"`
	LatestTemps      map[string]float64 `json:"latest_temperature,omitempty"`
}

// BasketDetail is one row of the basket history
type BasketDetail struct {
	BasketID        string  `json:"basket_id"`
	StartTime       string  `json:"start_time"`
	CompleteTime    string  `json:"complete_time,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Splits          int     `json:"splits"`
	CyclesAttempted int     `json:"cycles_attempted"`
	SuccessRate     float64 `json:"success_rate"`
	IdleSeconds     float64 `json:"idle_seconds"`
	BreakSeconds    float64 `json:"break_seconds"`
	FuelConsumed    float64 `json:"fuel_consumed"`
	SplitsPerGallon float64 `json:"splits_per_gallon"`
	InProgress      bool    `json:"in_progress"`
}

// BasketHistory is the full per-session history payload
type BasketHistory struct {
	Baskets              []BasketDetail `json:"baskets"`
	CurrentBasket        *BasketDetail  `json:"current_basket"`
	TotalFuelConsumed    float64        `json:"total_fuel_consumed"`
	AverageFuelPerBasket float64        `json:"average_fuel_per_basket"`
	AverageSplitsPerGal  float64        `json:"average_splits_per_gallon"`
}

// staleThreshold is the advisory idle cutoff for the coarse system
// status. Purely a reporting concern, no state transition occurs.
const staleThreshold = 5 * time.Minute

// CurrentBasketStats returns statistics for the in-progress basket
func (e *Engine) CurrentBasketStats() CurrentBasketStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentBasketStatsLocked(e.now())
}

func (e *Engine) currentBasketStatsLocked(now time.Time) CurrentBasketStats {
	b := e.currentBasket
	if b == nil {
		return CurrentBasketStats{CurrentStage: string(e.stage)}
	}

	out := CurrentBasketStats{
		BasketID:        b.ID,
		BasketDuration:  b.Duration(now).Seconds(),
		SplitsCompleted: b.SplitCount(),
		CyclesAttempted: b.CycleCount(),
		CurrentStage:    string(e.stage),
		IdleTime:        b.CurrentIdleTime(now).Seconds(),
		BreakTime:       b.BreakTime.Seconds(),
		OnBreak:         b.OnBreak,
	}
	if b.CurrentCycle != nil && !b.CurrentCycle.IsComplete() {
		out.ActiveCycleDuration = b.CurrentCycle.Duration(now).Seconds()
	}
	return out
}

// ProductionRates returns the derived throughput figures
func (e *Engine) ProductionRates() ProductionRates {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.productionRatesLocked(e.now())
}

func (e *Engine) productionRatesLocked(now time.Time) ProductionRates {
	var out ProductionRates

	uptimeHours := now.Sub(e.startTime).Hours()
	if uptimeHours > 0 {
		out.SplitsPerHour = float64(e.totalSplits) / uptimeHours
		out.BasketsPerHour = float64(e.totalBaskets) / uptimeHours
	}

	if b := e.currentBasket; b != nil {
		if d := b.Duration(now).Seconds(); d > 0 {
			out.CurrentBasketSplitsPerHour = float64(b.SplitCount()) * 3600 / d
		}
	}

	if e.totalBaskets > 0 {
		out.AverageSplitsPerBasket = float64(e.totalSplits) / float64(e.totalBaskets)
	}
	return out
}

// ProductionSummary returns the comprehensive production overview
func (e *Engine) ProductionSummary() ProductionSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	idle := now.Sub(e.lastActivityTime)

	// Average over every completed non-aborted cycle, history and
	// current session alike
	var completed int64
	var totalDuration time.Duration
	forEachBasket(e.completedBaskets, e.currentBasket, func(b *Basket) {
		for _, c := range b.Cycles {
			if c.IsSplit() {
				completed++
				totalDuration += c.Duration(now)
			}
		}
	})

	avgCycle := 0.0
	if completed > 0 {
		avgCycle = totalDuration.Seconds() / float64(completed)
	}

	status := "active"
	if idle >= staleThreshold {
		status = "idle"
	}

	out := ProductionSummary{
		UptimeSeconds:    now.Sub(e.startTime).Seconds(),
		IdleTimeSeconds:  idle.Seconds(),
		TotalBaskets:     e.totalBaskets,
		TotalSplits:      e.totalSplits,
		TotalCycles:      e.totalCycles,
		CurrentBasket:    e.currentBasketStatsLocked(now),
		ProductionRates:  e.productionRatesLocked(now),
		AverageCycleTime: avgCycle,
		CompletedCycles:  completed,
		AbortedCycles:    e.totalCycles - completed,
		CurrentStage:     string(e.stage),
		SystemStatus:     status,
	}

	if r, ok := e.fuel.Latest(); ok {
		out.LatestFuelLevel = &r.Value
	}
	if len(e.pressure) > 0 {
		out.LatestPressure = make(map[string]float64, len(e.pressure))
		for sensor, buf := range e.pressure {
			if r, ok := buf.Latest(); ok {
				out.LatestPressure[sensor] = r.Value
			}
		}
	}
	if len(e.temperature) > 0 {
		out.LatestTemps = make(map[string]float64, len(e.temperature))
		for sensor, buf := range e.temperature {
			if r, ok := buf.Latest(); ok {
				out.LatestTemps[sensor] = r.Value
			}
		}
	}
	return out
}

// BasketHistory returns per-session detail for every basket, the
// in-progress session rendered the same way, and aggregate fuel totals.
func (e *Engine) BasketHistory() BasketHistory {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	out := BasketHistory{
		Baskets: make([]BasketDetail, 0, len(e.completedBaskets)),
	}

	var fueledBaskets int
	for _, b := range e.completedBaskets {
		detail := basketDetail(b, now)
		out.Baskets = append(out.Baskets, detail)
		if b.FuelConsumed > 0 {
			fueledBaskets++
			out.TotalFuelConsumed += b.FuelConsumed
		}
	}

	if fueledBaskets > 0 {
		out.AverageFuelPerBasket = out.TotalFuelConsumed / float64(fueledBaskets)
	}
	if out.TotalFuelConsumed > 0 {
		var splits int
		for _, b := range e.completedBaskets {
			if b.FuelConsumed > 0 {
				splits += b.SplitCount()
			}
		}
		out.AverageSplitsPerGal = float64(splits) / out.TotalFuelConsumed
	}

	if e.currentBasket != nil {
		detail := basketDetail(e.currentBasket, now)
		detail.InProgress = true
		out.CurrentBasket = &detail
	}
	return out
}

func basketDetail(b *Basket, now time.Time) BasketDetail {
	detail := BasketDetail{
		BasketID:        b.ID,
		StartTime:       timestamp.Format(timestamp.Seconds(b.StartTime)),
		DurationSeconds: b.Duration(now).Seconds(),
		Splits:          b.SplitCount(),
		CyclesAttempted: b.CycleCount(),
		IdleSeconds:     b.CurrentIdleTime(now).Seconds(),
		BreakSeconds:    b.BreakTime.Seconds(),
		FuelConsumed:    b.FuelConsumed,
	}
	if b.IsComplete() {
		detail.CompleteTime = timestamp.Format(timestamp.Seconds(b.CompleteTime))
	}
	if detail.CyclesAttempted > 0 {
		detail.SuccessRate = float64(detail.Splits) / float64(detail.CyclesAttempted) * 100
	}
	if b.FuelConsumed > 0 {
		detail.SplitsPerGallon = float64(detail.Splits) / b.FuelConsumed
	}
	return detail
}

// LatestPressure returns the most recent reading for a pressure sensor
func (e *Engine) LatestPressure(sensor string) (Reading, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf, ok := e.pressure[sensor]
	if !ok {
		return Reading{}, false
	}
	return buf.Latest()
}

// PressureHistory returns buffered readings for a sensor, oldest first
func (e *Engine) PressureHistory(sensor string) []Reading {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf, ok := e.pressure[sensor]
	if !ok {
		return nil
	}
	return buf.Items()
}

// FuelHistory returns buffered fuel readings, oldest first
func (e *Engine) FuelHistory() []Reading {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fuel.Items()
}

func forEachBasket(history []*Basket, current *Basket, fn func(*Basket)) {
	for _, b := range history {
		fn(b)
	}
	if current != nil {
		fn(current)
	}
}
