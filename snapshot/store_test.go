package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alex-Pennington/splitterstats/errors"
)

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "production_stats.json"))

	doc := &Document{
		StartTime:        1760280748.2,
		TotalCycles:      355,
		TotalSplits:      321,
		TotalBaskets:     3,
		LastActivityTime: 1760291382.4,
		CurrentStage:     "idle",
		CompletedBaskets: []*Basket{
			{
				BasketID:     "b1",
				StartTime:    1760280748.2,
				CompleteTime: FloatPtr(1760284000.0),
				ExchangeTime: FloatPtr(1760284000.0),
				FuelConsumed: 0.25,
				Cycles: []*Cycle{
					{
						StartTime:       1760280750.0,
						ExtendStart:     FloatPtr(1760280750.0),
						ExtendComplete:  FloatPtr(1760280760.0),
						RetractStart:    FloatPtr(1760280760.0),
						RetractComplete: FloatPtr(1760280770.0),
						CompleteTime:    FloatPtr(1760280770.0),
					},
					{
						StartTime:   1760280780.0,
						Aborted:     true,
						AbortReason: "safety_stop",
					},
				},
			},
		},
		CurrentBasket: &Basket{
			BasketID:          "b2",
			StartTime:         1760291110.5,
			StartFuelLevel:    FloatPtr(2.5),
			IdleTime:          0.14,
			LastActivityTime:  1760291382.4,
			IsCurrentlyActive: true,
			Cycles:            []*Cycle{},
		},
	}

	require.NoError(t, store.Save(doc))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	_, err := store.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSnapshotUnavailable)
}

func TestFileStore_LoadCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewFileStore(path)
	_, err := store.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSnapshotCorrupted)
	assert.True(t, errors.IsInvalid(err))
}

// Snapshots written by earlier releases have no basket_id, no
// current_stage, and use null for unset timestamps. Every missing field
// must default, never error.
func TestFileStore_LoadLegacyDocument(t *testing.T) {
	legacy := `{
		"start_time": 1760280748.2111413,
		"total_cycles": 355,
		"total_splits": 321,
		"total_baskets": 3,
		"last_activity_time": 1760291382.4869692,
		"completed_baskets": [],
		"current_basket": {
			"start_time": 1760291110.5755997,
			"complete_time": null,
			"exchange_time": null,
			"start_fuel_level": 2.5,
			"end_fuel_level": null,
			"fuel_consumed": 0.0,
			"idle_time": 0.142,
			"break_time": 0.0,
			"on_break": false,
			"break_start_time": null,
			"last_activity_time": 1760291382.4869692,
			"is_currently_active": true,
			"cycles": [
				{"start_time": 1760291111.0, "extend_start": 1760291111.0}
			]
		}
	}`

	path := filepath.Join(t.TempDir(), "legacy.json")
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	doc, err := NewFileStore(path).Load()
	require.NoError(t, err)

	assert.Equal(t, int64(321), doc.TotalSplits)
	assert.Empty(t, doc.CurrentStage)
	require.NotNil(t, doc.CurrentBasket)
	assert.Empty(t, doc.CurrentBasket.BasketID)
	assert.Nil(t, doc.CurrentBasket.CompleteTime)
	require.NotNil(t, doc.CurrentBasket.StartFuelLevel)
	assert.Equal(t, 2.5, *doc.CurrentBasket.StartFuelLevel)

	require.Len(t, doc.CurrentBasket.Cycles, 1)
	cycle := doc.CurrentBasket.Cycles[0]
	assert.False(t, cycle.Aborted)
	assert.Nil(t, cycle.CompleteTime)
	assert.Empty(t, cycle.AbortReason)
}

func TestFileStore_SaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "stats.json"))

	require.NoError(t, store.Save(&Document{TotalSplits: 1}))
	require.NoError(t, store.Save(&Document{TotalSplits: 2}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.TotalSplits)

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "stats.json", entries[0].Name())
}

func TestTimeConversions(t *testing.T) {
	assert.Nil(t, TimePtr(time.Time{}))
	assert.True(t, TimeVal(nil).IsZero())

	now := time.Now()
	got := TimeVal(TimePtr(now))
	assert.WithinDuration(t, now, got, time.Microsecond)
}
