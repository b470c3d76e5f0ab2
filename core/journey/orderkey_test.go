package journey

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestAllocateOrderKey(t *testing.T) {
	tests := []struct {
		name     string
		keys     []float64
		position int
		want     float64
		wantErr  error
	}{
		{name: "empty stage", keys: nil, position: 0, want: 500},
		{name: "empty stage: out of range", keys: nil, position: 1, wantErr: ErrInvalidPosition},
		{name: "before first", keys: []float64{1000, 2000, 3000}, position: 0, want: 500},
		{name: "after last", keys: []float64{1000, 2000, 3000}, position: 3, want: 4000},
		{name: "between", keys: []float64{1000, 2000, 3000}, position: 2, want: 2500},
		{name: "unsorted input", keys: []float64{3000, 1000, 2000}, position: 1, want: 1500},
		{name: "non-positive first key", keys: []float64{0, 10}, position: 0, want: -1000},
		{name: "negative position", keys: []float64{1000}, position: -1, wantErr: ErrInvalidPosition},
		{name: "position past the end", keys: []float64{1000}, position: 2, wantErr: ErrInvalidPosition},
		{name: "equal neighbours", keys: []float64{1000, 1000}, position: 1, wantErr: ErrOrderKeyExhausted},
		{name: "adjacent floats", keys: []float64{1, math.Nextafter(1, 2)}, position: 1, wantErr: ErrOrderKeyExhausted},
		{name: "too large to append", keys: []float64{1e300}, position: 1, wantErr: ErrOrderKeyExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AllocateOrderKey(tt.keys, tt.position)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllocateOrderKey_successiveInsertions(t *testing.T) {
	keys := []float64{1000, 2000, 3000}

	// after the 2nd course
	k, err := AllocateOrderKey(keys, 2)
	assert.NoError(t, err)
	assert.Equal(t, 2500.0, k)
	keys = []float64{1000, 2000, k, 3000}

	// after the newly inserted course
	k, err = AllocateOrderKey(keys, 3)
	assert.NoError(t, err)
	assert.Equal(t, 2750.0, k)
}

func TestNeedsRebalance(t *testing.T) {
	courses := []Course{{ID: 1, OrderKey: 1000}, {ID: 2, OrderKey: 1000.0000001}, {ID: 3, OrderKey: 3000}}
	assert.True(t, NeedsRebalance(courses, 1e-6))
	assert.False(t, NeedsRebalance(courses, 1e-9))
	assert.True(t, NeedsRebalance([]Course{{ID: 1, OrderKey: 5}, {ID: 2, OrderKey: 5}}, 1e-9))
	assert.False(t, NeedsRebalance(nil, 1))
}

func TestRebalancedKeys(t *testing.T) {
	courses := []Course{
		{ID: 3, OrderKey: 2.5},
		{ID: 1, OrderKey: 2},
		{ID: 2, OrderKey: 2},
	}
	assert.Equal(t, map[int]float64{1: 1000, 2: 2000, 3: 3000}, RebalancedKeys(courses))
}

// Keys allocated at any position keep the requested display order and stay strictly between neighbours.
func TestAllocateOrderKey_properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		// grow a stage through the allocator itself
		var keys []float64
		for i := rapid.IntRange(0, 30).Draw(rt, "existing"); i > 0; i-- {
			pos := rapid.IntRange(0, len(keys)).Draw(rt, "seedPosition")
			k, err := AllocateOrderKey(keys, pos)
			if err != nil {
				rt.Fatalf("seeding: %v", err)
			}
			keys = append(keys, k)
			sort.Float64s(keys)
		}

		pos := rapid.IntRange(0, len(keys)).Draw(rt, "position")
		key, err := AllocateOrderKey(keys, pos)
		if err != nil {
			rt.Fatalf("AllocateOrderKey(%v, %d): %v", keys, pos, err)
		}

		if pos > 0 && !(keys[pos-1] < key) {
			rt.Fatalf("key %v not after its predecessor %v", key, keys[pos-1])
		}
		if pos < len(keys) && !(key < keys[pos]) {
			rt.Fatalf("key %v not before its successor %v", key, keys[pos])
		}

		// the new course lands right at the requested position once the stage is sorted
		all := append(append([]float64(nil), keys...), key)
		sort.Float64s(all)
		if all[pos] != key {
			rt.Fatalf("key %v sorted at the wrong position in %v (want %d)", key, all, pos)
		}
	})
}
