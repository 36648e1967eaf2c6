package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/vidproof/internal/state"
	"github.com/roach88/vidproof/internal/state/statetest"
)

func TestMemoryBackend(t *testing.T) {
	statetest.Run(t, func(t *testing.T, minLive uint32) state.Backend {
		return state.NewMemory(state.WithMinLiveLedgers(minLive))
	})
}

func TestExtend(t *testing.T) {
	tests := []struct {
		name                                   string
		liveUntil, ledger, threshold, extendTo uint32
		want                                   uint32
	}{
		{"plenty remaining", 500, 100, 100, 1000, 500},
		{"exactly threshold remaining", 200, 100, 100, 1000, 200},
		{"below threshold", 150, 100, 100, 1000, 1100},
		{"already expired", 50, 100, 100, 1000, 1100},
		{"never shrinks", 5000, 100, 10000, 1000, 5000},
		{"saturates", 10, ^uint32(0) - 5, 100, 1000, ^uint32(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := state.Extend(tt.liveUntil, tt.ledger, tt.threshold, tt.extendTo)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryLen(t *testing.T) {
	m := state.NewMemory()
	assert.Equal(t, 0, m.Len())
}
