package e91

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantalock/qkdsim/internal/cache"
	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

func TestSimulatorRunDefaults(t *testing.T) {
	sim := NewSimulator(quantum.NewOfflineEngine(7), nil, 0, zerolog.Nop())

	result, err := sim.Run(context.Background(), Config{Shots: 256})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, DefaultAliceAngles, result.AliceAngles)
	assert.Equal(t, DefaultBobAngles, result.BobAngles)
	assert.Equal(t, quantum.ProvenanceOffline, result.Provenance)
	assert.Equal(t, 2*DefaultPairs, result.Circuit.Qubits)

	// 2×2 angle combinations.
	assert.Len(t, result.Correlations, 4)
	for pair, corr := range result.Correlations {
		assert.GreaterOrEqual(t, corr.Value, -1.0, "pair %+v", pair)
		assert.LessOrEqual(t, corr.Value, 1.0, "pair %+v", pair)
	}

	assert.Equal(t, result.CHSH.S > ClassicalBound, result.IsSecure)
	assert.Equal(t, !result.IsSecure, result.EveDetected)
	assert.NotEmpty(t, result.Verdict.Status)

	// No matching angles in the canonical settings, so no key bits.
	assert.Empty(t, result.AliceKey)
	assert.Zero(t, result.KeyMatchRate)
}

func TestSimulatorRunMatchingAnglesYieldKey(t *testing.T) {
	sim := NewSimulator(quantum.NewOfflineEngine(11), nil, 0, zerolog.Nop())

	result, err := sim.Run(context.Background(), Config{
		Pairs:       4,
		AliceAngles: []float64{0, 45},
		BobAngles:   []float64{45, 90},
		Shots:       128,
	})
	require.NoError(t, err)

	// The (45,45) combination contributes key bits.
	assert.NotEmpty(t, result.AliceKey)
	assert.Len(t, result.BobKey, len(result.AliceKey))
}

func TestSimulatorReverseGates(t *testing.T) {
	sim := NewSimulator(quantum.NewOfflineEngine(13), nil, 0, zerolog.Nop())

	result, err := sim.Run(context.Background(), Config{
		Pairs:             2,
		Shots:             256,
		ApplyReverseGates: true,
	})
	require.NoError(t, err)

	if result.EveDetected {
		require.NotNil(t, result.Reverse)
		assert.True(t, result.Reverse.Applied)
		assert.Len(t, result.Reverse.Modified, len(result.Correlations))
	} else {
		assert.Nil(t, result.Reverse)
	}
}

func TestSimulatorValidation(t *testing.T) {
	sim := NewSimulator(quantum.NewOfflineEngine(1), nil, 0, zerolog.Nop())

	_, err := sim.Run(context.Background(), Config{Pairs: -1, Shots: 16})
	assert.Error(t, err)

	_, err = sim.Run(context.Background(), Config{Shots: 0})
	assert.ErrorIs(t, err, quantum.ErrInvalidShots)
}

func TestSimulatorPairCap(t *testing.T) {
	sim := NewSimulator(quantum.NewOfflineEngine(1), nil, 4, zerolog.Nop())

	_, err := sim.Run(context.Background(), Config{Pairs: 5, Shots: 16})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestSimulatorRunCached(t *testing.T) {
	store := cache.NewLRU(8)
	sim := NewSimulator(quantum.NewOfflineEngine(17), store, 0, zerolog.Nop())

	cfg := Config{Pairs: 2, Shots: 64}
	first, err := sim.Run(context.Background(), cfg)
	require.NoError(t, err)

	second, err := sim.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, 1, store.Len())

	// Different parameters miss the cache.
	third, err := sim.Run(context.Background(), Config{Pairs: 3, Shots: 64})
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, third.RunID)
	assert.Equal(t, 2, store.Len())
}

func TestMatchRate(t *testing.T) {
	assert.Equal(t, 0.0, matchRate(nil, nil))
	assert.Equal(t, 100.0, matchRate([]quantum.Bit{0, 1}, []quantum.Bit{0, 1}))
	assert.Equal(t, 50.0, matchRate([]quantum.Bit{0, 1}, []quantum.Bit{0, 0}))
}
