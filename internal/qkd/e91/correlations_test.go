package e91

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

// stubEngine returns a fixed histogram for every execution.
type stubEngine struct {
	counts map[string]int
	err    error
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Execute(ctx context.Context, c *quantum.Circuit, opts quantum.ExecOptions) (*quantum.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &quantum.Result{Counts: s.counts, Provenance: quantum.ProvenanceRemote}, nil
}

func TestNewExtractorValidation(t *testing.T) {
	_, err := NewExtractor(&stubEngine{}, 0, 0, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewExtractor(&stubEngine{}, 2, 0, zerolog.Nop())
	assert.NoError(t, err)
}

func TestMeasureCorrelationsReproducibleForSeed(t *testing.T) {
	// The angle-pair fanout runs concurrently; a fixed engine seed must
	// still yield the same table on every run.
	run := func() CorrelationTable {
		extractor, err := NewExtractor(quantum.NewOfflineEngine(42), 2, 0, zerolog.Nop())
		require.NoError(t, err)
		table, _, err := extractor.MeasureCorrelations(context.Background(), []float64{0, 45}, []float64{22.5, 67.5}, 256)
		require.NoError(t, err)
		return table
	}

	first := run()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run(), "iteration %d", i)
	}
}

func TestMeasureCorrelationsPerfectlyCorrelated(t *testing.T) {
	engine := &stubEngine{counts: map[string]int{"0000": 512, "1111": 512}}
	extractor, err := NewExtractor(engine, 2, 0, zerolog.Nop())
	require.NoError(t, err)

	table, provenance, err := extractor.MeasureCorrelations(context.Background(), []float64{0, 45}, []float64{45}, 1024)
	require.NoError(t, err)

	assert.Equal(t, quantum.ProvenanceRemote, provenance)
	require.Len(t, table, 2)

	// Both pair halves agree in every outcome: E = +1.
	corr := table[AnglePair{Alice: 45, Bob: 45}]
	assert.Equal(t, 1.0, corr.Value)
	assert.Equal(t, 1024, corr.Shots)
	assert.Equal(t, engine.counts, corr.Counts)
}

func TestMeasureCorrelationsAnticorrelated(t *testing.T) {
	engine := &stubEngine{counts: map[string]int{"01": 600, "10": 424}}
	extractor, err := NewExtractor(engine, 1, 0, zerolog.Nop())
	require.NoError(t, err)

	table, _, err := extractor.MeasureCorrelations(context.Background(), []float64{0}, []float64{90}, 1024)
	require.NoError(t, err)

	corr := table[AnglePair{Alice: 0, Bob: 90}]
	assert.Equal(t, -1.0, corr.Value)
}

func TestMeasureCorrelationsMixed(t *testing.T) {
	// One pair, half same, half different: E = 0.
	engine := &stubEngine{counts: map[string]int{"00": 256, "11": 256, "01": 256, "10": 256}}
	extractor, err := NewExtractor(engine, 1, 0, zerolog.Nop())
	require.NoError(t, err)

	table, _, err := extractor.MeasureCorrelations(context.Background(), []float64{0}, []float64{45}, 1024)
	require.NoError(t, err)

	assert.Equal(t, 0.0, table[AnglePair{Alice: 0, Bob: 45}].Value)
}

func TestMeasureCorrelationsValidation(t *testing.T) {
	extractor, err := NewExtractor(&stubEngine{}, 1, 0, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = extractor.MeasureCorrelations(ctx, []float64{0}, []float64{45}, 0)
	assert.ErrorIs(t, err, quantum.ErrInvalidShots)

	_, _, err = extractor.MeasureCorrelations(ctx, nil, []float64{45}, 16)
	assert.Error(t, err)
}

func TestMeasureCorrelationsPropagatesEngineError(t *testing.T) {
	engineErr := errors.New("backend exploded")
	extractor, err := NewExtractor(&stubEngine{err: engineErr}, 1, 0, zerolog.Nop())
	require.NoError(t, err)

	_, _, err = extractor.MeasureCorrelations(context.Background(), []float64{0, 45}, []float64{45}, 16)
	require.Error(t, err)
	assert.ErrorIs(t, err, engineErr)
}

func TestExtractKeysMatchingAngles(t *testing.T) {
	extractor, err := NewExtractor(&stubEngine{}, 2, 0, zerolog.Nop())
	require.NoError(t, err)

	table := CorrelationTable{
		{Alice: 45, Bob: 45}: {
			AliceAngle: 45,
			BobAngle:   45,
			Value:      1.0,
			Counts:     map[string]int{"0000": 512, "1111": 512},
			Shots:      1024,
		},
	}

	aliceKey, bobKey := extractor.ExtractKeys(table, []float64{45, 90}, []float64{45, 90})

	// Two outcomes, two pairs each, in sorted outcome order.
	require.Len(t, aliceKey, 4)
	require.Len(t, bobKey, 4)
	assert.Equal(t, []quantum.Bit{0, 0, 1, 1}, aliceKey)
	assert.Equal(t, aliceKey, bobKey)
}

func TestExtractKeysNoMatchingAngles(t *testing.T) {
	extractor, err := NewExtractor(&stubEngine{}, 1, 0, zerolog.Nop())
	require.NoError(t, err)

	table := CorrelationTable{
		{Alice: 0, Bob: 45}: {Counts: map[string]int{"00": 1024}},
	}

	aliceKey, bobKey := extractor.ExtractKeys(table, []float64{0}, []float64{45})
	assert.Empty(t, aliceKey)
	assert.Empty(t, bobKey)
}

func TestBellPairsCircuit(t *testing.T) {
	extractor, err := NewExtractor(&stubEngine{}, 3, 0, zerolog.Nop())
	require.NoError(t, err)

	c := extractor.BellPairs()
	assert.Equal(t, 6, c.Qubits)
}
