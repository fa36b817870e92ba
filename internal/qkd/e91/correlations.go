// Package e91 implements the entanglement-based QKD path: correlation
// extraction over measurement-angle combinations, the CHSH Bell test,
// and the reverse-gate mitigation transform.
package e91

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

// AnglePair identifies one (alice, bob) measurement-angle combination
// in degrees.
type AnglePair struct {
	Alice float64
	Bob   float64
}

// Correlation is the measured coefficient E(θa, θb) for one angle pair,
// together with the raw outcome histogram it was computed from.
type Correlation struct {
	AliceAngle float64
	BobAngle   float64

	// Value is E = P(same) − P(different), in [−1, 1].
	Value float64

	Counts map[string]int
	Shots  int
}

// CorrelationTable maps angle pairs to their measured correlations.
type CorrelationTable map[AnglePair]Correlation

// Extractor drives the execution engine across angle combinations and
// computes per-pair correlation coefficients.
type Extractor struct {
	engine     quantum.ExecutionEngine
	nPairs     int
	noiseLevel float64
	log        zerolog.Logger
}

// NewExtractor builds an extractor over nPairs EPR pairs.
func NewExtractor(engine quantum.ExecutionEngine, nPairs int, noiseLevel float64, log zerolog.Logger) (*Extractor, error) {
	if nPairs <= 0 {
		return nil, fmt.Errorf("pair count must be positive, got %d", nPairs)
	}
	return &Extractor{
		engine:     engine,
		nPairs:     nPairs,
		noiseLevel: noiseLevel,
		log:        log.With().Str("component", "e91").Logger(),
	}, nil
}

// BellPairs returns the entanglement circuit the measurements are
// appended to.
func (x *Extractor) BellPairs() *quantum.Circuit {
	return quantum.BuildBellPairCircuit(x.nPairs)
}

// MeasureCorrelations executes one rotated-measurement circuit per
// angle combination and assembles the correlation table. Combinations
// are independent, so they run concurrently; the first engine error
// aborts the whole measurement.
func (x *Extractor) MeasureCorrelations(
	ctx context.Context,
	aliceAngles, bobAngles []float64,
	shots int,
) (CorrelationTable, quantum.Provenance, error) {
	opts := quantum.ExecOptions{Shots: shots, NoiseLevel: x.noiseLevel}
	if err := opts.Validate(); err != nil {
		return nil, "", err
	}
	if len(aliceAngles) == 0 || len(bobAngles) == 0 {
		return nil, "", fmt.Errorf("at least one measurement angle per side is required")
	}

	base := x.BellPairs()
	table := make(CorrelationTable, len(aliceAngles)*len(bobAngles))
	var provenance quantum.Provenance

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, a := range aliceAngles {
		for _, b := range bobAngles {
			wg.Add(1)
			go func(aliceDeg, bobDeg float64) {
				defer wg.Done()

				circuit := quantum.WithRotatedMeasurement(base, aliceDeg, bobDeg)
				result, err := x.engine.Execute(ctx, circuit, opts)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("measuring (%g, %g): %w", aliceDeg, bobDeg, err)
					}
					return
				}
				provenance = result.Provenance
				table[AnglePair{Alice: aliceDeg, Bob: bobDeg}] = Correlation{
					AliceAngle: aliceDeg,
					BobAngle:   bobDeg,
					Value:      correlationFromCounts(result.Counts, x.nPairs),
					Counts:     result.Counts,
					Shots:      shots,
				}
			}(a, b)
		}
	}

	wg.Wait()
	if firstErr != nil {
		return nil, "", firstErr
	}

	x.log.Debug().
		Int("combinations", len(table)).
		Int("pairs", x.nPairs).
		Int("shots", shots).
		Msg("correlations measured")

	return table, provenance, nil
}

// correlationFromCounts computes E = (same − different) / (shots ·
// nPairs), comparing the two outcome bits of each pair. Outcome strings
// are most-significant-qubit-last, so qubit q is character len−1−q.
func correlationFromCounts(counts map[string]int, nPairs int) float64 {
	sameWeights := make([]float64, 0, len(counts))
	diffWeights := make([]float64, 0, len(counts))
	total := 0

	for outcome, count := range counts {
		total += count
		for i := 0; i < nPairs; i++ {
			aliceIdx := len(outcome) - 1 - 2*i
			bobIdx := aliceIdx - 1
			if bobIdx < 0 {
				continue
			}
			if outcome[aliceIdx] == outcome[bobIdx] {
				sameWeights = append(sameWeights, float64(count))
			} else {
				diffWeights = append(diffWeights, float64(count))
			}
		}
	}

	measurements := float64(total * nPairs)
	if measurements == 0 {
		return 0
	}

	return round4((floats.Sum(sameWeights) - floats.Sum(diffWeights)) / measurements)
}

// ExtractKeys builds sifted keys from angle pairs where Alice and Bob
// measured at exactly the same angle; all other pairs contribute no key
// bits. Each distinct outcome of a matching pair contributes one bit
// per EPR pair, decoded in sorted outcome order so extraction is
// deterministic.
func (x *Extractor) ExtractKeys(table CorrelationTable, aliceAngles, bobAngles []float64) ([]quantum.Bit, []quantum.Bit) {
	var aliceKey, bobKey []quantum.Bit

	for _, a := range aliceAngles {
		for _, b := range bobAngles {
			if a != b {
				continue
			}
			corr, ok := table[AnglePair{Alice: a, Bob: b}]
			if !ok {
				continue
			}

			outcomes := make([]string, 0, len(corr.Counts))
			for outcome := range corr.Counts {
				outcomes = append(outcomes, outcome)
			}
			sort.Strings(outcomes)

			for _, outcome := range outcomes {
				for i := 0; i < x.nPairs; i++ {
					aliceIdx := len(outcome) - 1 - 2*i
					bobIdx := aliceIdx - 1
					if bobIdx < 0 {
						continue
					}
					aliceKey = append(aliceKey, bitFromByte(outcome[aliceIdx]))
					bobKey = append(bobKey, bitFromByte(outcome[bobIdx]))
				}
			}
		}
	}

	return aliceKey, bobKey
}

func bitFromByte(c byte) quantum.Bit {
	if c == '1' {
		return quantum.One
	}
	return quantum.Zero
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
