package e91

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantalock/qkdsim/internal/cache"
	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

// DefaultPairs is the EPR pair count used when a run does not specify
// one.
const DefaultPairs = 9

// DefaultAliceAngles and DefaultBobAngles are the canonical CHSH
// measurement settings in degrees.
var (
	DefaultAliceAngles = []float64{0, 45}
	DefaultBobAngles   = []float64{22.5, 67.5}
)

// Config describes one E91 run.
type Config struct {
	// Pairs is the number of EPR pairs; zero defaults to DefaultPairs.
	Pairs int

	// AliceAngles and BobAngles are measurement angles in degrees; nil
	// defaults to the canonical CHSH settings.
	AliceAngles []float64
	BobAngles   []float64

	// Shots is the per-combination shot count.
	Shots int

	// NoiseLevel is forwarded to the engine, [0, 0.5].
	NoiseLevel float64

	// ApplyReverseGates enables the mitigation transform when the CHSH
	// test fails.
	ApplyReverseGates bool
}

// Result is the complete outcome of an E91 run.
type Result struct {
	RunID   string
	Circuit *quantum.Circuit

	AliceAngles []float64
	BobAngles   []float64

	Correlations CorrelationTable
	CHSH         CHSHOutcome
	Verdict      Interpretation

	// IsSecure is true iff S violates the classical bound;
	// EveDetected is its negation.
	IsSecure    bool
	EveDetected bool

	// Reverse is set only when the mitigation transform ran.
	Reverse *ReverseReport

	AliceKey []quantum.Bit
	BobKey   []quantum.Bit

	// KeyMatchRate is the percentage of positions where the extracted
	// keys agree, 0 for empty keys.
	KeyMatchRate float64

	Provenance          quantum.Provenance
	Engine              string
	ShotsPerCombination int
	ElapsedMS           int64
}

// Simulator runs the E91 protocol against an execution engine.
type Simulator struct {
	engine   quantum.ExecutionEngine
	store    cache.Store
	maxPairs int
	log      zerolog.Logger
}

// NewSimulator builds an E91 simulator. store may be nil to disable
// result caching; maxPairs of zero disables the pair cap.
func NewSimulator(engine quantum.ExecutionEngine, store cache.Store, maxPairs int, log zerolog.Logger) *Simulator {
	return &Simulator{
		engine:   engine,
		store:    store,
		maxPairs: maxPairs,
		log:      log.With().Str("component", "e91").Logger(),
	}
}

type cacheParams struct {
	Pairs       int       `msgpack:"pairs"`
	AliceAngles []float64 `msgpack:"alice_angles"`
	BobAngles   []float64 `msgpack:"bob_angles"`
	Shots       int       `msgpack:"shots"`
	Noise       float64   `msgpack:"noise"`
	Reverse     bool      `msgpack:"reverse"`
	Engine      string    `msgpack:"engine"`
}

// Run executes one full E91 round: Bell pair generation, correlation
// measurement over every angle combination, the CHSH test, optional
// reverse-gate mitigation, and key extraction from matched angles.
func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	pairs := cfg.Pairs
	if pairs == 0 {
		pairs = DefaultPairs
	}
	if s.maxPairs > 0 && pairs > s.maxPairs {
		return nil, fmt.Errorf("pair count %d exceeds maximum %d", pairs, s.maxPairs)
	}
	aliceAngles := cfg.AliceAngles
	if aliceAngles == nil {
		aliceAngles = DefaultAliceAngles
	}
	bobAngles := cfg.BobAngles
	if bobAngles == nil {
		bobAngles = DefaultBobAngles
	}

	extractor, err := NewExtractor(s.engine, pairs, cfg.NoiseLevel, s.log)
	if err != nil {
		return nil, err
	}

	// E91 has no classical randomness of its own; the run is keyed by
	// its parameters and the engine identity (a seeded offline engine
	// embeds the seed in its name).
	var cacheKey string
	if s.store != nil {
		key, err := cache.Key("e91", cacheParams{
			Pairs:       pairs,
			AliceAngles: aliceAngles,
			BobAngles:   bobAngles,
			Shots:       cfg.Shots,
			Noise:       cfg.NoiseLevel,
			Reverse:     cfg.ApplyReverseGates,
			Engine:      s.engine.Name(),
		})
		if err == nil {
			cacheKey = key
			if cached, ok := s.store.Get(cacheKey); ok {
				if result, ok := cached.(*Result); ok {
					s.log.Debug().Str("key", cacheKey).Msg("cache hit")
					return result, nil
				}
			}
		}
	}

	started := time.Now()
	runID := uuid.New().String()
	log := s.log.With().Str("run_id", runID).Logger()

	log.Debug().
		Int("pairs", pairs).
		Int("combinations", len(aliceAngles)*len(bobAngles)).
		Str("engine", s.engine.Name()).
		Msg("measuring correlations")

	table, provenance, err := extractor.MeasureCorrelations(ctx, aliceAngles, bobAngles, cfg.Shots)
	if err != nil {
		return nil, err
	}

	chsh := CalculateCHSH(table)
	verdict := Interpret(chsh.S)

	result := &Result{
		RunID:               runID,
		Circuit:             extractor.BellPairs(),
		AliceAngles:         aliceAngles,
		BobAngles:           bobAngles,
		Correlations:        table,
		CHSH:                chsh,
		Verdict:             verdict,
		IsSecure:            chsh.S > ClassicalBound,
		EveDetected:         chsh.S <= ClassicalBound,
		Provenance:          provenance,
		Engine:              s.engine.Name(),
		ShotsPerCombination: cfg.Shots,
	}

	if cfg.ApplyReverseGates && result.EveDetected {
		result.Reverse = ApplyReverseGates(table, chsh.S)
	}

	result.AliceKey, result.BobKey = extractor.ExtractKeys(table, aliceAngles, bobAngles)
	result.KeyMatchRate = matchRate(result.AliceKey, result.BobKey)

	result.ElapsedMS = time.Since(started).Milliseconds()

	log.Info().
		Float64("s_parameter", chsh.S).
		Bool("secure", result.IsSecure).
		Str("verdict", string(verdict.Status)).
		Int("key_bits", len(result.AliceKey)).
		Float64("match_rate", result.KeyMatchRate).
		Str("provenance", string(provenance)).
		Int64("elapsed_ms", result.ElapsedMS).
		Msg("run complete")

	if cacheKey != "" {
		s.store.Set(cacheKey, result)
	}

	return result, nil
}

func matchRate(aliceKey, bobKey []quantum.Bit) float64 {
	n := len(aliceKey)
	if len(bobKey) < n {
		n = len(bobKey)
	}
	if n == 0 {
		return 0
	}
	matches := 0
	for i := 0; i < n; i++ {
		if aliceKey[i] == bobKey[i] {
			matches++
		}
	}
	return float64(matches) / float64(n) * 100
}
