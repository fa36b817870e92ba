package bb84

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantalock/qkdsim/internal/cache"
	"github.com/quantalock/qkdsim/internal/qkd/analysis"
	"github.com/quantalock/qkdsim/internal/qkd/crypto"
	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

// Config describes one BB84 run.
type Config struct {
	// Qubits is the number of raw bits Alice transmits.
	Qubits int

	// Bases is the basis alphabet both sides draw from. Empty defaults
	// to {Z, X}.
	Bases []quantum.Basis

	// Shots is the per-circuit shot count passed to the engine.
	Shots int

	// EveAttack enables the intercept-resend attacker at
	// EveInterceptRatio.
	EveAttack         bool
	EveInterceptRatio float64

	// ErrorCorrection runs a Cascade pass over Bob's sifted key when
	// the sifted keys disagree.
	ErrorCorrection bool

	// NoiseLevel is forwarded to the engine, [0, 0.5].
	NoiseLevel float64

	// Seed fixes the classical randomness (bit and basis choices, Eve)
	// for reproducible runs. Zero draws a fresh seed from the clock.
	Seed int64
}

// Result is the complete outcome of a BB84 run.
type Result struct {
	RunID   string
	Circuit *quantum.Circuit

	AliceBits  []quantum.Bit
	AliceBases []quantum.Basis

	BobBases        []quantum.Basis
	BobMeasurements []quantum.Bit

	Sifted *SiftedKeyPair

	QBER            analysis.Report
	Recommendation  analysis.Recommendation
	SecureKeyLength int

	// EveDetected is a QBER-based inference (QBER above threshold),
	// independent of whether an attacker was actually configured.
	EveDetected        bool
	Eve                *EveTrace
	InformationLeakage float64

	// CorrectedBobKey and DisclosedBits are set only when error
	// correction ran.
	CorrectedBobKey []quantum.Bit
	DisclosedBits   int

	Provenance quantum.Provenance
	Engine     string
	Shots      int
	ElapsedMS  int64
}

// Simulator runs the BB84 protocol against an execution engine.
type Simulator struct {
	engine    quantum.ExecutionEngine
	store     cache.Store
	maxQubits int
	log       zerolog.Logger
}

// NewSimulator builds a BB84 simulator. store may be nil to disable
// result caching.
func NewSimulator(engine quantum.ExecutionEngine, store cache.Store, maxQubits int, log zerolog.Logger) *Simulator {
	return &Simulator{
		engine:    engine,
		store:     store,
		maxQubits: maxQubits,
		log:       log.With().Str("component", "bb84").Logger(),
	}
}

type cacheParams struct {
	Qubits     int     `msgpack:"qubits"`
	Bases      string  `msgpack:"bases"`
	Shots      int     `msgpack:"shots"`
	Eve        bool    `msgpack:"eve"`
	EveRatio   float64 `msgpack:"eve_ratio"`
	Correction bool    `msgpack:"correction"`
	Noise      float64 `msgpack:"noise"`
	Seed       int64   `msgpack:"seed"`
	Engine     string  `msgpack:"engine"`
}

// Run executes one full BB84 round: random bit and basis generation,
// circuit construction, engine execution, optional interception,
// sifting, QBER analysis and optional error correction.
func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Qubits <= 0 {
		return nil, fmt.Errorf("qubit count must be positive, got %d", cfg.Qubits)
	}
	if s.maxQubits > 0 && cfg.Qubits > s.maxQubits {
		return nil, fmt.Errorf("qubit count %d exceeds maximum %d", cfg.Qubits, s.maxQubits)
	}
	bases := cfg.Bases
	if len(bases) == 0 {
		bases = []quantum.Basis{quantum.BasisZ, quantum.BasisX}
	}

	opts := quantum.ExecOptions{Shots: cfg.Shots, NoiseLevel: cfg.NoiseLevel}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// Cache lookups only make sense when the run is fully determined
	// by its parameters, which requires an explicit seed.
	var cacheKey string
	if s.store != nil && cfg.Seed != 0 {
		key, err := cache.Key("bb84", cacheParams{
			Qubits:     cfg.Qubits,
			Bases:      basesString(bases),
			Shots:      cfg.Shots,
			Eve:        cfg.EveAttack,
			EveRatio:   cfg.EveInterceptRatio,
			Correction: cfg.ErrorCorrection,
			Noise:      cfg.NoiseLevel,
			Seed:       cfg.Seed,
			Engine:     s.engine.Name(),
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

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	started := time.Now()
	runID := uuid.New().String()
	log := s.log.With().Str("run_id", runID).Logger()

	aliceBits := quantum.RandomBits(rng, cfg.Qubits)
	aliceBases := quantum.RandomBases(rng, cfg.Qubits, bases)
	bobBases := quantum.RandomBases(rng, cfg.Qubits, bases)

	circuit, err := quantum.BuildBB84Circuit(aliceBits, aliceBases, bobBases)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("qubits", cfg.Qubits).
		Int("depth", circuit.Depth()).
		Str("engine", s.engine.Name()).
		Msg("executing circuit")

	execResult, err := s.engine.Execute(ctx, circuit, opts)
	if err != nil {
		return nil, fmt.Errorf("executing circuit: %w", err)
	}

	bobMeasurements := execResult.OutcomeBits(cfg.Qubits)

	result := &Result{
		RunID:           runID,
		Circuit:         circuit,
		AliceBits:       aliceBits,
		AliceBases:      aliceBases,
		BobBases:        bobBases,
		BobMeasurements: bobMeasurements,
		Provenance:      execResult.Provenance,
		Engine:          s.engine.Name(),
		Shots:           cfg.Shots,
	}

	if cfg.EveAttack {
		attacker, err := NewEveAttacker(cfg.EveInterceptRatio, bases, rng)
		if err != nil {
			return nil, err
		}
		trace, disturbed, err := attacker.Intercept(aliceBits, aliceBases, bobBases, bobMeasurements)
		if err != nil {
			return nil, err
		}
		result.Eve = trace
		result.BobMeasurements = disturbed
		result.InformationLeakage = analysis.InformationLeakage(trace.CorrectGuesses, trace.InterceptCount)
		log.Info().
			Int("intercepted", trace.InterceptCount).
			Float64("expected_error", attacker.ExpectedError()).
			Msg("eavesdropper active")
	}

	sifted, err := SiftKeys(aliceBits, aliceBases, result.BobMeasurements, bobBases)
	if err != nil {
		return nil, err
	}
	result.Sifted = sifted

	result.QBER = analysis.Calculate(sifted.AliceKey, sifted.BobKey)
	result.Recommendation = analysis.Recommend(result.QBER.QBER)
	result.SecureKeyLength = analysis.SecureKeyLength(sifted.SiftedBits, result.QBER.QBER)
	result.EveDetected = !result.QBER.IsSecure

	if cfg.ErrorCorrection && result.QBER.MismatchedBits > 0 {
		corrector := crypto.NewCascadeCorrector(result.QBER.QBER / 100)
		corrected, disclosed, err := corrector.Correct(sifted.AliceKey, sifted.BobKey)
		if err != nil {
			return nil, fmt.Errorf("error correction: %w", err)
		}
		result.CorrectedBobKey = corrected
		result.DisclosedBits = disclosed
	}

	result.ElapsedMS = time.Since(started).Milliseconds()

	log.Info().
		Float64("qber", result.QBER.QBER).
		Bool("secure", result.QBER.IsSecure).
		Int("sifted_bits", sifted.SiftedBits).
		Int("secure_key_length", result.SecureKeyLength).
		Str("provenance", string(result.Provenance)).
		Int64("elapsed_ms", result.ElapsedMS).
		Msg("run complete")

	if cacheKey != "" {
		s.store.Set(cacheKey, result)
	}

	return result, nil
}

func basesString(bases []quantum.Basis) string {
	s := ""
	for _, b := range bases {
		s += b.String()
	}
	return s
}
