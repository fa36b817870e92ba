package quantum

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/sha3"
)

// OfflineEngine is a deterministic, seedable outcome generator used
// when no remote execution engine is available. It reproduces the
// measurement statistics of the protocol circuits classically:
// matching-basis BB84 measurements return the encoded bit, mismatched
// bases collapse to a fair coin, and Bell-pair outcomes are sampled
// from the E(θa,θb) = −cos(θa−θb) correlation law.
//
// Every result carries ProvenanceOffline so downstream consumers can
// always distinguish substituted outcomes from genuine engine output.
//
// Each Execute samples from its own RNG, seeded by the engine seed
// combined with a digest of the circuit. Outcomes therefore depend
// only on (seed, circuit), never on the order or interleaving of
// Execute calls, so concurrent angle-pair fanouts reproduce exactly
// for a fixed seed.
type OfflineEngine struct {
	seed int64
}

// NewOfflineEngine creates an offline engine seeded for reproducible
// runs.
func NewOfflineEngine(seed int64) *OfflineEngine {
	return &OfflineEngine{seed: seed}
}

// Name identifies the offline engine and its seed.
func (e *OfflineEngine) Name() string {
	return fmt.Sprintf("offline:seed=%d", e.seed)
}

// Execute samples outcome histograms for the given circuit.
func (e *OfflineEngine) Execute(ctx context.Context, c *Circuit, opts ExecOptions) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(e.seed ^ circuitSeed(c)))

	var counts map[string]int
	if isEntangled(c) {
		counts = sampleBellPairs(rng, c, opts)
	} else {
		counts = sampleBB84(rng, c, opts)
	}

	return &Result{Counts: counts, Provenance: ProvenanceOffline}, nil
}

// circuitSeed folds a circuit into a deterministic seed component via
// its msgpack encoding, the same stable encoding the result cache keys
// on.
func circuitSeed(c *Circuit) int64 {
	raw, err := msgpack.Marshal(c)
	if err != nil {
		return 0
	}
	digest := sha3.Sum256(raw)
	return int64(binary.BigEndian.Uint64(digest[:8]))
}

func isEntangled(c *Circuit) bool {
	for _, g := range c.Gates {
		if g.Section == SectionEntanglement {
			return true
		}
	}
	return false
}

// qubitPrep is the classical reconstruction of one BB84 slot from the
// circuit's gate list.
type qubitPrep struct {
	value      Bit
	aliceBasis Basis
	bobBasis   Basis
}

func decodeBB84(c *Circuit) []qubitPrep {
	preps := make([]qubitPrep, c.Qubits)
	// Track H/S sequences per qubit to recover the basis transform.
	aliceH := make([]bool, c.Qubits)
	aliceS := make([]bool, c.Qubits)
	bobH := make([]bool, c.Qubits)
	bobSdg := make([]bool, c.Qubits)

	for _, g := range c.Gates {
		if len(g.Targets) == 0 {
			continue
		}
		q := g.Targets[0]
		switch g.Section {
		case SectionAlicePrep:
			switch g.Type {
			case GateX:
				preps[q].value = One
			case GateH:
				aliceH[q] = true
			case GateS:
				aliceS[q] = true
			}
		case SectionBobMeasure:
			switch g.Type {
			case GateH:
				bobH[q] = true
			case GateSdg:
				bobSdg[q] = true
			}
		}
	}

	for q := range preps {
		preps[q].aliceBasis = basisFromTransform(aliceH[q], aliceS[q])
		preps[q].bobBasis = basisFromTransform(bobH[q], bobSdg[q])
	}
	return preps
}

func basisFromTransform(h, s bool) Basis {
	switch {
	case h && s:
		return BasisD
	case h:
		return BasisX
	default:
		return BasisZ
	}
}

func sampleBB84(rng *rand.Rand, c *Circuit, opts ExecOptions) map[string]int {
	preps := decodeBB84(c)
	counts := make(map[string]int)
	outcome := make([]byte, c.Qubits)

	for shot := 0; shot < opts.Shots; shot++ {
		for q, p := range preps {
			measured := p.value
			if p.bobBasis != p.aliceBasis && rng.Float64() < 0.5 {
				measured = 1 - measured
			}
			if opts.NoiseLevel > 0 && rng.Float64() < opts.NoiseLevel {
				measured = 1 - measured
			}
			// most-significant-qubit-last: qubit q at position len-1-q
			outcome[c.Qubits-1-q] = '0' + byte(measured)
		}
		counts[string(outcome)]++
	}

	return counts
}

func sampleBellPairs(rng *rand.Rand, c *Circuit, opts ExecOptions) map[string]int {
	nPairs := c.Qubits / 2

	// Recover measurement angles: RY(−θ) gates tagged per qubit.
	angles := make([]float64, c.Qubits)
	for _, g := range c.Gates {
		if g.Type == GateRY && len(g.Targets) == 1 {
			angles[g.Targets[0]] = -g.Angle
		}
	}

	counts := make(map[string]int)
	outcome := make([]byte, c.Qubits)

	for shot := 0; shot < opts.Shots; shot++ {
		for i := 0; i < nPairs; i++ {
			alice := 2 * i
			bob := 2*i + 1

			// E = −cos(θa−θb); P(same) = (1+E)/2
			corr := -math.Cos(angles[alice] - angles[bob])
			pSame := (1 + corr) / 2

			aliceBit := Bit(rng.Intn(2))
			bobBit := 1 - aliceBit
			if rng.Float64() < pSame {
				bobBit = aliceBit
			}
			if opts.NoiseLevel > 0 && rng.Float64() < opts.NoiseLevel {
				bobBit = Bit(rng.Intn(2))
			}

			outcome[c.Qubits-1-alice] = '0' + byte(aliceBit)
			outcome[c.Qubits-1-bob] = '0' + byte(bobBit)
		}
		counts[string(outcome)]++
	}

	return counts
}
