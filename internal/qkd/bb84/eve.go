// Package bb84 implements the prepare-and-measure QKD path: the
// intercept-resend eavesdropper model, basis reconciliation, and the
// protocol simulator that drives the execution engine.
package bb84

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

// EveTrace records everything the eavesdropper did during one run.
type EveTrace struct {
	// InterceptedIndices are the slots Eve measured, strictly
	// increasing.
	InterceptedIndices []int

	// EveBases and EveMeasurements are parallel to
	// InterceptedIndices.
	EveBases        []quantum.Basis
	EveMeasurements []quantum.Bit

	// CorrectGuesses counts slots where Eve's basis matched Alice's
	// and she learned the true bit.
	CorrectGuesses int

	InterceptCount int
	ActualRatio    float64
}

// EveAttacker simulates an intercept-resend attack: Eve measures
// intercepted qubits in a random basis and re-sends according to her
// outcome, disturbing slots where her basis differs from Alice's.
type EveAttacker struct {
	interceptRatio float64
	bases          []quantum.Basis
	rng            *rand.Rand
}

// NewEveAttacker creates an attacker intercepting the given fraction of
// slots, choosing measurement bases uniformly from available. The rng
// must be per-run; concurrent runs never share one.
func NewEveAttacker(interceptRatio float64, available []quantum.Basis, rng *rand.Rand) (*EveAttacker, error) {
	if interceptRatio < 0 || interceptRatio > 1 {
		return nil, fmt.Errorf("intercept ratio %g outside [0, 1]", interceptRatio)
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("at least one basis is required")
	}
	return &EveAttacker{
		interceptRatio: interceptRatio,
		bases:          available,
		rng:            rng,
	}, nil
}

// Intercept performs the attack against one protocol round. Bob's
// measurements are not mutated; the disturbed copy is returned.
//
// Resend-error model: when Eve's basis differs from Bob's, his original
// measurement flips with probability 0.5. When her basis matches Bob's
// but not Alice's, Bob receives Eve's (possibly wrong) value.
func (e *EveAttacker) Intercept(
	aliceBits []quantum.Bit,
	aliceBases []quantum.Basis,
	bobBases []quantum.Basis,
	bobMeasurements []quantum.Bit,
) (*EveTrace, []quantum.Bit, error) {
	n := len(aliceBits)
	if len(aliceBases) != n || len(bobBases) != n || len(bobMeasurements) != n {
		return nil, nil, fmt.Errorf("input sequences must all have length %d (alice bases %d, bob bases %d, bob measurements %d)",
			n, len(aliceBases), len(bobBases), len(bobMeasurements))
	}

	nIntercept := int(float64(n) * e.interceptRatio)
	indices := e.rng.Perm(n)[:nIntercept]
	sort.Ints(indices)

	trace := &EveTrace{
		InterceptedIndices: indices,
		EveBases:           make([]quantum.Basis, 0, nIntercept),
		EveMeasurements:    make([]quantum.Bit, 0, nIntercept),
		InterceptCount:     nIntercept,
	}
	if n > 0 {
		trace.ActualRatio = float64(nIntercept) / float64(n)
	}

	modified := make([]quantum.Bit, n)
	copy(modified, bobMeasurements)

	for _, i := range indices {
		eveBasis := e.bases[e.rng.Intn(len(e.bases))]
		trace.EveBases = append(trace.EveBases, eveBasis)

		var eveMeasurement quantum.Bit
		if eveBasis == aliceBases[i] {
			eveMeasurement = aliceBits[i]
			trace.CorrectGuesses++
		} else {
			eveMeasurement = quantum.Bit(e.rng.Intn(2))
		}
		trace.EveMeasurements = append(trace.EveMeasurements, eveMeasurement)

		if eveBasis != bobBases[i] {
			if e.rng.Float64() < 0.5 {
				modified[i] = 1 - bobMeasurements[i]
			}
		} else if eveBasis != aliceBases[i] {
			modified[i] = eveMeasurement
		}
	}

	return trace, modified, nil
}

// ExpectedError returns the theoretical QBER in percent induced by
// random-basis interception: an error needs a wrong basis
// ((b−1)/b chance over b distinct bases) and a bad re-preparation
// (0.5), scaled by the intercept ratio.
func (e *EveAttacker) ExpectedError() float64 {
	matchProbability := 1 / float64(quantum.DistinctBases(e.bases))
	return (1 - matchProbability) * 0.5 * e.interceptRatio * 100
}
