package e91

import (
	"math"
	"sort"
)

// CHSH inequality bounds. QuantumMax is the Tsirelson bound
// 2√2 ≈ 2.8284, a reference value only; sampled S may exceed it
// through statistical noise and is never clamped.
const (
	ClassicalBound = 2.0
	QuantumMax     = 2 * math.Sqrt2
)

// CHSHAngles records the four angles (degrees) a CHSH computation used.
type CHSHAngles struct {
	A      float64
	APrime float64
	B      float64
	BPrime float64
}

// CHSHOutcome is the result of a Bell test over a correlation table.
type CHSHOutcome struct {
	// S is |E(a,b) + E(a,b') + E(a',b) − E(a',b')|, rounded to four
	// decimals.
	S float64

	// ViolatesClassical is true iff S > ClassicalBound.
	ViolatesClassical bool

	ClassicalBound float64
	QuantumMax     float64

	Angles CHSHAngles

	// Terms holds the four expectation values entering S, keyed
	// E(a,b), E(a,b'), E(a',b), E(a',b').
	Terms map[string]float64

	// Expectations lists every measured correlation by angle pair.
	Expectations map[AnglePair]float64

	// Note is set on degenerate inputs (fewer than two distinct angles
	// on a side); S is then 0 and the outcome is informational, not a
	// fault.
	Note string
}

// CalculateCHSH computes the S-parameter from a correlation table.
//
// The two smallest distinct angles on each side are used as (a, a') and
// (b, b'). These are not necessarily optimal CHSH settings; callers
// that want the canonical Bell test must supply the canonical angle
// set, since no optimal-angle search is performed here.
func CalculateCHSH(table CorrelationTable) CHSHOutcome {
	expectations := make(map[AnglePair]float64, len(table))
	aliceSet := make(map[float64]struct{})
	bobSet := make(map[float64]struct{})

	for pair, corr := range table {
		expectations[pair] = corr.Value
		aliceSet[pair.Alice] = struct{}{}
		bobSet[pair.Bob] = struct{}{}
	}

	aliceAngles := sortedAngles(aliceSet)
	bobAngles := sortedAngles(bobSet)

	if len(aliceAngles) < 2 || len(bobAngles) < 2 {
		return CHSHOutcome{
			S:              0,
			ClassicalBound: ClassicalBound,
			QuantumMax:     round4(QuantumMax),
			Expectations:   expectations,
			Note:           "insufficient angle combinations for CHSH test",
		}
	}

	a, aPrime := aliceAngles[0], aliceAngles[1]
	b, bPrime := bobAngles[0], bobAngles[1]

	eAB := lookupCorrelation(table, a, b)
	eABPrime := lookupCorrelation(table, a, bPrime)
	eAPrimeB := lookupCorrelation(table, aPrime, b)
	eAPrimeBPrime := lookupCorrelation(table, aPrime, bPrime)

	s := math.Abs(eAB + eABPrime + eAPrimeB - eAPrimeBPrime)

	return CHSHOutcome{
		S:                 round4(s),
		ViolatesClassical: s > ClassicalBound,
		ClassicalBound:    ClassicalBound,
		QuantumMax:        round4(QuantumMax),
		Angles:            CHSHAngles{A: a, APrime: aPrime, B: b, BPrime: bPrime},
		Terms: map[string]float64{
			"E(a,b)":   eAB,
			"E(a,b')":  eABPrime,
			"E(a',b)":  eAPrimeB,
			"E(a',b')": eAPrimeBPrime,
		},
		Expectations: expectations,
	}
}

func lookupCorrelation(table CorrelationTable, alice, bob float64) float64 {
	if corr, ok := table[AnglePair{Alice: alice, Bob: bob}]; ok {
		return corr.Value
	}
	return 0
}

func sortedAngles(set map[float64]struct{}) []float64 {
	angles := make([]float64, 0, len(set))
	for a := range set {
		angles = append(angles, a)
	}
	sort.Float64s(angles)
	return angles
}

// TheoreticalS evaluates the CHSH sum under the idealized singlet
// correlation E(θa, θb) = −cos(θa − θb), with the same (a, a', b, b')
// assignment and term signs as CalculateCHSH. Nil angle slices default
// to the canonical settings (0, 45) and (22.5, 67.5). Useful as a test
// oracle against measured correlations.
func TheoreticalS(aliceAngles, bobAngles []float64) float64 {
	if aliceAngles == nil {
		aliceAngles = []float64{0, 45}
	}
	if bobAngles == nil {
		bobAngles = []float64{22.5, 67.5}
	}

	a := degToRad(aliceAngles[0])
	aPrime := degToRad(aliceAngles[1])
	b := degToRad(bobAngles[0])
	bPrime := degToRad(bobAngles[1])

	eAB := -math.Cos(a - b)
	eABPrime := -math.Cos(a - bPrime)
	eAPrimeB := -math.Cos(aPrime - b)
	eAPrimeBPrime := -math.Cos(aPrime - bPrime)

	return round4(math.Abs(eAB + eABPrime + eAPrimeB - eAPrimeBPrime))
}

// Verdict is the ordinal E91 security tier.
type Verdict string

const (
	VerdictSecure     Verdict = "secure"
	VerdictMarginal   Verdict = "marginal"
	VerdictSuspicious Verdict = "suspicious"
	VerdictInsecure   Verdict = "insecure"
)

// Interpretation pairs a tier with its explanation.
type Interpretation struct {
	Status      Verdict
	Message     string
	Explanation string
	Confidence  string
	Color       string
}

// Interpret maps an S-parameter onto the four security tiers.
func Interpret(s float64) Interpretation {
	switch {
	case s > 2.5:
		return Interpretation{
			Status:      VerdictSecure,
			Message:     "Strong quantum violation detected",
			Explanation: "Correlations are genuinely quantum - no eavesdropper",
			Confidence:  "high",
			Color:       "green",
		}
	case s > ClassicalBound:
		return Interpretation{
			Status:      VerdictMarginal,
			Message:     "Weak quantum violation detected",
			Explanation: "Some quantum correlations present, but noise or partial eavesdropping possible",
			Confidence:  "medium",
			Color:       "yellow",
		}
	case s > 1.5:
		return Interpretation{
			Status:      VerdictSuspicious,
			Message:     "Below classical bound but non-zero correlations",
			Explanation: "Possible eavesdropping or severe decoherence",
			Confidence:  "low",
			Color:       "orange",
		}
	default:
		return Interpretation{
			Status:      VerdictInsecure,
			Message:     "No quantum violation - channel compromised",
			Explanation: "Classical correlations only - eavesdropper present",
			Confidence:  "high",
			Color:       "red",
		}
	}
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
