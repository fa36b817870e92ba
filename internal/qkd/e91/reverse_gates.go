package e91

import (
	"math"

	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

// ReversePhaseDegrees is the fixed corrective phase. The cos(158°)
// damping factor is an observable contract: consumers diff correlation
// values before and after the transform, so the constant and formula
// must not change.
const ReversePhaseDegrees = 158.0

// ReverseReport describes one application of the reverse-gate
// transform.
type ReverseReport struct {
	// Applied is false when S already violates the classical bound and
	// the transform is a no-op.
	Applied bool

	Reason       string
	SParameter   float64
	PhaseDegrees float64

	// Modified is the damped correlation table, nil when not applied.
	// The input table is never mutated.
	Modified CorrelationTable

	// EveInfoReduction is (1 − |cos(phase)|) · 100, rounded to one
	// decimal.
	EveInfoReduction float64
}

// ApplyReverseGates damps every correlation by cos(158°) when the CHSH
// test failed (S ≤ 2.0), modeling destructive interference that
// randomizes a captured eavesdropper's correlation. It is a heuristic
// mitigation, not a proven security reduction.
func ApplyReverseGates(table CorrelationTable, sParameter float64) *ReverseReport {
	if sParameter > ClassicalBound {
		return &ReverseReport{
			Applied:    false,
			Reason:     "CHSH violation confirmed - channel secure",
			SParameter: sParameter,
		}
	}

	factor := math.Cos(degToRad(ReversePhaseDegrees))

	modified := make(CorrelationTable, len(table))
	for pair, corr := range table {
		corr.Value = corr.Value * factor
		modified[pair] = corr
	}

	return &ReverseReport{
		Applied:          true,
		Reason:           "CHSH violation failed",
		SParameter:       sParameter,
		PhaseDegrees:     ReversePhaseDegrees,
		Modified:         modified,
		EveInfoReduction: math.Round((1-math.Abs(factor))*1000) / 10,
	}
}

// ReverseCircuit builds the S, Z, S† gate sequence applied to every
// qubit during the reverse-gate phase.
func ReverseCircuit(nQubits int) *quantum.Circuit {
	c := quantum.NewCircuit(nQubits, nQubits)
	for i := 0; i < nQubits; i++ {
		c.Add(quantum.Gate{Type: quantum.GateS, Targets: []int{i}, Section: quantum.SectionReverse, Label: "Phase shift"})
		c.Add(quantum.Gate{Type: quantum.GateZ, Targets: []int{i}, Section: quantum.SectionReverse, Label: "Flip"})
		c.Add(quantum.Gate{Type: quantum.GateSdg, Targets: []int{i}, Section: quantum.SectionReverse, Label: "Inverse phase"})
	}
	return c
}

// InformationLoss estimates how much of the eavesdropper's information
// the transform destroyed, as percentages.
type InformationLoss struct {
	InitialInfo float64
	FinalInfo   float64
	Destroyed   float64

	// Effectiveness is Destroyed/InitialInfo in percent, 0 when Eve
	// had no information.
	Effectiveness float64
}

// EveInformationLoss derives loss metrics from the S-parameters before
// and after the transform. Eve's information is modeled as maximal at
// S = 0 and zero at the Tsirelson bound.
func EveInformationLoss(originalS, modifiedS float64) InformationLoss {
	if originalS > ClassicalBound {
		return InformationLoss{}
	}

	initial := 1 - originalS/QuantumMax
	if initial < 0 {
		initial = 0
	}

	factor := math.Abs(math.Cos(degToRad(ReversePhaseDegrees)))
	final := initial * factor
	destroyed := initial - final

	loss := InformationLoss{
		InitialInfo: round1(initial * 100),
		FinalInfo:   round1(final * 100),
		Destroyed:   round1(destroyed * 100),
	}
	if initial > 0 {
		loss.Effectiveness = round1(destroyed / initial * 100)
	}
	return loss
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
