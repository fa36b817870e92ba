package quantum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBB84Circuit(t *testing.T) {
	bits := []Bit{0, 1, 0}
	aliceBases := []Basis{BasisZ, BasisX, BasisD}
	bobBases := []Basis{BasisZ, BasisZ, BasisD}

	c, err := BuildBB84Circuit(bits, aliceBases, bobBases)
	require.NoError(t, err)

	assert.Equal(t, 3, c.Qubits)
	assert.Equal(t, 3, c.Clbits)

	// Qubit 0: Z/Z, bit 0 — no prep gates, one measure.
	// Qubit 1: bit 1 encoded with X, prepared in X basis with H.
	// Qubit 2: D basis on both sides — S,H prep and H,Sdg measure.
	var gatesFor = func(q int) []GateType {
		var types []GateType
		for _, g := range c.Gates {
			if g.Type != GateBarrier && len(g.Targets) == 1 && g.Targets[0] == q {
				types = append(types, g.Type)
			}
		}
		return types
	}

	assert.Equal(t, []GateType{GateMeasure}, gatesFor(0))
	assert.Equal(t, []GateType{GateX, GateH, GateMeasure}, gatesFor(1))
	assert.Equal(t, []GateType{GateS, GateH, GateH, GateSdg, GateMeasure}, gatesFor(2))

	// One transmission barrier separates prep from measurement.
	barriers := 0
	for _, g := range c.Gates {
		if g.Type == GateBarrier {
			barriers++
			assert.Equal(t, SectionTransmission, g.Section)
		}
	}
	assert.Equal(t, 1, barriers)
}

func TestBuildBB84CircuitLengthMismatch(t *testing.T) {
	_, err := BuildBB84Circuit([]Bit{0, 1}, []Basis{BasisZ}, []Basis{BasisZ, BasisX})
	assert.Error(t, err)
}

func TestBuildBellPairCircuit(t *testing.T) {
	c := BuildBellPairCircuit(3)
	assert.Equal(t, 6, c.Qubits)

	hGates, cnots := 0, 0
	for _, g := range c.Gates {
		switch g.Type {
		case GateH:
			hGates++
			assert.Equal(t, SectionEntanglement, g.Section)
		case GateCNOT:
			cnots++
			// control is Alice's even qubit, target Bob's odd one
			assert.Equal(t, g.Targets[0]+1, g.Targets[1])
		}
	}
	assert.Equal(t, 3, hGates)
	assert.Equal(t, 3, cnots)
}

func TestWithRotatedMeasurement(t *testing.T) {
	base := BuildBellPairCircuit(2)
	baseGates := len(base.Gates)

	c := WithRotatedMeasurement(base, 45, 22.5)

	// The base circuit is never mutated.
	assert.Len(t, base.Gates, baseGates)

	var rotations []Gate
	measures := 0
	for _, g := range c.Gates {
		switch g.Type {
		case GateRY:
			rotations = append(rotations, g)
		case GateMeasure:
			measures++
		}
	}
	require.Len(t, rotations, 4)
	assert.Equal(t, 4, measures)

	// RY(−θ) with θ in radians, alice then bob per pair.
	assert.InDelta(t, -45*math.Pi/180, rotations[0].Angle, 1e-12)
	assert.InDelta(t, -22.5*math.Pi/180, rotations[1].Angle, 1e-12)
}

func TestCircuitCloneIsIndependent(t *testing.T) {
	c := NewCircuit(2, 2)
	c.Add(Gate{Type: GateH, Targets: []int{0}})

	clone := c.Clone()
	clone.Add(Gate{Type: GateX, Targets: []int{1}})
	clone.Gates[0].Targets[0] = 1

	assert.Len(t, c.Gates, 1)
	assert.Equal(t, 0, c.Gates[0].Targets[0])
}

func TestCircuitDepth(t *testing.T) {
	c := NewCircuit(2, 2)
	assert.Equal(t, 0, c.Depth())

	c.Add(Gate{Type: GateH, Targets: []int{0}})
	c.Add(Gate{Type: GateBarrier, Targets: []int{0, 1}})
	c.Add(Gate{Type: GateX, Targets: []int{0}})
	c.Add(Gate{Type: GateMeasure, Targets: []int{1}})

	// Barriers don't count toward depth.
	assert.Equal(t, 2, c.Depth())
}
