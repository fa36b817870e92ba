package quantum

import (
	"fmt"
	"math"
)

// GateType identifies a quantum gate in a circuit description.
type GateType string

const (
	GateX       GateType = "X"
	GateZ       GateType = "Z"
	GateH       GateType = "H"
	GateS       GateType = "S"
	GateSdg     GateType = "Sdg"
	GateCNOT    GateType = "CNOT"
	GateRY      GateType = "RY"
	GateBarrier GateType = "BARRIER"
	GateMeasure GateType = "MEASURE"
)

// Section tags the logical role a gate plays inside a protocol circuit.
type Section string

const (
	SectionAlicePrep    Section = "alice-prep"
	SectionTransmission Section = "transmission"
	SectionBobMeasure   Section = "bob-measure"
	SectionEntanglement Section = "entanglement"
	SectionMeasurement  Section = "measurement"
	SectionReverse      Section = "reverse"
)

// Gate is a single operation in a circuit description. Angle is only
// meaningful for rotation gates and is given in radians.
type Gate struct {
	Type    GateType `json:"type" msgpack:"type"`
	Targets []int    `json:"targets" msgpack:"targets"`
	Angle   float64  `json:"angle,omitempty" msgpack:"angle,omitempty"`
	Section Section  `json:"section" msgpack:"section"`
	Label   string   `json:"label,omitempty" msgpack:"label,omitempty"`
}

// Circuit is an opaque, engine-independent circuit description. The
// execution engine is the only component that interprets it.
type Circuit struct {
	Qubits int    `json:"n_qubits" msgpack:"n_qubits"`
	Clbits int    `json:"n_classical" msgpack:"n_classical"`
	Gates  []Gate `json:"gates" msgpack:"gates"`
}

// NewCircuit creates an empty circuit over the given registers.
func NewCircuit(qubits, clbits int) *Circuit {
	return &Circuit{Qubits: qubits, Clbits: clbits}
}

// Add appends a gate to the circuit.
func (c *Circuit) Add(g Gate) {
	c.Gates = append(c.Gates, g)
}

// Clone returns a deep copy of the circuit.
func (c *Circuit) Clone() *Circuit {
	out := &Circuit{Qubits: c.Qubits, Clbits: c.Clbits, Gates: make([]Gate, len(c.Gates))}
	for i, g := range c.Gates {
		targets := make([]int, len(g.Targets))
		copy(targets, g.Targets)
		g.Targets = targets
		out.Gates[i] = g
	}
	return out
}

// Depth reports the maximum number of non-barrier gates applied to any
// single qubit, a cheap stand-in for true circuit depth.
func (c *Circuit) Depth() int {
	perQubit := make([]int, c.Qubits)
	depth := 0
	for _, g := range c.Gates {
		if g.Type == GateBarrier {
			continue
		}
		for _, t := range g.Targets {
			if t < 0 || t >= c.Qubits {
				continue
			}
			perQubit[t]++
			if perQubit[t] > depth {
				depth = perQubit[t]
			}
		}
	}
	return depth
}

// BuildBB84Circuit constructs the full prepare-transmit-measure circuit
// for one BB84 round: Alice encodes each bit in her basis, a barrier
// marks the transmission, and Bob rotates into his basis and measures.
func BuildBB84Circuit(bits []Bit, aliceBases, bobBases []Basis) (*Circuit, error) {
	n := len(bits)
	if len(aliceBases) != n || len(bobBases) != n {
		return nil, fmt.Errorf("bits (%d), alice bases (%d) and bob bases (%d) must have the same length",
			n, len(aliceBases), len(bobBases))
	}

	c := NewCircuit(n, n)

	for i := 0; i < n; i++ {
		if bits[i] == One {
			c.Add(Gate{Type: GateX, Targets: []int{i}, Section: SectionAlicePrep, Label: "Encode 1"})
		}
		switch aliceBases[i] {
		case BasisZ:
			// computational basis, no transform
		case BasisX:
			c.Add(Gate{Type: GateH, Targets: []int{i}, Section: SectionAlicePrep, Label: "X-basis"})
		case BasisD:
			c.Add(Gate{Type: GateS, Targets: []int{i}, Section: SectionAlicePrep, Label: "D-basis"})
			c.Add(Gate{Type: GateH, Targets: []int{i}, Section: SectionAlicePrep, Label: "D-basis"})
		}
	}

	c.Add(Gate{Type: GateBarrier, Targets: allQubits(n), Section: SectionTransmission})

	for i := 0; i < n; i++ {
		switch bobBases[i] {
		case BasisZ:
			// measure directly
		case BasisX:
			c.Add(Gate{Type: GateH, Targets: []int{i}, Section: SectionBobMeasure, Label: "X-measure"})
		case BasisD:
			c.Add(Gate{Type: GateH, Targets: []int{i}, Section: SectionBobMeasure, Label: "D-measure"})
			c.Add(Gate{Type: GateSdg, Targets: []int{i}, Section: SectionBobMeasure, Label: "D-measure"})
		}
		c.Add(Gate{Type: GateMeasure, Targets: []int{i}, Section: SectionBobMeasure})
	}

	return c, nil
}

// BuildBellPairCircuit creates nPairs EPR pairs |Φ+⟩ = (|00⟩+|11⟩)/√2.
// Qubit 2i belongs to Alice, qubit 2i+1 to Bob.
func BuildBellPairCircuit(nPairs int) *Circuit {
	n := nPairs * 2
	c := NewCircuit(n, n)

	for i := 0; i < nPairs; i++ {
		alice := 2 * i
		bob := 2*i + 1
		c.Add(Gate{Type: GateH, Targets: []int{alice}, Section: SectionEntanglement, Label: "Bell state"})
		c.Add(Gate{Type: GateCNOT, Targets: []int{alice, bob}, Section: SectionEntanglement, Label: "Entangle"})
	}

	c.Add(Gate{Type: GateBarrier, Targets: allQubits(n), Section: SectionMeasurement})

	return c
}

// WithRotatedMeasurement appends RY(−θ) rotations for one angle pair
// (degrees) and measures every qubit. The base circuit is not modified.
func WithRotatedMeasurement(base *Circuit, aliceDeg, bobDeg float64) *Circuit {
	c := base.Clone()
	nPairs := c.Qubits / 2

	for i := 0; i < nPairs; i++ {
		alice := 2 * i
		bob := 2*i + 1

		c.Add(Gate{Type: GateRY, Targets: []int{alice}, Angle: -degToRad(aliceDeg), Section: SectionMeasurement})
		c.Add(Gate{Type: GateRY, Targets: []int{bob}, Angle: -degToRad(bobDeg), Section: SectionMeasurement})
		c.Add(Gate{Type: GateMeasure, Targets: []int{alice}, Section: SectionMeasurement})
		c.Add(Gate{Type: GateMeasure, Targets: []int{bob}, Section: SectionMeasurement})
	}

	return c
}

func allQubits(n int) []int {
	targets := make([]int, n)
	for i := range targets {
		targets[i] = i
	}
	return targets
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
