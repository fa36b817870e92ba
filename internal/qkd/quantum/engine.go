package quantum

import (
	"context"
	"errors"
	"fmt"
)

// Provenance records which kind of engine produced a measurement
// result. Offline results must never be mistaken for genuine engine
// output, so the tag is carried through to every final result.
type Provenance string

const (
	ProvenanceRemote  Provenance = "remote-engine"
	ProvenanceOffline Provenance = "offline-simulator"
)

var (
	// ErrInvalidShots is returned for zero or negative shot counts.
	ErrInvalidShots = errors.New("shot count must be positive")

	// ErrEngineUnavailable is returned when the execution engine
	// cannot be reached. The run fails; callers may retry against an
	// offline engine, whose results carry ProvenanceOffline.
	ErrEngineUnavailable = errors.New("execution engine unavailable")
)

// ExecOptions configures a single circuit execution.
type ExecOptions struct {
	// Shots is the number of repetitions to sample.
	Shots int

	// NoiseLevel is an optional depolarizing-noise parameter in
	// [0, 0.5]; zero disables noise.
	NoiseLevel float64
}

// Validate checks execution options before any engine call.
func (o ExecOptions) Validate() error {
	if o.Shots <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShots, o.Shots)
	}
	if o.NoiseLevel < 0 || o.NoiseLevel > 0.5 {
		return fmt.Errorf("noise level %g outside [0, 0.5]", o.NoiseLevel)
	}
	return nil
}

// Result holds the outcome histogram of a circuit execution.
//
// Bit-ordering contract: outcome bitstrings are most-significant-qubit-
// last, i.e. the character at position len-1-i corresponds to qubit i.
// OutcomeBits performs the reversal into per-qubit-index order.
type Result struct {
	Counts     map[string]int
	Provenance Provenance
}

// TopOutcome returns the most frequent outcome bitstring. Ties resolve
// to the lexicographically smallest string so the choice is stable.
func (r *Result) TopOutcome() string {
	best := ""
	bestCount := -1
	for outcome, count := range r.Counts {
		if count > bestCount || (count == bestCount && outcome < best) {
			best = outcome
			bestCount = count
		}
	}
	return best
}

// OutcomeBits decodes the most frequent outcome into n per-qubit bits,
// reversing the engine's most-significant-qubit-last ordering.
func (r *Result) OutcomeBits(n int) []Bit {
	outcome := r.TopOutcome()
	bits := make([]Bit, n)
	for i := 0; i < n && i < len(outcome); i++ {
		if outcome[len(outcome)-1-i] == '1' {
			bits[i] = One
		}
	}
	return bits
}

// TotalShots sums the histogram counts.
func (r *Result) TotalShots() int {
	total := 0
	for _, count := range r.Counts {
		total += count
	}
	return total
}

// ExecutionEngine abstracts the quantum execution backend. The core
// treats it as a black box: a circuit description and shot count go
// in, measurement outcomes come out.
type ExecutionEngine interface {
	// Name identifies the engine for logs and result metadata.
	Name() string

	// Execute runs the circuit and returns the outcome histogram.
	Execute(ctx context.Context, c *Circuit, opts ExecOptions) (*Result, error)
}
