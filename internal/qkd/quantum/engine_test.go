package quantum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts ExecOptions
		ok   bool
	}{
		{"valid", ExecOptions{Shots: 1024}, true},
		{"valid with noise", ExecOptions{Shots: 1, NoiseLevel: 0.5}, true},
		{"zero shots", ExecOptions{Shots: 0}, false},
		{"negative shots", ExecOptions{Shots: -5}, false},
		{"negative noise", ExecOptions{Shots: 10, NoiseLevel: -0.1}, false},
		{"noise above half", ExecOptions{Shots: 10, NoiseLevel: 0.6}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTopOutcome(t *testing.T) {
	r := &Result{Counts: map[string]int{"0101": 700, "1010": 300}}
	assert.Equal(t, "0101", r.TopOutcome())

	// Ties resolve to the lexicographically smallest outcome.
	r = &Result{Counts: map[string]int{"1100": 500, "0011": 500}}
	assert.Equal(t, "0011", r.TopOutcome())

	r = &Result{Counts: map[string]int{}}
	assert.Equal(t, "", r.TopOutcome())
}

func TestOutcomeBitsReversesQubitOrder(t *testing.T) {
	// Outcome strings are most-significant-qubit-last: "0011" means
	// qubits 0 and 1 measured 1, qubits 2 and 3 measured 0.
	r := &Result{Counts: map[string]int{"0011": 1024}}
	assert.Equal(t, []Bit{1, 1, 0, 0}, r.OutcomeBits(4))
}

func TestTotalShots(t *testing.T) {
	r := &Result{Counts: map[string]int{"00": 400, "11": 624}}
	assert.Equal(t, 1024, r.TotalShots())
}
