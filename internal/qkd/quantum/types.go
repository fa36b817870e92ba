package quantum

import (
	"errors"
	"fmt"
	"math/rand"
)

// Basis represents a preparation/measurement basis for a qubit.
type Basis int

const (
	// BasisZ is the computational basis: |0⟩, |1⟩
	BasisZ Basis = iota
	// BasisX is the Hadamard basis: |+⟩, |−⟩
	BasisX
	// BasisD is the diagonal basis, prepared with S followed by H
	BasisD
)

// ErrInvalidBasis is returned when a basis symbol outside {Z, X, D} is
// encountered.
var ErrInvalidBasis = errors.New("invalid basis symbol")

func (b Basis) String() string {
	switch b {
	case BasisZ:
		return "Z"
	case BasisX:
		return "X"
	case BasisD:
		return "D"
	default:
		return fmt.Sprintf("Basis(%d)", int(b))
	}
}

// ParseBasis converts a basis symbol into a Basis.
func ParseBasis(s string) (Basis, error) {
	switch s {
	case "Z":
		return BasisZ, nil
	case "X":
		return BasisX, nil
	case "D":
		return BasisD, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidBasis, s)
	}
}

// ParseBases converts a list of basis symbols.
func ParseBases(symbols []string) ([]Basis, error) {
	bases := make([]Basis, len(symbols))
	for i, s := range symbols {
		b, err := ParseBasis(s)
		if err != nil {
			return nil, err
		}
		bases[i] = b
	}
	return bases, nil
}

// DistinctBases counts the distinct basis values in a set.
func DistinctBases(bases []Basis) int {
	seen := make(map[Basis]struct{}, 3)
	for _, b := range bases {
		seen[b] = struct{}{}
	}
	return len(seen)
}

// Bit represents a classical bit (0 or 1)
type Bit int

const (
	Zero Bit = 0
	One  Bit = 1
)

// RandomBits draws n uniform bits from rng.
func RandomBits(rng *rand.Rand, n int) []Bit {
	bits := make([]Bit, n)
	for i := range bits {
		bits[i] = Bit(rng.Intn(2))
	}
	return bits
}

// RandomBases draws n bases uniformly from the available set.
func RandomBases(rng *rand.Rand, n int, available []Basis) []Basis {
	bases := make([]Basis, n)
	for i := range bases {
		bases[i] = available[rng.Intn(len(available))]
	}
	return bases
}

// PackBits converts a bit sequence to bytes, MSB-first, zero-padded.
func PackBits(bits []Bit) []byte {
	packed := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit == One {
			packed[i/8] |= 1 << uint(7-(i%8))
		}
	}
	return packed
}

// UnpackBits converts bytes back into bitLength bits, MSB-first.
func UnpackBits(data []byte, bitLength int) []Bit {
	bits := make([]Bit, bitLength)
	for i := 0; i < bitLength; i++ {
		if data[i/8]&(1<<uint(7-(i%8))) != 0 {
			bits[i] = One
		}
	}
	return bits
}
