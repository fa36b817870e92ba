package bb84

import (
	"fmt"

	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

// SiftedKeyPair is the result of basis reconciliation. AliceKey,
// BobKey and MatchingIndices always have equal length, and
// MatchingIndices is strictly increasing.
type SiftedKeyPair struct {
	AliceKey        []quantum.Bit
	BobKey          []quantum.Bit
	MatchingIndices []int

	// Efficiency is siftedBits/totalBits, 0 for an empty round.
	Efficiency float64

	TotalBits  int
	SiftedBits int
}

// SiftKeys performs basis reconciliation: position i survives iff
// Alice and Bob used the same basis there.
func SiftKeys(
	aliceBits []quantum.Bit,
	aliceBases []quantum.Basis,
	bobMeasurements []quantum.Bit,
	bobBases []quantum.Basis,
) (*SiftedKeyPair, error) {
	n := len(aliceBits)
	if len(aliceBases) != n || len(bobMeasurements) != n || len(bobBases) != n {
		return nil, fmt.Errorf("input sequences must all have length %d (alice bases %d, bob measurements %d, bob bases %d)",
			n, len(aliceBases), len(bobMeasurements), len(bobBases))
	}

	sifted := &SiftedKeyPair{TotalBits: n}

	for i := 0; i < n; i++ {
		if aliceBases[i] == bobBases[i] {
			sifted.AliceKey = append(sifted.AliceKey, aliceBits[i])
			sifted.BobKey = append(sifted.BobKey, bobMeasurements[i])
			sifted.MatchingIndices = append(sifted.MatchingIndices, i)
		}
	}

	sifted.SiftedBits = len(sifted.AliceKey)
	if n > 0 {
		sifted.Efficiency = float64(sifted.SiftedBits) / float64(n)
	}

	return sifted, nil
}

// KeyComparison describes how two sifted keys relate. A length
// mismatch is reported, not raised: callers present partial
// information either way.
type KeyComparison struct {
	Match           bool
	LengthMismatch  bool
	AliceLength     int
	BobLength       int
	MatchRate       float64
	TotalBits       int
	MismatchIndices []int
}

// CompareKeys compares two equal-length keys bit by bit. Unequal
// lengths yield an explicit mismatch result carrying both lengths.
func CompareKeys(aliceKey, bobKey []quantum.Bit) KeyComparison {
	if len(aliceKey) != len(bobKey) {
		return KeyComparison{
			LengthMismatch: true,
			AliceLength:    len(aliceKey),
			BobLength:      len(bobKey),
		}
	}

	cmp := KeyComparison{
		AliceLength: len(aliceKey),
		BobLength:   len(bobKey),
		TotalBits:   len(aliceKey),
	}

	for i := range aliceKey {
		if aliceKey[i] != bobKey[i] {
			cmp.MismatchIndices = append(cmp.MismatchIndices, i)
		}
	}

	cmp.Match = len(cmp.MismatchIndices) == 0
	if len(aliceKey) > 0 {
		cmp.MatchRate = 1 - float64(len(cmp.MismatchIndices))/float64(len(aliceKey))
	}

	return cmp
}
