package crypto

import (
	"fmt"

	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

// CascadeCorrector implements the Cascade interactive error-correction
// protocol. Alice's key is the reference; Bob's copy is corrected by
// exchanging block parities, each disclosure counting against the key's
// secrecy budget.
type CascadeCorrector struct {
	passes    int
	blockSize int
}

// NewCascadeCorrector sizes the initial block from the estimated
// fractional error rate (the standard 0.73/q heuristic) and uses four
// passes.
func NewCascadeCorrector(errorRate float64) *CascadeCorrector {
	blockSize := 1
	if errorRate > 0 {
		blockSize = int(0.73 / errorRate)
		if blockSize < 1 {
			blockSize = 1
		}
	}
	return &CascadeCorrector{passes: 4, blockSize: blockSize}
}

// Parity is the XOR of a bit slice.
func Parity(bits []quantum.Bit) quantum.Bit {
	parity := quantum.Zero
	for _, bit := range bits {
		parity ^= bit
	}
	return parity
}

// Correct reconciles bobKey against aliceKey, returning the corrected
// copy and the number of parity bits disclosed in the process.
func (c *CascadeCorrector) Correct(aliceKey, bobKey []quantum.Bit) ([]quantum.Bit, int, error) {
	if len(aliceKey) != len(bobKey) {
		return nil, 0, fmt.Errorf("keys must have the same length (alice %d, bob %d)", len(aliceKey), len(bobKey))
	}

	n := len(aliceKey)
	corrected := make([]quantum.Bit, n)
	copy(corrected, bobKey)

	disclosed := 0
	blockSize := c.blockSize

	for pass := 0; pass < c.passes; pass++ {
		for start := 0; start < n; start += blockSize {
			end := start + blockSize
			if end > n {
				end = n
			}

			disclosed++ // block parity comparison
			if Parity(aliceKey[start:end]) == Parity(corrected[start:end]) {
				continue
			}

			// Odd number of errors in this block: binary-search one.
			errIdx, searched := binarySearchError(aliceKey, corrected, start, end)
			disclosed += searched
			corrected[errIdx] = 1 - corrected[errIdx]
		}

		// Cascade heuristic: double the block size each pass.
		blockSize *= 2
	}

	return corrected, disclosed, nil
}

func binarySearchError(aliceKey, bobKey []quantum.Bit, start, end int) (int, int) {
	disclosed := 0
	for start < end-1 {
		mid := (start + end) / 2
		disclosed++
		if Parity(aliceKey[start:mid]) != Parity(bobKey[start:mid]) {
			end = mid
		} else {
			start = mid
		}
	}
	return start, disclosed
}

// VerifyKeys reports whether two keys match and their residual error
// rate.
func VerifyKeys(aliceKey, bobKey []quantum.Bit) (bool, float64) {
	if len(aliceKey) != len(bobKey) {
		return false, 1.0
	}
	if len(aliceKey) == 0 {
		return true, 0
	}

	errors := 0
	for i := range aliceKey {
		if aliceKey[i] != bobKey[i] {
			errors++
		}
	}

	return errors == 0, float64(errors) / float64(len(aliceKey))
}
