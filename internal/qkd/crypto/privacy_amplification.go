// Package crypto holds the classical post-processing of QKD keys:
// error correction, privacy amplification, and the key-derived cipher.
package crypto

import (
	"strconv"

	"golang.org/x/crypto/sha3"

	"github.com/quantalock/qkdsim/internal/qkd/analysis"
	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

// DefaultSecurityParameter is the target security level reported with
// amplification results. The simplified length bound below does not
// consume it; it is kept on the API for callers that record it.
const DefaultSecurityParameter = 1e-10

// SecureLength computes the post-amplification key length for a raw
// key of rawLength bits at the given fractional QBER.
//
// qberFraction is a fraction in [0,1], not a percentage: the cutoff
// here is analysis.AmplificationCutoffFraction (0.11), a different
// constant from the percent-unit sifting threshold. See the analysis
// package for both.
func SecureLength(rawLength int, qberFraction float64) int {
	if qberFraction >= analysis.AmplificationCutoffFraction {
		return 0
	}

	// Shannon limit for the key rate, with a 10% safety margin.
	keyRate := 1 - 2*analysis.BinaryEntropy(qberFraction)
	if keyRate <= 0 {
		return 0
	}

	secure := int(float64(rawLength) * keyRate * 0.9)
	if secure < 0 {
		return 0
	}
	return secure
}

// AmplifiedKey is the outcome of privacy amplification.
type AmplifiedKey struct {
	Key     []quantum.Bit
	Success bool
	Reason  string

	InputLength      int
	OutputLength     int
	CompressionRatio float64
	QBER             float64
}

// Amplify compresses rawKey to the secure length implied by the
// fractional QBER. See AmplifyTo for the mechanics.
func Amplify(rawKey []quantum.Bit, qberFraction float64) AmplifiedKey {
	return AmplifyTo(rawKey, qberFraction, SecureLength(len(rawKey), qberFraction))
}

// AmplifyTo compresses rawKey to exactly targetLength bits: the key is
// packed into bytes MSB-first, hashed with SHA3-256, and the digest
// stream — extended with a counter when more bits are needed — is
// unpacked MSB-first and truncated to the target.
//
// This is a simplification of a true universal-hash-family
// construction: there is no per-session hash selection, so it destroys
// structure but carries no leftover-hash-lemma guarantee.
//
// targetLength ≤ 0 yields a failure result with an empty key.
func AmplifyTo(rawKey []quantum.Bit, qberFraction float64, targetLength int) AmplifiedKey {
	if targetLength <= 0 {
		return AmplifiedKey{
			Success:     false,
			Reason:      "QBER too high for secure key generation",
			InputLength: len(rawKey),
			QBER:        qberFraction,
		}
	}

	keyBytes := quantum.PackBits(rawKey)

	var stream []byte
	for counter := 0; len(stream)*8 < targetLength; counter++ {
		h := sha3.New256()
		h.Write(keyBytes)
		if counter > 0 {
			h.Write([]byte(strconv.Itoa(counter)))
		}
		stream = h.Sum(stream)
	}

	out := AmplifiedKey{
		Key:          quantum.UnpackBits(stream, targetLength),
		Success:      true,
		InputLength:  len(rawKey),
		OutputLength: targetLength,
		QBER:         qberFraction,
	}
	if len(rawKey) > 0 {
		out.CompressionRatio = float64(targetLength) / float64(len(rawKey))
	}
	return out
}
