// Package analysis computes QBER and the security metrics derived from
// it for sifted QKD keys.
package analysis

import (
	"math"

	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

// Security boundaries, centralized so the unit mismatch between them is
// explicit. The sifting-side threshold is expressed in percent, the
// privacy-amplification cutoff as a fraction; the two are distinct
// observed constants (8.5% vs 11%), not one value in two units, and
// both are preserved as-is.
const (
	// QBERThresholdPercent is the BB84 security threshold. QBER above
	// it indicates probable eavesdropping.
	QBERThresholdPercent = 8.5

	// AmplificationCutoffFraction is the fractional-QBER limit above
	// which privacy amplification yields no secure key.
	AmplificationCutoffFraction = 0.11
)

// FractionToPercent converts a fractional error rate to percent. All
// unit conversion between the two conventions happens here.
func FractionToPercent(f float64) float64 {
	return f * 100
}

// Report is the outcome of a QBER computation.
type Report struct {
	// QBER in percent, rounded to two decimals for display.
	QBER float64

	// IsSecure is true iff the exact error ratio is at or below
	// QBERThresholdPercent. The comparison uses the unrounded value:
	// a true QBER of 8.503% reports as 8.5 but is not secure.
	IsSecure bool

	MismatchedBits int
	TotalBits      int

	// Threshold echoes QBERThresholdPercent for result consumers.
	Threshold float64

	// Margin is Threshold − QBER.
	Margin float64
}

// Calculate computes the QBER between two sifted keys.
//
// Keys of unequal length are truncated to the shorter one before
// comparison. This is a deliberate tolerant policy inherited from the
// observed behavior; it can mask upstream sifting bugs, so callers that
// need strictness should compare lengths first.
//
// Empty input returns qber=0, secure=true by convention.
func Calculate(aliceKey, bobKey []quantum.Bit) Report {
	if len(aliceKey) == 0 || len(bobKey) == 0 {
		return Report{
			QBER:      0,
			IsSecure:  true,
			Threshold: QBERThresholdPercent,
			Margin:    QBERThresholdPercent,
		}
	}

	n := len(aliceKey)
	if len(bobKey) < n {
		n = len(bobKey)
	}

	mismatched := 0
	for i := 0; i < n; i++ {
		if aliceKey[i] != bobKey[i] {
			mismatched++
		}
	}

	qber := float64(mismatched) / float64(n) * 100

	return Report{
		QBER:           round2(qber),
		IsSecure:       qber <= QBERThresholdPercent,
		MismatchedBits: mismatched,
		TotalBits:      n,
		Threshold:      QBERThresholdPercent,
		Margin:         round2(QBERThresholdPercent - qber),
	}
}

// InformationLeakage estimates the percentage of the key known to Eve
// from her measurement success rate. This is an approximate proxy
// bounded by her correct guesses, not an exact information measure.
func InformationLeakage(eveCorrect, eveTotal int) float64 {
	if eveTotal == 0 {
		return 0
	}
	return round2(float64(eveCorrect) / float64(eveTotal) * 100)
}

// Status is the ordinal BB84 security tier.
type Status string

const (
	StatusExcellent  Status = "excellent"
	StatusAcceptable Status = "acceptable"
	StatusWarning    Status = "warning"
	StatusCritical   Status = "critical"
)

// Recommendation pairs a tier with a human-readable action.
type Recommendation struct {
	Status   Status
	Message  string
	Action   string
	Severity string
}

// Recommend maps a QBER percentage onto the four security tiers.
func Recommend(qber float64) Recommendation {
	switch {
	case qber <= 5.0:
		return Recommendation{
			Status:   StatusExcellent,
			Message:  "Channel is highly secure",
			Action:   "Proceed with key generation",
			Severity: "green",
		}
	case qber <= QBERThresholdPercent:
		return Recommendation{
			Status:   StatusAcceptable,
			Message:  "Channel is secure but noisy",
			Action:   "Consider privacy amplification",
			Severity: "yellow",
		}
	case qber <= 15.0:
		return Recommendation{
			Status:   StatusWarning,
			Message:  "Possible eavesdropping detected",
			Action:   "Abort key exchange, investigate",
			Severity: "orange",
		}
	default:
		return Recommendation{
			Status:   StatusCritical,
			Message:  "Eavesdropping highly likely",
			Action:   "Abort immediately, channel compromised",
			Severity: "red",
		}
	}
}

// SecureKeyLength estimates the final key length extractable from a
// sifted key after privacy amplification, using the 1 − 2·H2(q) bound.
// qber is in percent. Returns 0 at or above the security threshold.
func SecureKeyLength(siftedLength int, qber float64) int {
	if qber >= QBERThresholdPercent {
		return 0
	}

	efficiency := 1 - 2*BinaryEntropy(qber/100)
	if efficiency < 0 {
		efficiency = 0
	}

	return int(float64(siftedLength) * efficiency)
}

// BinaryEntropy computes H2(p) = −p·log2(p) − (1−p)·log2(1−p), with
// H2(0) = H2(1) = 0 by convention.
func BinaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
