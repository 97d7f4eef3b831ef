package scoring

// Weights balance the three quality signals. They are normalized to sum to 1.
type Weights struct {
	Words  float64
	Clean  float64
	Length float64
}

// DefaultWeights favor recognized vocabulary over cleanliness and length.
var DefaultWeights = Weights{Words: 0.5, Clean: 0.3, Length: 0.2}

// Normalized returns w scaled to sum to 1. Negative weights count as zero and an
// all-zero set falls back to DefaultWeights.
func (w Weights) Normalized() Weights {
	if w.Words < 0 {
		w.Words = 0
	}
	if w.Clean < 0 {
		w.Clean = 0
	}
	if w.Length < 0 {
		w.Length = 0
	}
	sum := w.Words + w.Clean + w.Length
	if sum == 0 {
		return DefaultWeights
	}
	return Weights{Words: w.Words / sum, Clean: w.Clean / sum, Length: w.Length / sum}
}
