// Package scoring ranks OCR outputs of the same document and picks the best one.
// Everything here is pure and deterministic.
package scoring

import (
	"math"
	"sort"
	"strings"

	"property-analyzer/internal/ocr"
)

// Epsilon is the tolerance under which two scores are considered equal.
const Epsilon = 1e-9

// Candidate is a successful backend output with its score.
type Candidate struct {
	Backend string
	Text    string
	Score   float64
}

// Score rates text in [0,1]. maxLen is the length of the longest text being
// compared; the length signal is len(text)/maxLen.
func Score(text string, maxLen int, w Weights) float64 {
	w = w.Normalized()
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	tokens := tokenize(trimmed)
	var recognized, garbled float64
	for _, tok := range tokens {
		recognized += recognizedWeight(tok)
		if isGarbled(tok) {
			garbled++
		}
	}

	var recognizedRatio, garbledRatio float64
	if n := float64(len(tokens)); n > 0 {
		recognizedRatio = recognized / n
		garbledRatio = garbled / n
	} else {
		garbledRatio = 1
	}

	lengthRatio := 1.0
	if maxLen > 0 {
		lengthRatio = math.Min(1, float64(len(trimmed))/float64(maxLen))
	}

	s := w.Words*recognizedRatio + w.Clean*(1-garbledRatio) + w.Length*lengthRatio
	return clamp01(s)
}

// ScoreAll scores the successful outcomes against each other. Failed outcomes
// are dropped; order follows outcomes.
func ScoreAll(outcomes []ocr.Outcome, w Weights) []Candidate {
	maxLen := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			continue
		}
		if n := len(strings.TrimSpace(o.Text)); n > maxLen {
			maxLen = n
		}
	}

	cands := make([]Candidate, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Succeeded() {
			continue
		}
		cands = append(cands, Candidate{Backend: o.Backend, Text: o.Text, Score: Score(o.Text, maxLen, w)})
	}
	return cands
}

// Select returns the highest-scoring candidate. Scores within Epsilon tie and
// the tie goes to the backend listed first in priority; backends missing from
// priority rank after listed ones, by name. An empty input is an
// *ocr.AllFailedError.
//
// The epsilon tie is not transitive, so candidates are scanned in priority
// order rather than input order; the winner depends only on the set.
func Select(cands []Candidate, priority []string) (Candidate, error) {
	if len(cands) == 0 {
		return Candidate{}, &ocr.AllFailedError{}
	}
	ordered := make([]Candidate, len(cands))
	copy(ordered, cands)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := rank(ordered[i].Backend, priority), rank(ordered[j].Backend, priority)
		if ri != rj {
			return ri < rj
		}
		return ordered[i].Backend < ordered[j].Backend
	})
	best := ordered[0]
	for _, c := range ordered[1:] {
		if better(c, best, priority) {
			best = c
		}
	}
	return best, nil
}

func better(a, b Candidate, priority []string) bool {
	if a.Score > b.Score+Epsilon {
		return true
	}
	if b.Score > a.Score+Epsilon {
		return false
	}
	ra, rb := rank(a.Backend, priority), rank(b.Backend, priority)
	if ra != rb {
		return ra < rb
	}
	return a.Backend < b.Backend
}

func rank(backend string, priority []string) int {
	for i, p := range priority {
		if strings.EqualFold(p, backend) {
			return i
		}
	}
	return len(priority)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
