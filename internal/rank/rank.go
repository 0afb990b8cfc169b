// Package rank reduces classifier scores to ranked digit hypotheses and
// combines per-digit rankings into whole-number candidates.
package rank

import (
	"sort"
	"strconv"
)

const (
	// DefaultTopK is how many digits are kept per component.
	DefaultTopK = 3
	// DefaultBeamWidth is how many partial numbers survive each step.
	DefaultBeamWidth = 5
)

// Entry is one digit hypothesis for a component.
type Entry struct {
	Digit int     `json:"digit"`
	Score float32 `json:"score"`
}

// TopK returns the k highest scoring classes, best first. Equal scores keep
// the lower digit first. k larger than the number of classes returns all of them.
func TopK(scores []float32, k int) []Entry {
	entries := make([]Entry, len(scores))
	for digit, score := range scores {
		entries[digit] = Entry{Digit: digit, Score: score}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if k < 0 {
		k = 0
	}
	if k < len(entries) {
		entries = entries[:k]
	}
	return entries
}

// Candidate is a digit string with its summed score.
type Candidate struct {
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Search runs a left-to-right beam search over the per-component rankings.
//
// Scores are added along a path, so they must be on a summable scale such
// as log-probabilities. Only the best width partial strings are extended at
// each step, so the result approximates the true top candidates whenever
// width is smaller than the number of possible paths. The returned list is
// best first with duplicate texts removed.
func Search(lists [][]Entry, width int) []Candidate {
	if len(lists) == 0 || width <= 0 {
		return nil
	}

	beams := []Candidate{{}}
	for _, ranks := range lists {
		next := make([]Candidate, 0, len(beams)*len(ranks))
		for _, beam := range beams {
			for _, r := range ranks {
				next = append(next, Candidate{
					Text:  beam.Text + strconv.Itoa(r.Digit),
					Score: beam.Score + r.Score,
				})
			}
		}
		sort.SliceStable(next, func(i, j int) bool {
			return next[i].Score > next[j].Score
		})
		if len(next) > width {
			next = next[:width]
		}
		beams = next
	}

	seen := make(map[string]struct{}, len(beams))
	out := beams[:0]
	for _, b := range beams {
		if _, ok := seen[b.Text]; ok {
			continue
		}
		seen[b.Text] = struct{}{}
		out = append(out, b)
	}
	return out
}
