package model

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// ScoreMode decides how raw model outputs are mapped before ranking.
type ScoreMode int

const (
	// ScoreRaw passes the model output through unchanged.
	ScoreRaw ScoreMode = iota
	// ScoreLogProb applies log-softmax so scores add up as log-probabilities
	// across digits.
	ScoreLogProb
)

func (m ScoreMode) String() string {
	if m == ScoreLogProb {
		return "logprob"
	}
	return "raw"
}

// ParseScoreMode parses "raw" or "logprob".
func ParseScoreMode(s string) (ScoreMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return ScoreRaw, nil
	case "logprob", "log-softmax", "logsoftmax":
		return ScoreLogProb, nil
	default:
		return ScoreRaw, fmt.Errorf("unknown score mode %q", s)
	}
}

// Apply returns transformed scores. The input is not modified.
func (m ScoreMode) Apply(scores []float32) []float32 {
	out := make([]float32, len(scores))
	if m != ScoreLogProb || len(scores) == 0 {
		copy(out, scores)
		return out
	}

	logits := make([]float64, len(scores))
	for i, v := range scores {
		logits[i] = float64(v)
	}
	norm := floats.LogSumExp(logits)
	for i, v := range logits {
		out[i] = float32(v - norm)
		if math.IsNaN(float64(out[i])) {
			out[i] = float32(math.Inf(-1))
		}
	}
	return out
}
