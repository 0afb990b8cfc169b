// Package quiz runs timed mental-arithmetic rounds answered in handwriting.
package quiz

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRoundDuration is the time allowed for one question.
const DefaultRoundDuration = 10 * time.Second

const (
	minOperand = 10
	maxOperand = 99
)

var (
	ErrUnknownRound = errors.New("unknown quiz round")
	ErrRoundOver    = errors.New("quiz round already answered")
)

// Question is a two-operand problem whose answer is a whole number.
type Question struct {
	Text   string `json:"text"`
	Answer int    `json:"-"`
}

// Pick draws a multiplication or an exact division with two-digit operands.
func Pick(rng *rand.Rand) Question {
	if rng.IntN(2) == 0 {
		a, b := operand(rng), operand(rng)
		return Question{Text: fmt.Sprintf("%d × %d", a, b), Answer: a * b}
	}
	divisor, quotient := operand(rng), operand(rng)
	return Question{
		Text:   fmt.Sprintf("%d ÷ %d", divisor*quotient, divisor),
		Answer: quotient,
	}
}

func operand(rng *rand.Rand) int {
	return minOperand + rng.IntN(maxOperand-minOperand+1)
}

// Round is one question in play.
type Round struct {
	ID       string    `json:"id"`
	Question Question  `json:"question"`
	Deadline time.Time `json:"deadline"`
	done     bool
}

// Outcome reports how an answer was judged.
type Outcome struct {
	Correct     bool  `json:"correct"`
	Expired     bool  `json:"expired"`
	RemainingMS int64 `json:"remaining_ms"`
}

// Book keeps the rounds in play. It is safe for concurrent use.
type Book struct {
	mu       sync.Mutex
	rng      *rand.Rand
	duration time.Duration
	now      func() time.Time
	rounds   map[string]*Round
}

// NewBook creates a Book. A nil rng draws from a time-seeded source.
func NewBook(duration time.Duration, rng *rand.Rand) *Book {
	if duration <= 0 {
		duration = DefaultRoundDuration
	}
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Book{
		rng:      rng,
		duration: duration,
		now:      time.Now,
		rounds:   make(map[string]*Round),
	}
}

// Start opens a new round.
func (b *Book) Start() Round {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune()

	r := &Round{
		ID:       uuid.New().String(),
		Question: Pick(b.rng),
		Deadline: b.now().Add(b.duration),
	}
	b.rounds[r.ID] = r
	return *r
}

// Answer judges a handwritten answer. Text that is not a number is simply
// wrong. A correct answer closes the round; wrong answers may be retried
// until the deadline.
func (b *Book) Answer(id, text string) (Outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rounds[id]
	if !ok {
		return Outcome{}, fmt.Errorf("round %s: %w", id, ErrUnknownRound)
	}
	if r.done {
		return Outcome{}, fmt.Errorf("round %s: %w", id, ErrRoundOver)
	}

	remaining := r.Deadline.Sub(b.now())
	if remaining <= 0 {
		r.done = true
		return Outcome{Expired: true}, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(text))
	correct := err == nil && n == r.Question.Answer
	if correct {
		r.done = true
	}
	return Outcome{Correct: correct, RemainingMS: remaining.Milliseconds()}, nil
}

// AnswerAny accepts the first of several recognised candidates that solves
// the round, the way a player taps one of the suggestions.
func (b *Book) AnswerAny(id string, texts []string) (Outcome, string, error) {
	var last Outcome
	for _, text := range texts {
		out, err := b.Answer(id, text)
		if err != nil {
			return out, "", err
		}
		if out.Correct || out.Expired {
			return out, text, nil
		}
		last = out
	}
	if len(texts) == 0 {
		out, err := b.Answer(id, "")
		return out, "", err
	}
	return last, "", nil
}

// prune drops rounds that ended more than one round length ago.
func (b *Book) prune() {
	cutoff := b.now().Add(-b.duration)
	for id, r := range b.rounds {
		if r.Deadline.Before(cutoff) {
			delete(b.rounds, id)
		}
	}
}
