// Package recognizer reads handwritten multi-digit numbers from an ink raster.
//
// A recognition pass segments the raster into components, normalises and
// classifies each component in reading order, ranks the digit scores, and
// beam-searches the rankings into candidate numbers.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/Brownie44l1/digitpad/internal/model"
	"github.com/Brownie44l1/digitpad/internal/normalize"
	"github.com/Brownie44l1/digitpad/internal/rank"
	"github.com/Brownie44l1/digitpad/internal/segment"
)

// ErrModelUnavailable marks a recogniser built without a working classifier.
var ErrModelUnavailable = errors.New("digit model unavailable")

// Classifier scores one normalised digit tensor, returning one score per class.
type Classifier interface {
	Classify(ctx context.Context, input []float32) ([]float32, error)
}

// Status summarises a recognition pass.
type Status string

const (
	StatusOK               Status = "ok"
	StatusNoInk            Status = "no_ink"
	StatusModelUnavailable Status = "model_unavailable"
)

// Result is the outcome of one pass. Candidates are best first.
type Result struct {
	Status     Status              `json:"status"`
	Segments   []segment.Component `json:"segments"`
	Ranks      [][]rank.Entry      `json:"ranks,omitempty"`
	Candidates []rank.Candidate    `json:"candidates"`
	// Skipped counts components left out because they could not be
	// normalised or classified.
	Skipped int `json:"skipped,omitempty"`
}

// Err returns ErrModelUnavailable for an unavailable result and nil otherwise.
func (r *Result) Err() error {
	if r.Status == StatusModelUnavailable {
		return ErrModelUnavailable
	}
	return nil
}

// Options tune a Recognizer. Zero values fall back to package defaults.
type Options struct {
	Segment   segment.Options
	Normalize normalize.Options
	TopK      int
	BeamWidth int
	ScoreMode model.ScoreMode
}

// Recognizer runs recognition passes one at a time.
type Recognizer struct {
	mu         sync.Mutex
	classifier Classifier
	normalizer *normalize.Normalizer
	opts       Options
	logger     *slog.Logger
}

// New creates a Recognizer. A nil classifier yields a recogniser that
// reports StatusModelUnavailable for every pass.
func New(classifier Classifier, opts Options, logger *slog.Logger) *Recognizer {
	if opts.TopK <= 0 {
		opts.TopK = rank.DefaultTopK
	}
	if opts.BeamWidth <= 0 {
		opts.BeamWidth = rank.DefaultBeamWidth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{
		classifier: classifier,
		normalizer: normalize.New(opts.Normalize),
		opts:       opts,
		logger:     logger.With("component", "recognizer"),
	}
}

// Available reports whether a classifier is loaded.
func (r *Recognizer) Available() bool {
	return r.classifier != nil
}

// Recognize runs one pass over the raster. An unavailable model and a raster
// without ink are reported through Result.Status, not as errors; the error is
// only set when ctx ends mid-pass.
func (r *Recognizer) Recognize(ctx context.Context, raster *image.Alpha) (*Result, error) {
	if !r.Available() {
		return emptyResult(StatusModelUnavailable), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	segments := segment.Segment(raster, r.opts.Segment)
	if len(segments) == 0 {
		return emptyResult(StatusNoInk), nil
	}

	res := &Result{Status: StatusOK, Segments: segments}
	for i, seg := range segments {
		ranks, err := r.rankComponent(ctx, raster, seg)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("recognition interrupted at component %d: %w", i, ctxErr)
			}
			r.logger.Warn("skipping component", "index", i, "x", seg.X, "y", seg.Y,
				"w", seg.W, "h", seg.H, "error", err)
			res.Skipped++
			continue
		}
		res.Ranks = append(res.Ranks, ranks)
	}

	res.Candidates = rank.Search(res.Ranks, r.opts.BeamWidth)
	if res.Candidates == nil {
		res.Candidates = []rank.Candidate{}
	}
	r.logger.Debug("recognized", "segments", len(segments), "skipped", res.Skipped,
		"candidates", len(res.Candidates))
	return res, nil
}

func emptyResult(status Status) *Result {
	return &Result{
		Status:     status,
		Segments:   []segment.Component{},
		Candidates: []rank.Candidate{},
	}
}

func (r *Recognizer) rankComponent(ctx context.Context, raster *image.Alpha, seg segment.Component) ([]rank.Entry, error) {
	tensor, err := r.normalizer.Normalize(raster, seg)
	if err != nil {
		return nil, err
	}
	scores, err := r.classifier.Classify(ctx, tensor.Data)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	if len(scores) != model.NumClasses {
		return nil, fmt.Errorf("got %d scores: %w", len(scores), model.ErrOutputShape)
	}
	return rank.TopK(r.opts.ScoreMode.Apply(scores), r.opts.TopK), nil
}
