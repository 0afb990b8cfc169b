package recognizer

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounce is how long input must stay quiet before a pass starts.
const DefaultDebounce = 200 * time.Millisecond

// Session drives recognition for one drawing surface as the user writes.
//
// Requests are debounced, and at most one pass runs at a time. A request
// that fires while a pass is running sets a single pending flag, so any
// number of edits made during a pass cost exactly one more pass.
type Session struct {
	rec      *Recognizer
	snapshot func() *image.Alpha
	onResult func(*Result)
	delay    time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	timer    *time.Timer
	inFlight bool
	pending  bool
	closed   bool
}

// NewSession creates a session. snapshot is called at the start of every
// pass and must return a raster that is not modified afterwards; onResult
// receives every completed pass.
func NewSession(rec *Recognizer, snapshot func() *image.Alpha, onResult func(*Result), delay time.Duration, logger *slog.Logger) *Session {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		rec:      rec,
		snapshot: snapshot,
		onResult: onResult,
		delay:    delay,
		logger:   logger.With("component", "session"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Request asks for a pass once input has been quiet for the debounce delay.
func (s *Session) Request() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
}

func (s *Session) fire() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	for {
		s.run()

		s.mu.Lock()
		if !s.pending || s.closed {
			s.inFlight = false
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()
	}
}

func (s *Session) run() {
	res, err := s.rec.Recognize(s.ctx, s.snapshot())
	if err != nil {
		s.logger.Warn("recognition failed", "error", err)
		return
	}
	if s.onResult != nil {
		s.onResult(res)
	}
}

// Close cancels any pending request and waits for a running pass to finish.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
