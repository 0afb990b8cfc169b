package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Brownie44l1/digitpad/internal/ink"
	"github.com/Brownie44l1/digitpad/internal/recognizer"
)

// padEntry is one interactive pad: its ink, its recognition session and the
// latest result the session produced.
type padEntry struct {
	pad     *ink.Pad
	session *recognizer.Session

	// lastUsed is guarded by the registry lock.
	lastUsed time.Time

	mu     sync.Mutex
	seq    int64
	result *recognizer.Result
}

func (p *padEntry) store(res *recognizer.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.result = res
}

func (p *padEntry) latest() (int64, *recognizer.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq, p.result
}

// Pad registry limits used when none are configured.
const (
	defaultMaxPads = 64
	defaultPadIdle = 10 * time.Minute
)

var errTooManyPads = errors.New("too many open pads")

type padRegistry struct {
	rec      *recognizer.Recognizer
	debounce time.Duration
	maxPads  int
	idle     time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	pads map[string]*padEntry
}

func newPadRegistry(rec *recognizer.Recognizer, debounce time.Duration, maxPads int, idle time.Duration, logger *slog.Logger) *padRegistry {
	if maxPads <= 0 {
		maxPads = defaultMaxPads
	}
	if idle <= 0 {
		idle = defaultPadIdle
	}
	return &padRegistry{
		rec:      rec,
		debounce: debounce,
		maxPads:  maxPads,
		idle:     idle,
		now:      time.Now,
		logger:   logger,
		pads:     make(map[string]*padEntry),
	}
}

// create opens a pad after closing pads that have sat unused for the idle
// period. It fails once maxPads pads are still in use.
func (r *padRegistry) create(width, height int) (string, error) {
	r.mu.Lock()
	expired := r.pruneLocked()
	if len(r.pads) >= r.maxPads {
		r.mu.Unlock()
		closeEntries(expired)
		return "", errTooManyPads
	}

	id := uuid.New().String()
	entry := &padEntry{pad: ink.NewPad(width, height), lastUsed: r.now()}
	entry.session = recognizer.NewSession(r.rec, entry.pad.Snapshot, entry.store, r.debounce,
		r.logger.With("pad", id))
	r.pads[id] = entry
	r.mu.Unlock()

	closeEntries(expired)
	return id, nil
}

func (r *padRegistry) pruneLocked() []*padEntry {
	cutoff := r.now().Add(-r.idle)
	var expired []*padEntry
	for id, p := range r.pads {
		if p.lastUsed.Before(cutoff) {
			delete(r.pads, id)
			expired = append(expired, p)
			r.logger.Info("pad expired", "pad", id)
		}
	}
	return expired
}

func closeEntries(entries []*padEntry) {
	for _, p := range entries {
		p.session.Close()
	}
}

// get looks a pad up and marks it used.
func (r *padRegistry) get(id string) (*padEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pads[id]
	if ok {
		p.lastUsed = r.now()
	}
	return p, ok
}

func (r *padRegistry) remove(id string) bool {
	r.mu.Lock()
	p, ok := r.pads[id]
	delete(r.pads, id)
	r.mu.Unlock()
	if ok {
		p.session.Close()
	}
	return ok
}

func (r *padRegistry) closeAll() {
	r.mu.Lock()
	pads := r.pads
	r.pads = make(map[string]*padEntry)
	r.mu.Unlock()
	for _, p := range pads {
		p.session.Close()
	}
}

type createPadRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type padResponse struct {
	ID     string             `json:"id"`
	Seq    int64              `json:"seq"`
	Result *recognizer.Result `json:"result,omitempty"`
}

func (h *Handler) CreatePad(w http.ResponseWriter, r *http.Request) {
	var req createPadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := h.checkSize(req.Width, req.Height); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.pads.create(req.Width, req.Height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}
	h.logger.Info("pad created", "pad", id, "width", req.Width, "height", req.Height)
	writeJSON(w, http.StatusCreated, padResponse{ID: id})
}

func (h *Handler) GetPad(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := h.pads.get(id)
	if !ok {
		http.Error(w, "Unknown pad", http.StatusNotFound)
		return
	}
	seq, res := p.latest()
	writeJSON(w, http.StatusOK, padResponse{ID: id, Seq: seq, Result: res})
}

type addStrokesRequest struct {
	Strokes []ink.Stroke `json:"strokes"`
}

func (h *Handler) AddStrokes(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pads.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "Unknown pad", http.StatusNotFound)
		return
	}

	var req addStrokesRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	drawn := 0
	for _, s := range req.Strokes {
		drawn += p.pad.AddStroke(s)
	}
	if drawn > 0 {
		p.session.Request()
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"segments_drawn": drawn})
}

func (h *Handler) ClearPad(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pads.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "Unknown pad", http.StatusNotFound)
		return
	}
	p.pad.Clear()
	p.session.Request()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeletePad(w http.ResponseWriter, r *http.Request) {
	if !h.pads.remove(r.PathValue("id")) {
		http.Error(w, "Unknown pad", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
