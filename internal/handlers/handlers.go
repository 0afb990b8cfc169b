package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Brownie44l1/digitpad/internal/ink"
	"github.com/Brownie44l1/digitpad/internal/model"
	"github.com/Brownie44l1/digitpad/internal/quiz"
	"github.com/Brownie44l1/digitpad/internal/recognizer"
)

const maxBodyBytes = 10 << 20

// Predictor answers raw /predict calls with the best digit for a tensor.
type Predictor interface {
	Predict(ctx context.Context, input []float32) (*model.PredictionResponse, error)
}

// Deps are the collaborators a Handler serves.
type Deps struct {
	Recognizer *recognizer.Recognizer
	// Predictor is nil when the model failed to load.
	Predictor  Predictor
	Metadata   model.Metadata
	Quiz       *quiz.Book
	Logger     *slog.Logger
	MaxPadSide int
	Debounce   time.Duration
	// MaxPads caps open interactive pads; PadIdle closes pads left unused.
	MaxPads int
	PadIdle time.Duration
}

type Handler struct {
	rec        *recognizer.Recognizer
	predictor  Predictor
	metadata   model.Metadata
	quiz       *quiz.Book
	pads       *padRegistry
	logger     *slog.Logger
	maxPadSide int
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.MaxPadSide <= 0 {
		d.MaxPadSide = 4096
	}
	return &Handler{
		rec:        d.Recognizer,
		predictor:  d.Predictor,
		metadata:   d.Metadata,
		quiz:       d.Quiz,
		pads:       newPadRegistry(d.Recognizer, d.Debounce, d.MaxPads, d.PadIdle, logger),
		logger:     logger.With("component", "http"),
		maxPadSide: d.MaxPadSide,
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /predict", h.Predict)
	mux.HandleFunc("POST /recognize", h.Recognize)
	mux.HandleFunc("POST /recognize/image", h.RecognizeImage)
	mux.HandleFunc("POST /pads", h.CreatePad)
	mux.HandleFunc("GET /pads/{id}", h.GetPad)
	mux.HandleFunc("POST /pads/{id}/strokes", h.AddStrokes)
	mux.HandleFunc("DELETE /pads/{id}/ink", h.ClearPad)
	mux.HandleFunc("DELETE /pads/{id}", h.DeletePad)
	mux.HandleFunc("POST /quiz", h.StartRound)
	mux.HandleFunc("POST /quiz/{id}/answer", h.AnswerRound)
	return mux
}

// Close stops every pad session.
func (h *Handler) Close() {
	h.pads.closeAll()
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	state := "loaded"
	if !h.rec.Available() {
		state = "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "model": state})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if h.predictor == nil {
		http.Error(w, recognizer.ErrModelUnavailable.Error(), http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	expectedSize := h.metadata.InputSize()
	if len(req.Image) != expectedSize {
		http.Error(w, fmt.Sprintf("Expected %d values, got %d", expectedSize, len(req.Image)),
			http.StatusBadRequest)
		return
	}

	prediction, err := h.predictor.Predict(r.Context(), req.Image)
	if err != nil {
		h.logger.Error("prediction failed", "error", err)
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// strokesRequest is ink captured by a browser pad.
type strokesRequest struct {
	Width   int          `json:"width"`
	Height  int          `json:"height"`
	Strokes []ink.Stroke `json:"strokes"`
}

func (h *Handler) decodeStrokes(r *http.Request) (*strokesRequest, error) {
	var req strokesRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := h.checkSize(req.Width, req.Height); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *Handler) checkSize(width, height int) error {
	if width < 1 || height < 1 || width > h.maxPadSide || height > h.maxPadSide {
		return fmt.Errorf("pad size %dx%d outside 1..%d", width, height, h.maxPadSide)
	}
	return nil
}

func (h *Handler) Recognize(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeStrokes(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pad := ink.NewPad(req.Width, req.Height)
	for _, s := range req.Strokes {
		pad.AddStroke(s)
	}
	h.respondRecognition(w, r, pad.Snapshot())
}

func (h *Handler) RecognizeImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		http.Error(w, "Invalid image format. Supported: JPEG, PNG", http.StatusBadRequest)
		return
	}
	if err := h.checkSize(img.Bounds().Dx(), img.Bounds().Dy()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Debug("received image", "file", header.Filename, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	h.respondRecognition(w, r, ink.FromImage(img))
}

func (h *Handler) respondRecognition(w http.ResponseWriter, r *http.Request, raster *image.Alpha) {
	res, err := h.rec.Recognize(r.Context(), raster)
	if err != nil {
		h.logger.Warn("recognition aborted", "error", err)
		http.Error(w, "Recognition aborted", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, statusFor(res), res)
}

func statusFor(res *recognizer.Result) int {
	if errors.Is(res.Err(), recognizer.ErrModelUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
