package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Brownie44l1/digitpad/internal/ink"
	"github.com/Brownie44l1/digitpad/internal/quiz"
	"github.com/Brownie44l1/digitpad/internal/rank"
	"github.com/Brownie44l1/digitpad/internal/recognizer"
)

type roundResponse struct {
	ID       string    `json:"id"`
	Question string    `json:"question"`
	Deadline time.Time `json:"deadline"`
}

func (h *Handler) StartRound(w http.ResponseWriter, r *http.Request) {
	round := h.quiz.Start()
	writeJSON(w, http.StatusCreated, roundResponse{
		ID:       round.ID,
		Question: round.Question.Text,
		Deadline: round.Deadline,
	})
}

// answerRequest carries either typed text or handwriting to be recognised.
type answerRequest struct {
	Text    string       `json:"text,omitempty"`
	Width   int          `json:"width,omitempty"`
	Height  int          `json:"height,omitempty"`
	Strokes []ink.Stroke `json:"strokes,omitempty"`
}

type answerResponse struct {
	quiz.Outcome
	Answer     string           `json:"answer,omitempty"`
	Candidates []rank.Candidate `json:"candidates,omitempty"`
}

func (h *Handler) AnswerRound(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	texts := []string{req.Text}
	var candidates []rank.Candidate
	if len(req.Strokes) > 0 {
		if err := h.checkSize(req.Width, req.Height); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		pad := ink.NewPad(req.Width, req.Height)
		for _, s := range req.Strokes {
			pad.AddStroke(s)
		}
		res, err := h.rec.Recognize(r.Context(), pad.Snapshot())
		if err != nil {
			http.Error(w, "Recognition aborted", http.StatusServiceUnavailable)
			return
		}
		if res.Status == recognizer.StatusModelUnavailable {
			writeJSON(w, http.StatusServiceUnavailable, res)
			return
		}
		candidates = res.Candidates
		texts = texts[:0]
		for _, c := range candidates {
			texts = append(texts, c.Text)
		}
	}

	out, picked, err := h.quiz.AnswerAny(r.PathValue("id"), texts)
	switch {
	case errors.Is(err, quiz.ErrUnknownRound):
		http.Error(w, "Unknown round", http.StatusNotFound)
		return
	case errors.Is(err, quiz.ErrRoundOver):
		http.Error(w, "Round already answered", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, answerResponse{Outcome: out, Answer: picked, Candidates: candidates})
}
