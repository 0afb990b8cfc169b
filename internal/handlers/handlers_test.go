package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Brownie44l1/digitpad/internal/model"
	"github.com/Brownie44l1/digitpad/internal/quiz"
	"github.com/Brownie44l1/digitpad/internal/recognizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedDigit always answers the same digit.
type fixedDigit int

func (d fixedDigit) Classify(_ context.Context, input []float32) ([]float32, error) {
	out := make([]float32, model.NumClasses)
	out[int(d)] = 0.9
	out[(int(d)+1)%model.NumClasses] = 0.05
	return out, nil
}

func (d fixedDigit) Predict(ctx context.Context, input []float32) (*model.PredictionResponse, error) {
	scores, err := d.Classify(ctx, input)
	if err != nil {
		return nil, err
	}
	return model.DefaultMetadata().Describe(scores), nil
}

// failingDigit loaded but errors on every call.
type failingDigit struct{}

func (failingDigit) Classify(context.Context, []float32) ([]float32, error) {
	return nil, errors.New("session run failed")
}

func (failingDigit) Predict(context.Context, []float32) (*model.PredictionResponse, error) {
	return nil, errors.New("session run failed")
}

type testServer struct {
	*httptest.Server
	handler *Handler
	book    *quiz.Book
}

func newTestServer(t *testing.T, clf recognizer.Classifier) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	book := quiz.NewBook(10*time.Second, rand.New(rand.NewPCG(3, 4)))
	deps := Deps{
		Recognizer: recognizer.New(clf, recognizer.Options{}, logger),
		Metadata:   model.DefaultMetadata(),
		Quiz:       book,
		Logger:     logger,
		MaxPadSide: 1024,
		Debounce:   5 * time.Millisecond,
	}
	if p, ok := clf.(Predictor); ok {
		deps.Predictor = p
	}
	h := NewHandler(deps)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return &testServer{Server: srv, handler: h, book: book}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

var oneStroke = map[string]any{
	"width":  120,
	"height": 120,
	"strokes": []map[string]any{{
		"pointer_type": "mouse",
		"points":       []map[string]float64{{"x": 60, "y": 20}, {"x": 60, "y": 100}},
	}},
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, fixedDigit(1))
	resp, body := srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy","model":"loaded"}`, string(body))

	down := newTestServer(t, nil)
	_, body = down.do(t, http.MethodGet, "/health", nil)
	assert.JSONEq(t, `{"status":"healthy","model":"unavailable"}`, string(body))
}

func TestPredict(t *testing.T) {
	srv := newTestServer(t, fixedDigit(6))

	resp, _ := srv.do(t, http.MethodPost, "/predict", model.PredictionRequest{Image: make([]float32, 10)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := srv.do(t, http.MethodPost, "/predict", model.PredictionRequest{Image: make([]float32, 784)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got model.PredictionResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 6, got.Digit)
	assert.InDelta(t, 0.9, got.Confidence, 1e-6)
	assert.Len(t, got.Scores, 10)

	broken := newTestServer(t, failingDigit{})
	resp, _ = broken.do(t, http.MethodPost, "/predict", model.PredictionRequest{Image: make([]float32, 784)})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	down := newTestServer(t, nil)
	resp, _ = down.do(t, http.MethodPost, "/predict", model.PredictionRequest{Image: make([]float32, 784)})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func decodeResult(t *testing.T, body []byte) recognizer.Result {
	t.Helper()
	var res recognizer.Result
	require.NoError(t, json.Unmarshal(body, &res))
	return res
}

func TestRecognizeStrokes(t *testing.T) {
	srv := newTestServer(t, fixedDigit(1))

	resp, body := srv.do(t, http.MethodPost, "/recognize", oneStroke)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	res := decodeResult(t, body)
	assert.Equal(t, recognizer.StatusOK, res.Status)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, "1", res.Candidates[0].Text)

	resp, body = srv.do(t, http.MethodPost, "/recognize", map[string]any{"width": 50, "height": 50})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, recognizer.StatusNoInk, decodeResult(t, body).Status)

	resp, _ = srv.do(t, http.MethodPost, "/recognize", map[string]any{"width": 0, "height": 50})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecognizeModelUnavailable(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, body := srv.do(t, http.MethodPost, "/recognize", oneStroke)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, recognizer.StatusModelUnavailable, decodeResult(t, body).Status)
}

func TestRecognizeImage(t *testing.T) {
	srv := newTestServer(t, fixedDigit(4))

	img := image.NewGray(image.Rect(0, 0, 80, 80))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 20; y < 60; y++ {
		for x := 35; x < 45; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "four.png")
	require.NoError(t, err)
	require.NoError(t, png.Encode(part, img))
	require.NoError(t, mw.Close())

	resp, err := srv.Client().Post(srv.URL+"/recognize/image", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	res := decodeResult(t, body)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, "4", res.Candidates[0].Text)
}

func TestPadLifecycle(t *testing.T) {
	srv := newTestServer(t, fixedDigit(9))

	resp, body := srv.do(t, http.MethodPost, "/pads", map[string]int{"width": 120, "height": 120})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created padResponse
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ID)

	resp, _ = srv.do(t, http.MethodPost, "/pads/"+created.ID+"/strokes",
		map[string]any{"strokes": oneStroke["strokes"]})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var latest padResponse
	require.Eventually(t, func() bool {
		_, body := srv.do(t, http.MethodGet, "/pads/"+created.ID, nil)
		latest = padResponse{}
		return json.Unmarshal(body, &latest) == nil && latest.Result != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "9", latest.Result.Candidates[0].Text)

	resp, _ = srv.do(t, http.MethodDelete, "/pads/"+created.ID+"/ink", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Eventually(t, func() bool {
		_, body := srv.do(t, http.MethodGet, "/pads/"+created.ID, nil)
		latest = padResponse{}
		return json.Unmarshal(body, &latest) == nil && latest.Result != nil &&
			latest.Result.Status == recognizer.StatusNoInk
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ = srv.do(t, http.MethodDelete, "/pads/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = srv.do(t, http.MethodGet, "/pads/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQuizRounds(t *testing.T) {
	srv := newTestServer(t, fixedDigit(0))

	resp, body := srv.do(t, http.MethodPost, "/quiz", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var started roundResponse
	require.NoError(t, json.Unmarshal(body, &started))
	assert.NotEmpty(t, started.ID)
	assert.True(t, strings.ContainsAny(started.Question, "×÷"))

	round := srv.book.Start()
	resp, body = srv.do(t, http.MethodPost, "/quiz/"+round.ID+"/answer", map[string]string{"text": "5"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"correct":false`)

	answer := strconv.Itoa(round.Question.Answer)
	resp, body = srv.do(t, http.MethodPost, "/quiz/"+round.ID+"/answer", map[string]string{"text": answer})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"correct":true`)

	resp, _ = srv.do(t, http.MethodPost, "/quiz/"+round.ID+"/answer", map[string]string{"text": answer})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = srv.do(t, http.MethodPost, "/quiz/missing/answer", map[string]string{"text": "1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQuizAnswerFromHandwriting(t *testing.T) {
	srv := newTestServer(t, fixedDigit(1))
	round := srv.book.Start()

	resp, body := srv.do(t, http.MethodPost, "/quiz/"+round.ID+"/answer", oneStroke)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got answerResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.False(t, got.Correct, "a single digit never answers a two-digit problem")
	assert.NotEmpty(t, got.Candidates)
}
