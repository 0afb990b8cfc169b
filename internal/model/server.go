// Package model runs the pre-trained digit classifier with ONNX Runtime.
package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Options locate the model and the ONNX Runtime shared library.
type Options struct {
	ModelPath    string
	MetadataPath string
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string
}

// Server owns one ONNX session with pre-allocated input and output tensors.
// Calls are serialised because the tensors are shared.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewServer initialises ONNX Runtime and loads the model. Any failure means
// the model is unavailable; callers should not retry per request.
func NewServer(opts Options) (*Server, error) {
	metadata, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}

	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Classify scores one normalised digit image. The returned slice is a copy.
func (s *Server) Classify(ctx context.Context, input []float32) ([]float32, error) {
	if want := s.Metadata.InputSize(); len(input) != want {
		return nil, fmt.Errorf("expected %d values, got %d: %w", want, len(input), ErrInputShape)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), input)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.outputTensor.GetData()
	if len(out) != NumClasses {
		return nil, fmt.Errorf("got %d scores: %w", len(out), ErrOutputShape)
	}
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

// Predict classifies a raw input tensor and reports the best digit.
func (s *Server) Predict(ctx context.Context, input []float32) (*PredictionResponse, error) {
	scores, err := s.Classify(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.Metadata.Describe(scores), nil
}

// Describe picks the highest scoring class.
func (m Metadata) Describe(scores []float32) *PredictionResponse {
	if len(scores) == 0 {
		return &PredictionResponse{}
	}
	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	class := fmt.Sprint(maxIdx)
	if maxIdx < len(m.Classes) {
		class = m.Classes[maxIdx]
	}
	return &PredictionResponse{
		Digit:      maxIdx,
		Class:      class,
		Confidence: maxVal,
		Scores:     scores,
	}
}

func (s *Server) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
