package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Tensor names of the ONNX model zoo mnist-12 export.
const (
	DefaultInputName  = "Input3"
	DefaultOutputName = "Plus214_Output_0"
	NumClasses        = 10
)

var (
	ErrInputShape  = errors.New("input does not match model input shape")
	ErrOutputShape = errors.New("model output is not a 10-class score vector")
)

// DefaultMetadata matches mnist-12: a 1x1x28x28 input and 10 digit scores.
func DefaultMetadata() Metadata {
	return Metadata{
		InputName:   DefaultInputName,
		OutputName:  DefaultOutputName,
		InputShape:  []int64{1, 1, 28, 28},
		OutputShape: []int64{1, NumClasses},
		Classes:     []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
		ImageSize:   28,
	}
}

// LoadMetadata reads model metadata from a JSON file. Missing fields keep
// the mnist-12 defaults. A missing file yields the defaults unchanged.
func LoadMetadata(path string) (Metadata, error) {
	meta := DefaultMetadata()
	if path == "" {
		return meta, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return meta, nil
		}
		return meta, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return meta, err
	}
	return meta, nil
}

// Validate checks that the model takes one square single-channel image and
// produces ten class scores.
func (m Metadata) Validate() error {
	if len(m.InputShape) != 4 || m.InputShape[0] != 1 || m.InputShape[1] != 1 ||
		m.InputShape[2] != m.InputShape[3] || m.InputShape[2] <= 0 {
		return fmt.Errorf("input shape %v is not (1,1,S,S): %w", m.InputShape, ErrInputShape)
	}
	if int(m.InputShape[2]) != m.ImageSize {
		return fmt.Errorf("input shape %v disagrees with image size %d: %w", m.InputShape, m.ImageSize, ErrInputShape)
	}
	if m.OutputSize() != NumClasses {
		return fmt.Errorf("output shape %v: %w", m.OutputShape, ErrOutputShape)
	}
	if len(m.Classes) != NumClasses {
		return fmt.Errorf("expected %d classes, got %d: %w", NumClasses, len(m.Classes), ErrOutputShape)
	}
	if m.InputName == "" || m.OutputName == "" {
		return errors.New("metadata must name the input and output tensors")
	}
	return nil
}

// InputSize is the number of floats in one input tensor.
func (m Metadata) InputSize() int {
	return product(m.InputShape)
}

// OutputSize is the number of floats in one output tensor.
func (m Metadata) OutputSize() int {
	return product(m.OutputShape)
}

func product(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
