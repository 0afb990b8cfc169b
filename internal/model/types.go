package model

// Metadata describes the ONNX digit model: tensor names, shapes and labels.
type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	Digit      int       `json:"digit"`
	Class      string    `json:"class"`
	Confidence float32   `json:"confidence"`
	Scores     []float32 `json:"scores"`
}
