package handler

import (
	"github.com/vaidehibh/thyroscan/internal/imageproc"
	"github.com/vaidehibh/thyroscan/internal/model"
)

// ImageRequest is the body for prediction requests.
type ImageRequest struct {
	// Image is the base64 encoded image, data-URL prefix tolerated.
	Image    string `json:"image"`
	Filename string `json:"filename,omitempty"`
}

// GradCAMRequest is the body for visualization requests.
type GradCAMRequest struct {
	Image    string `json:"image"`
	Filename string `json:"filename,omitempty"`
	// LayerName selects the target layer; empty means the last
	// convolutional layer.
	LayerName string `json:"layer_name,omitempty"`
	// ClassIndex explains a specific class (0 or 1); nil derives it from
	// the prediction.
	ClassIndex *int `json:"class_index,omitempty"`
}

// AnalyzeRequest is the body for combined prediction + visualization.
type AnalyzeRequest struct {
	Image    string `json:"image"`
	Filename string `json:"filename,omitempty"`
	// IncludeGradCAM defaults to true when omitted.
	IncludeGradCAM *bool `json:"include_gradcam,omitempty"`
}

func (r *AnalyzeRequest) wantGradCAM() bool {
	return r.IncludeGradCAM == nil || *r.IncludeGradCAM
}

// Prediction is the classification block shared by responses.
type Prediction struct {
	Class                int     `json:"class"`
	Label                string  `json:"label"`
	ConfidenceScore      float32 `json:"confidence_score"`
	ConfidencePercentage float32 `json:"confidence_percentage"`
}

// PredictionResponse is the /predict response.
type PredictionResponse struct {
	Success        bool       `json:"success"`
	Timestamp      string     `json:"timestamp"`
	Filename       string     `json:"filename,omitempty"`
	Prediction     Prediction `json:"prediction"`
	RiskAssessment string     `json:"risk_assessment"`
	Recommendation string     `json:"recommendation"`
}

// GradCAMResponse is the /gradcam response.
type GradCAMResponse struct {
	Success    bool                      `json:"success"`
	Timestamp  string                    `json:"timestamp"`
	Filename   string                    `json:"filename,omitempty"`
	LayerUsed  string                    `json:"layer_used"`
	Degenerate bool                      `json:"degenerate,omitempty"`
	Images     *imageproc.RenderedImages `json:"images"`
	Prediction Prediction                `json:"prediction"`
}

// GradCAMData is the nested visualization block of an analyze response.
type GradCAMData struct {
	LayerUsed  string                    `json:"layer_used"`
	Degenerate bool                      `json:"degenerate,omitempty"`
	Images     *imageproc.RenderedImages `json:"images"`
}

// AnalyzeResponse is the /analyze response.
type AnalyzeResponse struct {
	Success        bool         `json:"success"`
	Timestamp      string       `json:"timestamp"`
	Filename       string       `json:"filename,omitempty"`
	Prediction     Prediction   `json:"prediction"`
	RiskAssessment string       `json:"risk_assessment"`
	Recommendation string       `json:"recommendation"`
	GradCAM        *GradCAMData `json:"gradcam,omitempty"`
}

// HealthResponse is the /health response.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Timestamp   string `json:"timestamp"`
	Version     string `json:"version"`
}

// ModelInfoResponse is the /model-info response.
type ModelInfoResponse struct {
	model.Info
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}
