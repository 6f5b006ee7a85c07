// Package model loads and serves the trained thyroid nodule classifier.
// The network itself is an opaque artifact: an ONNX export of the trained
// Keras model, augmented with auxiliary graph outputs that expose selected
// convolutional activations and their gradients for Grad-CAM.
package model

import (
	"context"

	"github.com/vaidehibh/thyroscan/internal/gradcam"
	"github.com/vaidehibh/thyroscan/internal/tensor"
)

// Classifier is what the serving layer needs from a loaded model. It extends
// the Grad-CAM model capability with plain inference and introspection.
// Implementations must be safe for concurrent use.
type Classifier interface {
	gradcam.Model

	// Predict runs the forward pass and returns the malignancy probability
	// in [0, 1] for a [1, H, W, C] input.
	Predict(ctx context.Context, input *tensor.Tensor) (float32, error)

	// Info describes the loaded model.
	Info() Info

	// Close releases any resources held by the model runtime.
	Close() error
}

// Info describes a loaded model for the /model-info endpoint.
type Info struct {
	Name        string            `json:"name"`
	InputShape  []int64           `json:"input_shape"`
	OutputShape []int64           `json:"output_shape"`
	Parameters  int64             `json:"parameters"`
	ImageSize   int               `json:"image_size"`
	Classes     map[string]string `json:"classes"`
	ConvLayers  []string          `json:"conv_layers"`
}
