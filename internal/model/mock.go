package model

import (
	"context"
	"fmt"
	"math"

	"github.com/vaidehibh/thyroscan/internal/gradcam"
	"github.com/vaidehibh/thyroscan/internal/tensor"
)

// Mock is a deterministic Classifier for tests and the -mock serving mode.
// It produces a fixed probability and a synthetic activation blob so Grad-CAM
// output is stable and visually sensible without the ONNX shared library.
type Mock struct {
	// Layers and Convs define the mock's layer inventory.
	Layers []string
	Convs  []string

	// Score is the probability returned by every prediction.
	Score float32

	// Activations and Gradients, when set, override the synthetic blob.
	Activations *tensor.Tensor
	Gradients   *tensor.Tensor

	// ShouldError makes every call fail with ErrorMessage.
	ShouldError  bool
	ErrorMessage string

	// CallCount tracks forward passes across Predict and Forward.
	CallCount int
}

const mockGridSize = 7

// NewMock creates a Mock resembling the real model's layer layout, with a
// benign-leaning score.
func NewMock() *Mock {
	return &Mock{
		Layers: []string{"input", "conv2d_1", "bn_1", "depthwise_separable_conv_1", "depthwise_separable_conv_2", "global_pool", "dense_1"},
		Convs:  []string{"conv2d_1", "depthwise_separable_conv_1", "depthwise_separable_conv_2"},
		Score:  0.27,
	}
}

// LayerNames implements gradcam.Model.
func (m *Mock) LayerNames() []string { return m.Layers }

// ConvolutionalLayers implements gradcam.ConvolutionalLayerLister.
func (m *Mock) ConvolutionalLayers() []string { return m.Convs }

// Predict returns the configured score.
func (m *Mock) Predict(ctx context.Context, input *tensor.Tensor) (float32, error) {
	m.CallCount++
	if m.ShouldError {
		return 0, m.mockErr()
	}
	if input.Empty() {
		return 0, fmt.Errorf("empty input tensor")
	}
	return m.Score, nil
}

// Forward returns the configured or synthetic activations and gradients.
func (m *Mock) Forward(ctx context.Context, input *tensor.Tensor, layer string) (*gradcam.ForwardResult, error) {
	m.CallCount++
	if m.ShouldError {
		return nil, m.mockErr()
	}
	if input.Empty() {
		return nil, fmt.Errorf("empty input tensor")
	}

	acts := m.Activations
	grads := m.Gradients
	if acts == nil {
		acts = syntheticBlob(mockGridSize, 8)
	}
	if grads == nil {
		grads = constantGradients(acts.Dim(0), acts.Dim(1), acts.Dim(2))
	}
	return &gradcam.ForwardResult{
		Activations: acts,
		Gradients:   grads,
		Score:       m.Score,
	}, nil
}

// Info implements Classifier.
func (m *Mock) Info() Info {
	return Info{
		Name:        "thyroscan mock classifier",
		InputShape:  []int64{1, 224, 224, 3},
		OutputShape: []int64{1, 1},
		Parameters:  0,
		ImageSize:   224,
		Classes: map[string]string{
			"0": "Benign (Non-Cancerous)",
			"1": "Malignant (Cancerous)",
		},
		ConvLayers: m.Convs,
	}
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// SetError configures the mock to fail every call.
func (m *Mock) SetError(msg string) {
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error.
func (m *Mock) ClearError() {
	m.ShouldError = false
	m.ErrorMessage = ""
}

func (m *Mock) mockErr() error {
	if m.ErrorMessage != "" {
		return fmt.Errorf("%s", m.ErrorMessage)
	}
	return fmt.Errorf("mock model error")
}

// syntheticBlob builds an n x n x c activation tensor with a gaussian bump
// centered in the grid, identical across channels up to a per-channel scale.
func syntheticBlob(n, c int) *tensor.Tensor {
	data := make([]float32, n*n*c)
	center := float64(n-1) / 2
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dy := float64(y) - center
			dx := float64(x) - center
			bump := math.Exp(-(dy*dy + dx*dx) / float64(n))
			for ch := 0; ch < c; ch++ {
				scale := 1 + float64(ch)/float64(c)
				data[(y*n+x)*c+ch] = float32(bump * scale)
			}
		}
	}
	t, _ := tensor.New(data, int64(n), int64(n), int64(c))
	return t
}

// constantGradients builds a positive constant gradient per channel so the
// pooled importances favor higher channels.
func constantGradients(h, w, c int) *tensor.Tensor {
	data := make([]float32, h*w*c)
	for i := range data {
		data[i] = float32(i%c+1) / float32(c)
	}
	t, _ := tensor.New(data, int64(h), int64(w), int64(c))
	return t
}

var (
	_ Classifier                       = (*Mock)(nil)
	_ gradcam.ConvolutionalLayerLister = (*Mock)(nil)
)
