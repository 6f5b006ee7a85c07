// Package tensor provides a minimal float32 tensor used to move image data
// and layer activations between the model runtime and the Grad-CAM engine.
// Data layout is row-major: NHWC for batched images, HWC for single layer
// activations.
package tensor

import (
	"errors"
	"fmt"
)

// Tensor holds a flat float32 buffer with an explicit shape.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// New creates a tensor after validating that the data length matches the
// element count implied by shape.
func New(data []float32, shape ...int64) (*Tensor, error) {
	if data == nil {
		return nil, errors.New("nil tensor data")
	}
	if len(shape) == 0 {
		return nil, errors.New("empty tensor shape")
	}
	n := int64(1)
	for i, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("dimension %d must be > 0, got %d", i, d)
		}
		n *= d
	}
	if int64(len(data)) != n {
		return nil, fmt.Errorf("data length mismatch: got %d elements, expected %d for shape %v", len(data), n, shape)
	}
	return &Tensor{Data: data, Shape: shape}, nil
}

// NewImage builds a single-image NHWC tensor with shape [1, h, w, c].
// data must be length h*w*c in HWC order.
func NewImage(data []float32, h, w, c int) (*Tensor, error) {
	return New(data, 1, int64(h), int64(w), int64(c))
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}
	return len(t.Shape)
}

// Dim returns the size of axis i, or 0 if the axis does not exist.
func (t *Tensor) Dim(i int) int {
	if t == nil || i < 0 || i >= len(t.Shape) {
		return 0
	}
	return int(t.Shape[i])
}

// Empty reports whether the tensor has no data.
func (t *Tensor) Empty() bool {
	return t == nil || len(t.Data) == 0
}

// At3 indexes an HWC tensor at (y, x, c). The caller is responsible for
// bounds; this is a hot path inside the engine loops.
func (t *Tensor) At3(y, x, c int) float32 {
	w := int(t.Shape[1])
	ch := int(t.Shape[2])
	return t.Data[(y*w+x)*ch+c]
}
