// Package gradcam computes Gradient-weighted Class Activation Mapping
// heatmaps: spatial importance maps over a convolutional layer's
// activations, weighted by how much each channel pushes the model's
// prediction toward the target class.
package gradcam

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/vaidehibh/thyroscan/internal/tensor"
)

// AutoClass selects the target class from the prediction (threshold 0.5).
const AutoClass = -1

// Heatmap is a normalized 2-D importance map over a layer's spatial grid.
// Values are row-major, length Height*Width, in [0, 1].
type Heatmap struct {
	Values []float32
	Height int
	Width  int

	// Layer is the layer the map was computed against.
	Layer string
	// Score is the model's sigmoid output for this input.
	Score float32
	// ClassIndex is the explained class (0 or 1), supplied or derived.
	ClassIndex int
	// Degenerate marks a legitimate but uninformative all-zero map.
	Degenerate bool
}

// At returns the value at row y, column x.
func (h *Heatmap) At(y, x int) float32 {
	return h.Values[y*h.Width+x]
}

// Engine computes Grad-CAM heatmaps. It holds no per-call state: one Engine
// may serve any number of concurrent computations against a shared model.
type Engine struct {
	log *zap.Logger
}

// NewEngine creates an Engine. A nil logger is replaced with a no-op logger.
func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log}
}

// ComputeHeatmap generates the Grad-CAM heatmap for input against the named
// layer of model. classIndex is 0, 1, or AutoClass; with AutoClass the class
// is derived by thresholding the prediction at 0.5. For a single-sigmoid
// binary model the differentiation target is always the scalar output
// itself, whichever class it nominally represents.
//
// The returned map has the layer's spatial resolution, not the input image
// resolution; resizing for display is the caller's concern.
func (e *Engine) ComputeHeatmap(ctx context.Context, m Model, input *tensor.Tensor, layerName string, classIndex int) (*Heatmap, error) {
	if m == nil {
		return nil, &InvalidInputError{Reason: "model is nil"}
	}
	if input.Empty() {
		return nil, &InvalidInputError{Reason: "input tensor is nil or empty"}
	}
	if r := input.Rank(); r != 4 {
		return nil, &InvalidInputError{Reason: fmt.Sprintf("input tensor rank is %d, want 4 (batch, height, width, channels)", r)}
	}
	if b := input.Dim(0); b != 1 {
		return nil, &InvalidInputError{Reason: fmt.Sprintf("input batch size is %d, want 1", b)}
	}
	if classIndex != AutoClass && classIndex != 0 && classIndex != 1 {
		return nil, &InvalidInputError{Reason: fmt.Sprintf("class index %d out of range for binary classification", classIndex)}
	}
	if layerName == "" {
		return nil, &InvalidInputError{Reason: "layer name is empty"}
	}

	names := m.LayerNames()
	if !containsLayer(names, layerName) {
		return nil, &LayerNotFoundError{Name: layerName, Available: sampleLayers(names)}
	}

	fwd, err := m.Forward(ctx, input, layerName)
	if err != nil {
		return nil, fmt.Errorf("forward pass for layer %q: %w", layerName, err)
	}
	if fwd == nil || fwd.Activations.Empty() || fwd.Activations.Rank() != 3 {
		return nil, &GradientComputationError{Layer: layerName}
	}
	grads := fwd.Gradients
	if grads.Empty() || grads.Rank() != 3 {
		return nil, &GradientComputationError{Layer: layerName}
	}

	if classIndex == AutoClass {
		if fwd.Score >= 0.5 {
			classIndex = 1
		} else {
			classIndex = 0
		}
	}

	acts := fwd.Activations
	h, w, c := acts.Dim(0), acts.Dim(1), acts.Dim(2)

	weights := pooledGradients(grads)
	if len(weights) != c {
		return nil, &ShapeMismatchError{Weights: len(weights), Channels: c}
	}

	// Weight each channel by its importance and collapse across channels.
	// The activations are read, never scaled in place: the forward result
	// may be shared.
	values := make([]float32, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			for ch := 0; ch < c; ch++ {
				sum += acts.At3(y, x, ch) * weights[ch]
			}
			values[y*w+x] = sum / float32(c)
		}
	}

	// Rectify: only positive evidence for the class is interpretable.
	var maxV float32
	for i, v := range values {
		if v < 0 {
			values[i] = 0
		} else if v > maxV {
			maxV = v
		}
	}

	degenerate := false
	if maxV > 0 {
		for i := range values {
			values[i] /= maxV
		}
	} else {
		// A zero map can be legitimate (no activation correlated with the
		// prediction); surface it as a warning, not an error.
		degenerate = true
		e.log.Warn("degenerate all-zero heatmap",
			zap.String("layer", layerName),
			zap.Float32("score", fwd.Score),
			zap.Int("class", classIndex))
	}

	var nanCount, infCount int
	for _, v := range values {
		f := float64(v)
		switch {
		case math.IsNaN(f):
			nanCount++
		case math.IsInf(f, 0):
			infCount++
		}
	}
	if nanCount > 0 || infCount > 0 {
		return nil, &NumericalInstabilityError{Layer: layerName, NaN: nanCount, Inf: infCount}
	}

	return &Heatmap{
		Values:     values,
		Height:     h,
		Width:      w,
		Layer:      layerName,
		Score:      fwd.Score,
		ClassIndex: classIndex,
		Degenerate: degenerate,
	}, nil
}

// pooledGradients averages the gradient tensor over its spatial axes,
// yielding one importance weight per channel.
func pooledGradients(grads *tensor.Tensor) []float32 {
	gh, gw, gc := grads.Dim(0), grads.Dim(1), grads.Dim(2)
	weights := make([]float32, gc)
	for y := 0; y < gh; y++ {
		for x := 0; x < gw; x++ {
			for ch := 0; ch < gc; ch++ {
				weights[ch] += grads.At3(y, x, ch)
			}
		}
	}
	area := float32(gh * gw)
	for ch := range weights {
		weights[ch] /= area
	}
	return weights
}

func containsLayer(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
