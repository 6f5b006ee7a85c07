package gradcam

import (
	"context"

	"github.com/vaidehibh/thyroscan/internal/tensor"
)

// Model is the capability the engine needs from a trained binary classifier.
// The engine treats it as an opaque black box: how activations and gradients
// are obtained (autodiff tape, exported gradient ops, ...) is the
// implementation's concern. Implementations must be safe for concurrent
// read-only use; the engine never mutates the model or the input tensor.
type Model interface {
	// LayerNames lists the model's layers in declaration order.
	LayerNames() []string

	// Forward runs the dual-output forward pass on a [1, H, W, C] input:
	// it evaluates the named intermediate layer's activations and the final
	// sigmoid probability in one graph evaluation, together with the
	// gradient of the class score with respect to those activations.
	Forward(ctx context.Context, input *tensor.Tensor, layer string) (*ForwardResult, error)
}

// ForwardResult carries the outputs of one dual forward pass.
type ForwardResult struct {
	// Activations is the target layer's output with the batch axis removed,
	// shape (height, width, channels).
	Activations *tensor.Tensor

	// Gradients is the gradient of the class score with respect to
	// Activations, same shape. Nil when the graph produced no gradient.
	Gradients *tensor.Tensor

	// Score is the model's sigmoid output in [0, 1] for the batch element.
	Score float32
}

// ConvolutionalLayerLister is an optional typed introspection capability.
// Models that know their layer types should implement it so automatic layer
// selection does not have to fall back to name matching.
type ConvolutionalLayerLister interface {
	// ConvolutionalLayers lists the convolutional layers in declaration
	// order, i.e. layers with a spatial output and a channel axis suitable
	// for Grad-CAM.
	ConvolutionalLayers() []string
}
