package gradcam

import (
	"fmt"
	"strings"
)

// maxSuggestedLayers bounds how many layer names a LayerNotFoundError carries.
const maxSuggestedLayers = 10

// InvalidInputError reports a request the caller must fix: nil model, nil or
// wrongly shaped input tensor, empty layer name, bad class index.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "gradcam: invalid input: " + e.Reason
}

// LayerNotFoundError reports that the requested layer does not exist in the
// model. It carries a sample of available layer names so the caller can fix
// the request without re-running with extra logging.
type LayerNotFoundError struct {
	Name      string
	Available []string
}

func (e *LayerNotFoundError) Error() string {
	return fmt.Sprintf("gradcam: layer %q not found in model (available: %s)",
		e.Name, strings.Join(e.Available, ", "))
}

// GradientComputationError reports that the dual forward pass produced no
// usable gradient for the target layer. This indicates a graph construction
// problem in the model, not a bad request.
type GradientComputationError struct {
	Layer string
}

func (e *GradientComputationError) Error() string {
	return fmt.Sprintf("gradcam: no gradient produced for layer %q", e.Layer)
}

// ShapeMismatchError reports that the channel-importance vector length does
// not match the activation channel count, naming both sizes.
type ShapeMismatchError struct {
	Weights  int
	Channels int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("gradcam: channel importance length %d does not match activation channel count %d",
		e.Weights, e.Channels)
}

// NumericalInstabilityError reports NaN or Inf values in the final heatmap.
// These are never sanitized away: they point at a real gradient defect.
type NumericalInstabilityError struct {
	Layer string
	NaN   int
	Inf   int
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("gradcam: heatmap for layer %q contains %d NaN and %d Inf values",
		e.Layer, e.NaN, e.Inf)
}

// NoConvolutionalLayerError reports that automatic layer selection found no
// convolutional layer to explain.
type NoConvolutionalLayerError struct {
	LayerCount int
}

func (e *NoConvolutionalLayerError) Error() string {
	return fmt.Sprintf("gradcam: no convolutional layer found among %d model layers", e.LayerCount)
}

// sampleLayers returns at most maxSuggestedLayers names for error messages.
func sampleLayers(names []string) []string {
	if len(names) <= maxSuggestedLayers {
		return names
	}
	return names[:maxSuggestedLayers]
}
