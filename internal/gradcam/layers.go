package gradcam

import "strings"

// LastConvolutionalLayer picks the default target layer for a model: the
// last convolutional layer in declaration order. Models implementing
// ConvolutionalLayerLister are queried directly; otherwise the choice falls
// back to matching layer names against the convolution naming convention.
func LastConvolutionalLayer(m Model) (string, error) {
	if m == nil {
		return "", &InvalidInputError{Reason: "model is nil"}
	}
	if lister, ok := m.(ConvolutionalLayerLister); ok {
		convs := lister.ConvolutionalLayers()
		if len(convs) == 0 {
			return "", &NoConvolutionalLayerError{LayerCount: len(m.LayerNames())}
		}
		return convs[len(convs)-1], nil
	}
	names := m.LayerNames()
	if name := lastConvName(names); name != "" {
		return name, nil
	}
	return "", &NoConvolutionalLayerError{LayerCount: len(names)}
}

// lastConvName returns the last name matching the convolution naming
// convention, or "". The "conv" substring also covers depthwise separable
// blocks ("depthwise_separable_conv_2" and the like).
func lastConvName(names []string) string {
	last := ""
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), "conv") {
			last = n
		}
	}
	return last
}
