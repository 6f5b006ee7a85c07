package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// LayerInfo describes one model layer as recorded by the export pipeline.
// Instrumented convolutional layers carry the names of the auxiliary graph
// outputs that expose their activations and gradients.
type LayerInfo struct {
	Name          string `json:"name"`
	Convolutional bool   `json:"convolutional"`
	Height        int    `json:"height,omitempty"`
	Width         int    `json:"width,omitempty"`
	Channels      int    `json:"channels,omitempty"`

	// ActivationOutput and GradientOutput name the ONNX graph outputs for
	// this layer, e.g. "conv2d_2/activations" and "conv2d_2/gradients".
	// Empty when the layer was not instrumented.
	ActivationOutput string `json:"activation_output,omitempty"`
	GradientOutput   string `json:"gradient_output,omitempty"`
}

// Metadata is the sidecar JSON written next to the ONNX file at export time.
type Metadata struct {
	Name              string            `json:"name"`
	InputName         string            `json:"input_name"`
	InputShape        []int64           `json:"input_shape"`
	OutputShape       []int64           `json:"output_shape"`
	ImageSize         int               `json:"image_size"`
	Parameters        int64             `json:"parameters"`
	Classes           map[string]string `json:"classes"`
	ProbabilityOutput string            `json:"probability_output"`
	Layers            []LayerInfo       `json:"layers"`
}

// LoadMetadata reads and validates a model metadata file.
func LoadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse model metadata: %w", err)
	}
	if err := meta.validate(); err != nil {
		return nil, fmt.Errorf("invalid model metadata: %w", err)
	}
	return &meta, nil
}

func (m *Metadata) validate() error {
	if m.InputName == "" {
		return fmt.Errorf("input_name is required")
	}
	if len(m.InputShape) != 4 {
		return fmt.Errorf("input_shape must have rank 4 (NHWC), got %v", m.InputShape)
	}
	if m.InputShape[0] != 1 {
		return fmt.Errorf("input_shape batch must be 1, got %d", m.InputShape[0])
	}
	if m.ProbabilityOutput == "" {
		return fmt.Errorf("probability_output is required")
	}
	if len(m.Layers) == 0 {
		return fmt.Errorf("at least one layer entry is required")
	}
	for i, l := range m.Layers {
		if l.Name == "" {
			return fmt.Errorf("layer %d has no name", i)
		}
		if l.ActivationOutput != "" && (l.Height <= 0 || l.Width <= 0 || l.Channels <= 0) {
			return fmt.Errorf("instrumented layer %q needs positive height/width/channels", l.Name)
		}
	}
	return nil
}

// layer returns the LayerInfo for name, or nil.
func (m *Metadata) layer(name string) *LayerInfo {
	for i := range m.Layers {
		if m.Layers[i].Name == name {
			return &m.Layers[i]
		}
	}
	return nil
}

// layerNames lists all layers in declaration order.
func (m *Metadata) layerNames() []string {
	names := make([]string, len(m.Layers))
	for i, l := range m.Layers {
		names[i] = l.Name
	}
	return names
}

// convLayerNames lists the convolutional layers in declaration order.
func (m *Metadata) convLayerNames() []string {
	var names []string
	for _, l := range m.Layers {
		if l.Convolutional {
			names = append(names, l.Name)
		}
	}
	return names
}
