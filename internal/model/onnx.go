package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/vaidehibh/thyroscan/internal/gradcam"
	"github.com/vaidehibh/thyroscan/internal/tensor"
)

// ONNX serves the exported classifier through ONNX Runtime. The export
// carries, next to the sigmoid probability, one activation output and one
// gradient output per instrumented convolutional layer; the gradient ops are
// baked into the graph at export time, so reverse-mode differentiation
// happens inside the runtime and every call gets an independent evaluation.
//
// The session itself is not safe for concurrent Run calls, so it is guarded
// by a mutex; the model weights are read-only throughout.
type ONNX struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	meta    *Metadata

	// outputs is the fixed, ordered output-name list the session was
	// created with; index maps a name back to its position.
	outputs []string
	index   map[string]int
}

// Open loads the ONNX model and its metadata sidecar.
func Open(modelPath, metadataPath string) (*ONNX, error) {
	meta, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	outputs := []string{meta.ProbabilityOutput}
	for _, l := range meta.Layers {
		if l.ActivationOutput != "" {
			outputs = append(outputs, l.ActivationOutput)
		}
		if l.GradientOutput != "" {
			outputs = append(outputs, l.GradientOutput)
		}
	}
	index := make(map[string]int, len(outputs))
	for i, name := range outputs {
		index[name] = i
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{meta.InputName},
		outputs,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNX{
		session: session,
		meta:    meta,
		outputs: outputs,
		index:   index,
	}, nil
}

// LayerNames implements gradcam.Model.
func (m *ONNX) LayerNames() []string {
	return m.meta.layerNames()
}

// ConvolutionalLayers implements gradcam.ConvolutionalLayerLister using the
// layer-type metadata recorded at export time, so automatic layer selection
// never has to guess from names.
func (m *ONNX) ConvolutionalLayers() []string {
	return m.meta.convLayerNames()
}

// Predict runs the forward pass and returns the malignancy probability.
func (m *ONNX) Predict(ctx context.Context, input *tensor.Tensor) (float32, error) {
	out, err := m.run(ctx, input)
	if err != nil {
		return 0, err
	}
	prob := out[m.index[m.meta.ProbabilityOutput]]
	if len(prob) == 0 {
		return 0, fmt.Errorf("probability output %q is empty", m.meta.ProbabilityOutput)
	}
	return prob[0], nil
}

// Forward implements gradcam.Model: one graph evaluation yields the named
// layer's activations, their gradients, and the final probability.
func (m *ONNX) Forward(ctx context.Context, input *tensor.Tensor, layer string) (*gradcam.ForwardResult, error) {
	info := m.meta.layer(layer)
	if info == nil {
		return nil, fmt.Errorf("layer %q is not declared in model metadata", layer)
	}
	if info.ActivationOutput == "" {
		return nil, fmt.Errorf("layer %q is not instrumented for activation capture", layer)
	}

	out, err := m.run(ctx, input)
	if err != nil {
		return nil, err
	}

	prob := out[m.index[m.meta.ProbabilityOutput]]
	if len(prob) == 0 {
		return nil, fmt.Errorf("probability output %q is empty", m.meta.ProbabilityOutput)
	}

	// Outputs arrive as [1, h, w, c]; the batch axis is dropped here.
	acts, err := tensor.New(out[m.index[info.ActivationOutput]],
		int64(info.Height), int64(info.Width), int64(info.Channels))
	if err != nil {
		return nil, fmt.Errorf("activation output for layer %q: %w", layer, err)
	}

	result := &gradcam.ForwardResult{
		Activations: acts,
		Score:       prob[0],
	}

	if info.GradientOutput != "" {
		grads, err := tensor.New(out[m.index[info.GradientOutput]],
			int64(info.Height), int64(info.Width), int64(info.Channels))
		if err != nil {
			return nil, fmt.Errorf("gradient output for layer %q: %w", layer, err)
		}
		result.Gradients = grads
	}
	return result, nil
}

// run executes the session once and returns a copy of every output buffer,
// ordered as m.outputs.
func (m *ONNX) run(ctx context.Context, input *tensor.Tensor) ([][]float32, error) {
	if input.Empty() {
		return nil, fmt.Errorf("empty input tensor")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, fmt.Errorf("inference session is nil")
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensors := make([]ort.ArbitraryTensor, len(m.outputs))
	results := make([][]float32, len(m.outputs))
	for i, name := range m.outputs {
		shape := m.outputShape(name)
		n := int64(1)
		for _, d := range shape {
			n *= d
		}
		ot, err := ort.NewTensor(ort.NewShape(shape...), make([]float32, n))
		if err != nil {
			for _, prev := range outputTensors[:i] {
				prev.Destroy()
			}
			return nil, fmt.Errorf("failed to create output tensor %q: %w", name, err)
		}
		outputTensors[i] = ot
	}
	defer func() {
		for _, ot := range outputTensors {
			ot.Destroy()
		}
	}()

	if err := m.session.Run([]ort.ArbitraryTensor{inputTensor}, outputTensors); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	for i, ot := range outputTensors {
		src := ot.(*ort.Tensor[float32]).GetData()
		dst := make([]float32, len(src))
		copy(dst, src)
		results[i] = dst
	}
	return results, nil
}

// outputShape resolves the declared shape of a graph output.
func (m *ONNX) outputShape(name string) []int64 {
	if name == m.meta.ProbabilityOutput {
		if len(m.meta.OutputShape) > 0 {
			return m.meta.OutputShape
		}
		return []int64{1, 1}
	}
	for _, l := range m.meta.Layers {
		if l.ActivationOutput == name || l.GradientOutput == name {
			return []int64{1, int64(l.Height), int64(l.Width), int64(l.Channels)}
		}
	}
	return []int64{1}
}

// Info implements Classifier.
func (m *ONNX) Info() Info {
	return Info{
		Name:        m.meta.Name,
		InputShape:  m.meta.InputShape,
		OutputShape: m.meta.OutputShape,
		Parameters:  m.meta.Parameters,
		ImageSize:   m.meta.ImageSize,
		Classes:     m.meta.Classes,
		ConvLayers:  m.meta.convLayerNames(),
	}
}

// Close releases the ONNX session resources.
func (m *ONNX) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		err := m.session.Destroy()
		m.session = nil
		if err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}
	return ort.DestroyEnvironment()
}

// Ensure ONNX satisfies the serving and Grad-CAM capabilities.
var (
	_ Classifier                       = (*ONNX)(nil)
	_ gradcam.ConvolutionalLayerLister = (*ONNX)(nil)
)
