package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vaidehibh/thyroscan/internal/tensor"
)

func writeMetadata(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing metadata: %v", err)
	}
	return path
}

const goodMetadata = `{
	"name": "thyroid nodule classifier",
	"input_name": "image",
	"input_shape": [1, 224, 224, 3],
	"output_shape": [1, 1],
	"image_size": 224,
	"parameters": 1284993,
	"classes": {"0": "Benign (Non-Cancerous)", "1": "Malignant (Cancerous)"},
	"probability_output": "probability",
	"layers": [
		{"name": "input"},
		{"name": "conv2d_1", "convolutional": true, "height": 112, "width": 112, "channels": 32,
		 "activation_output": "conv2d_1/activations", "gradient_output": "conv2d_1/gradients"},
		{"name": "bn_1"},
		{"name": "depthwise_separable_conv_1", "convolutional": true, "height": 56, "width": 56, "channels": 64,
		 "activation_output": "depthwise_separable_conv_1/activations", "gradient_output": "depthwise_separable_conv_1/gradients"},
		{"name": "dense_1"}
	]
}`

func TestLoadMetadata(t *testing.T) {
	meta, err := LoadMetadata(writeMetadata(t, goodMetadata))
	if err != nil {
		t.Fatalf("LoadMetadata failed: %v", err)
	}

	if got := meta.layerNames(); len(got) != 5 {
		t.Errorf("layerNames = %v, want 5 entries", got)
	}
	convs := meta.convLayerNames()
	if len(convs) != 2 || convs[1] != "depthwise_separable_conv_1" {
		t.Errorf("convLayerNames = %v", convs)
	}
	if l := meta.layer("conv2d_1"); l == nil || l.Channels != 32 {
		t.Errorf("layer lookup = %+v", l)
	}
	if meta.layer("conv_99") != nil {
		t.Error("layer lookup for absent name should be nil")
	}
}

func TestLoadMetadataRejectsBadShape(t *testing.T) {
	bad := `{
		"name": "m", "input_name": "image", "input_shape": [224, 224, 3],
		"probability_output": "probability",
		"layers": [{"name": "conv2d_1"}]
	}`
	if _, err := LoadMetadata(writeMetadata(t, bad)); err == nil {
		t.Fatal("expected error for rank-3 input_shape")
	}
}

func TestLoadMetadataRejectsUninstrumentedDims(t *testing.T) {
	bad := `{
		"name": "m", "input_name": "image", "input_shape": [1, 224, 224, 3],
		"probability_output": "probability",
		"layers": [{"name": "conv2d_1", "activation_output": "conv2d_1/activations"}]
	}`
	if _, err := LoadMetadata(writeMetadata(t, bad)); err == nil {
		t.Fatal("expected error for instrumented layer without dims")
	}
}

func TestMockForward(t *testing.T) {
	m := NewMock()
	in, err := tensor.NewImage(make([]float32, 224*224*3), 224, 224, 3)
	if err != nil {
		t.Fatalf("building input: %v", err)
	}

	fwd, err := m.Forward(context.Background(), in, "depthwise_separable_conv_2")
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if fwd.Activations.Rank() != 3 {
		t.Errorf("activation rank = %d, want 3", fwd.Activations.Rank())
	}
	if fwd.Gradients == nil {
		t.Error("mock should produce gradients by default")
	}
	if fwd.Score != m.Score {
		t.Errorf("Score = %v, want %v", fwd.Score, m.Score)
	}
	if m.CallCount != 1 {
		t.Errorf("CallCount = %d, want 1", m.CallCount)
	}
}

func TestMockError(t *testing.T) {
	m := NewMock()
	m.SetError("boom")

	in, _ := tensor.NewImage(make([]float32, 224*224*3), 224, 224, 3)
	if _, err := m.Predict(context.Background(), in); err == nil || err.Error() != "boom" {
		t.Fatalf("expected configured error, got %v", err)
	}

	m.ClearError()
	if _, err := m.Predict(context.Background(), in); err != nil {
		t.Fatalf("Predict after ClearError failed: %v", err)
	}
}

func TestRealModel(t *testing.T) {
	// Requires the ONNX shared library plus exported artifacts.
	modelPath := "testdata/thyroid.onnx"
	metaPath := "testdata/thyroid.json"
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		t.Skip("skipping: testdata/thyroid.onnx not found")
	}

	m, err := Open(modelPath, metaPath)
	if err != nil {
		t.Skipf("skipping: %v", err)
	}
	defer m.Close()

	in, _ := tensor.NewImage(make([]float32, 224*224*3), 224, 224, 3)
	score, err := m.Predict(context.Background(), in)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if score < 0 || score > 1 {
		t.Errorf("score %v outside [0,1]", score)
	}
}
