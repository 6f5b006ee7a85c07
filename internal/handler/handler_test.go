package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/vaidehibh/thyroscan/internal/classify"
	"github.com/vaidehibh/thyroscan/internal/gradcam"
	"github.com/vaidehibh/thyroscan/internal/model"
	"github.com/vaidehibh/thyroscan/internal/store"
	"github.com/vaidehibh/thyroscan/internal/tensor"
)

func newTestHandler(t *testing.T, m model.Classifier, st *store.Store) *http.ServeMux {
	t.Helper()
	h := New(m, gradcam.NewEngine(zap.NewNop()), Options{
		Store:          st,
		Log:            zap.NewNop(),
		ImageSize:      32,
		MaxUploadBytes: 4 << 20,
	})
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

// testImagePayload returns a small PNG as base64.
func testImagePayload(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	rec := doJSON(t, mux, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	decodeResponse(t, rec, &resp)
	if resp.Status != "healthy" || !resp.ModelLoaded {
		t.Errorf("got status=%q model_loaded=%v, want healthy/true", resp.Status, resp.ModelLoaded)
	}
	if resp.Version != Version {
		t.Errorf("version = %q, want %q", resp.Version, Version)
	}
}

func TestHealthWithoutModel(t *testing.T) {
	mux := newTestHandler(t, nil, nil)
	rec := doJSON(t, mux, http.MethodGet, "/health", nil)
	var resp HealthResponse
	decodeResponse(t, rec, &resp)
	if resp.Status != "unhealthy" || resp.ModelLoaded {
		t.Errorf("got status=%q model_loaded=%v, want unhealthy/false", resp.Status, resp.ModelLoaded)
	}
}

func TestModelInfo(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	rec := doJSON(t, mux, http.MethodGet, "/model-info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ModelInfoResponse
	decodeResponse(t, rec, &resp)
	if len(resp.ConvLayers) == 0 {
		t.Error("expected conv layers in model info")
	}
}

func TestModelInfoUnavailable(t *testing.T) {
	mux := newTestHandler(t, nil, nil)
	rec := doJSON(t, mux, http.MethodGet, "/model-info", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp ErrorResponse
	decodeResponse(t, rec, &resp)
	if resp.Error != "model_unavailable" {
		t.Errorf("error kind = %q, want model_unavailable", resp.Error)
	}
}

func TestPredict(t *testing.T) {
	m := model.NewMock()
	m.Score = 0.27
	mux := newTestHandler(t, m, nil)

	rec := doJSON(t, mux, http.MethodPost, "/predict", ImageRequest{
		Image:    testImagePayload(t),
		Filename: "nodule.png",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp PredictionResponse
	decodeResponse(t, rec, &resp)
	if !resp.Success {
		t.Error("success = false")
	}
	if resp.Prediction.Label != classify.LabelBenign {
		t.Errorf("label = %q, want %q", resp.Prediction.Label, classify.LabelBenign)
	}
	if got, want := resp.Prediction.ConfidencePercentage, float32(73.0); got < want-0.01 || got > want+0.01 {
		t.Errorf("confidence = %v, want ~%v", got, want)
	}
	if resp.Filename != "nodule.png" {
		t.Errorf("filename = %q", resp.Filename)
	}
	if m.CallCount != 1 {
		t.Errorf("model invoked %d times, want 1", m.CallCount)
	}
}

func TestPredictInvalidPayload(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	rec := doJSON(t, mux, http.MethodPost, "/predict", ImageRequest{Image: "!!not-base64!!"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPredictMalformedBody(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPredictModelFailure(t *testing.T) {
	m := model.NewMock()
	m.SetError("session exploded")
	mux := newTestHandler(t, m, nil)
	rec := doJSON(t, mux, http.MethodPost, "/predict", ImageRequest{Image: testImagePayload(t)})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestGradCAM(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	rec := doJSON(t, mux, http.MethodPost, "/gradcam", GradCAMRequest{Image: testImagePayload(t)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp GradCAMResponse
	decodeResponse(t, rec, &resp)
	if resp.LayerUsed != "depthwise_separable_conv_2" {
		t.Errorf("layer_used = %q, want depthwise_separable_conv_2", resp.LayerUsed)
	}
	if resp.Images == nil {
		t.Fatal("images missing from response")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Images.Overlay)
	if err != nil {
		t.Fatalf("overlay is not base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		t.Errorf("overlay is not a PNG: %v", err)
	}
}

func TestGradCAMExplicitLayer(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	rec := doJSON(t, mux, http.MethodPost, "/gradcam", GradCAMRequest{
		Image:     testImagePayload(t),
		LayerName: "conv2d_1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp GradCAMResponse
	decodeResponse(t, rec, &resp)
	if resp.LayerUsed != "conv2d_1" {
		t.Errorf("layer_used = %q, want conv2d_1", resp.LayerUsed)
	}
}

func TestGradCAMUnknownLayer(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	rec := doJSON(t, mux, http.MethodPost, "/gradcam", GradCAMRequest{
		Image:     testImagePayload(t),
		LayerName: "conv_99",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	decodeResponse(t, rec, &resp)
	if resp.Error != "layer_not_found" {
		t.Errorf("error kind = %q, want layer_not_found", resp.Error)
	}
}

func TestAnalyze(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	rec := doJSON(t, mux, http.MethodPost, "/analyze", AnalyzeRequest{Image: testImagePayload(t)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp AnalyzeResponse
	decodeResponse(t, rec, &resp)
	if !resp.Success {
		t.Error("success = false")
	}
	if resp.GradCAM == nil {
		t.Fatal("gradcam block missing, default should include it")
	}
	if resp.GradCAM.Images == nil || resp.GradCAM.Images.Overlay == "" {
		t.Error("gradcam overlay missing")
	}
}

func TestAnalyzeWithoutGradCAM(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	off := false
	rec := doJSON(t, mux, http.MethodPost, "/analyze", AnalyzeRequest{
		Image:          testImagePayload(t),
		IncludeGradCAM: &off,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp AnalyzeResponse
	decodeResponse(t, rec, &resp)
	if resp.GradCAM != nil {
		t.Error("gradcam block present, want omitted")
	}
}

func TestAnalyzeDegradesWhenGradCAMFails(t *testing.T) {
	m := model.NewMock()
	// Gradient channel count disagrees with the activations, which makes
	// the heatmap computation fail while prediction still works.
	grads, err := tensor.New(make([]float32, 7*7*4), 7, 7, 4)
	if err != nil {
		t.Fatalf("building gradients: %v", err)
	}
	m.Gradients = grads
	mux := newTestHandler(t, m, nil)

	rec := doJSON(t, mux, http.MethodPost, "/analyze", AnalyzeRequest{Image: testImagePayload(t)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp AnalyzeResponse
	decodeResponse(t, rec, &resp)
	if !resp.Success {
		t.Error("success = false")
	}
	if resp.GradCAM != nil {
		t.Error("gradcam block present, want degraded to prediction-only")
	}
}

func TestReportPDF(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	rec := doJSON(t, mux, http.MethodPost, "/report/pdf", AnalyzeRequest{Image: testImagePayload(t)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q, want application/pdf", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body does not start with %PDF")
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "thyroid_analysis_") {
		t.Errorf("content disposition = %q", cd)
	}
}

func TestReportJSON(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	rec := doJSON(t, mux, http.MethodPost, "/report/json", AnalyzeRequest{Image: testImagePayload(t)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, ".json") {
		t.Errorf("content disposition = %q", cd)
	}
	var resp AnalyzeResponse
	decodeResponse(t, rec, &resp)
	if !resp.Success {
		t.Error("success = false")
	}
}

func TestHistory(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()
	mux := newTestHandler(t, model.NewMock(), st)

	if rec := doJSON(t, mux, http.MethodPost, "/analyze", AnalyzeRequest{Image: testImagePayload(t), Filename: "scan.png"}); rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d", rec.Code)
	}

	rec := doJSON(t, mux, http.MethodGet, "/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var records []store.Record
	decodeResponse(t, rec, &records)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Filename != "scan.png" || records[0].Label != classify.LabelBenign {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestHistoryDisabled(t *testing.T) {
	mux := newTestHandler(t, model.NewMock(), nil)
	rec := doJSON(t, mux, http.MethodGet, "/history", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}
