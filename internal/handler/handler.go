// Package handler implements the HTTP API: prediction, Grad-CAM
// visualization, combined analysis, reports, and history.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vaidehibh/thyroscan/internal/cache"
	"github.com/vaidehibh/thyroscan/internal/classify"
	"github.com/vaidehibh/thyroscan/internal/gradcam"
	"github.com/vaidehibh/thyroscan/internal/imageproc"
	"github.com/vaidehibh/thyroscan/internal/metrics"
	"github.com/vaidehibh/thyroscan/internal/middleware"
	"github.com/vaidehibh/thyroscan/internal/model"
	"github.com/vaidehibh/thyroscan/internal/report"
	"github.com/vaidehibh/thyroscan/internal/store"
	"github.com/vaidehibh/thyroscan/internal/tensor"
)

// Version is reported by /health.
const Version = "2.0.0"

const timeFormat = "2006-01-02 15:04:05"

// historyLimit caps the /history page size.
const historyLimit = 50

// Options carries the handler's collaborators. Cache and Store may be nil.
type Options struct {
	Cache          *cache.Tiered
	Store          *store.Store
	Log            *zap.Logger
	ImageSize      int
	MaxUploadBytes int
}

// Handler serves the analysis API.
type Handler struct {
	model  model.Classifier
	engine *gradcam.Engine
	cache  *cache.Tiered
	store  *store.Store
	log    *zap.Logger
	tracer trace.Tracer

	imageSize      int
	maxUploadBytes int
}

// New creates a Handler around a loaded model and a Grad-CAM engine.
func New(m model.Classifier, engine *gradcam.Engine, opts Options) *Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	imageSize := opts.ImageSize
	if imageSize <= 0 {
		imageSize = 224
	}
	return &Handler{
		model:          m,
		engine:         engine,
		cache:          opts.Cache,
		store:          opts.Store,
		log:            log,
		tracer:         otel.Tracer("thyroscan/handler"),
		imageSize:      imageSize,
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

// Register attaches all routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /model-info", h.ModelInfo)
	mux.HandleFunc("POST /predict", h.Predict)
	mux.HandleFunc("POST /gradcam", h.GradCAM)
	mux.HandleFunc("POST /analyze", h.Analyze)
	mux.HandleFunc("POST /report/pdf", h.ReportPDF)
	mux.HandleFunc("POST /report/json", h.ReportJSON)
	mux.HandleFunc("GET /history", h.History)
}

// Health reports API and model status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.model == nil {
		status = "unhealthy"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      status,
		ModelLoaded: h.model != nil,
		Timestamp:   time.Now().Format(timeFormat),
		Version:     Version,
	})
}

// ModelInfo describes the loaded model, including the convolutional layers
// available for Grad-CAM.
func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	if h.model == nil {
		modelUnavailable(w, r)
		return
	}
	writeJSON(w, http.StatusOK, ModelInfoResponse{Info: h.model.Info()})
}

// Predict classifies an uploaded image.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if h.model == nil {
		modelUnavailable(w, r)
		return
	}

	var req ImageRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	_, input, err := h.preprocess(req.Image)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	score, err := h.predict(r.Context(), input)
	if err != nil {
		h.log.Error("prediction failed", zap.Error(err), zap.String("request_id", middleware.GetRequestID(r.Context())))
		writeEngineError(w, r, err)
		return
	}

	c := classify.FromScore(score)
	h.log.Info("prediction completed",
		zap.String("filename", req.Filename),
		zap.Float32("score", score),
		zap.String("label", c.Label),
		zap.String("request_id", middleware.GetRequestID(r.Context())))

	writeJSON(w, http.StatusOK, PredictionResponse{
		Success:        true,
		Timestamp:      time.Now().Format(timeFormat),
		Filename:       req.Filename,
		Prediction:     prediction(c),
		RiskAssessment: c.Risk,
		Recommendation: c.Recommendation,
	})
}

// GradCAM generates the heatmap visualization for an uploaded image.
func (h *Handler) GradCAM(w http.ResponseWriter, r *http.Request) {
	if h.model == nil {
		modelUnavailable(w, r)
		return
	}

	var req GradCAMRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	original, input, err := h.preprocess(req.Image)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	classIndex := gradcam.AutoClass
	if req.ClassIndex != nil {
		classIndex = *req.ClassIndex
	}

	hm, images, err := h.computeGradCAM(r.Context(), original, input, req.LayerName, classIndex)
	if err != nil {
		h.log.Error("gradcam failed", zap.Error(err), zap.String("request_id", middleware.GetRequestID(r.Context())))
		writeEngineError(w, r, err)
		return
	}

	c := classify.FromScore(hm.Score)
	writeJSON(w, http.StatusOK, GradCAMResponse{
		Success:    true,
		Timestamp:  time.Now().Format(timeFormat),
		Filename:   req.Filename,
		LayerUsed:  hm.Layer,
		Degenerate: hm.Degenerate,
		Images:     images,
		Prediction: prediction(c),
	})
}

// Analyze runs prediction plus optional Grad-CAM in one call. A Grad-CAM
// failure degrades to prediction-only rather than failing the request.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if h.model == nil {
		modelUnavailable(w, r)
		return
	}

	var req AnalyzeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	cacheKey := fmt.Sprintf("%s:g%t", cache.Key(req.Image), req.wantGradCAM())
	if doc, ok := h.cache.Get(r.Context(), cacheKey); ok {
		h.log.Debug("analysis served from cache", zap.String("request_id", middleware.GetRequestID(r.Context())))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(doc))
		return
	}

	resp, status, err := h.analyze(r.Context(), &req)
	if err != nil {
		if status == http.StatusBadRequest {
			badRequest(w, r, err.Error())
			return
		}
		writeEngineError(w, r, err)
		return
	}

	if doc, err := json.Marshal(resp); err == nil {
		h.cache.Set(r.Context(), cacheKey, string(doc))
	}
	writeJSON(w, http.StatusOK, resp)
}

// analyze is the shared implementation behind /analyze and /report/*.
func (h *Handler) analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, int, error) {
	start := time.Now()

	original, input, err := h.preprocess(req.Image)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	score, err := h.predict(ctx, input)
	if err != nil {
		return nil, 0, err
	}
	c := classify.FromScore(score)

	resp := &AnalyzeResponse{
		Success:        true,
		Timestamp:      time.Now().Format(timeFormat),
		Filename:       req.Filename,
		Prediction:     prediction(c),
		RiskAssessment: c.Risk,
		Recommendation: c.Recommendation,
	}

	if req.wantGradCAM() {
		hm, images, err := h.computeGradCAM(ctx, original, input, "", gradcam.AutoClass)
		if err != nil {
			h.log.Warn("gradcam degraded to prediction-only",
				zap.Error(err),
				zap.String("request_id", middleware.GetRequestID(ctx)))
		} else {
			resp.GradCAM = &GradCAMData{
				LayerUsed:  hm.Layer,
				Degenerate: hm.Degenerate,
				Images:     images,
			}
		}
	}

	h.record(ctx, req.Filename, c, resp, time.Since(start))
	return resp, http.StatusOK, nil
}

// ReportPDF streams a downloadable PDF report for the analysis.
func (h *Handler) ReportPDF(w http.ResponseWriter, r *http.Request) {
	if h.model == nil {
		modelUnavailable(w, r)
		return
	}

	var req AnalyzeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, status, err := h.analyze(r.Context(), &req)
	if err != nil {
		if status == http.StatusBadRequest {
			badRequest(w, r, err.Error())
			return
		}
		writeEngineError(w, r, err)
		return
	}

	data := buildReportData(resp, middleware.GetRequestID(r.Context()))
	filename := fmt.Sprintf("thyroid_analysis_%s.pdf", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := report.PDF(w, data); err != nil {
		// Headers are gone at this point; log and give up on the body.
		h.log.Error("pdf rendering failed", zap.Error(err))
	}
}

// ReportJSON streams the analysis as a downloadable JSON document.
func (h *Handler) ReportJSON(w http.ResponseWriter, r *http.Request) {
	if h.model == nil {
		modelUnavailable(w, r)
		return
	}

	var req AnalyzeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, status, err := h.analyze(r.Context(), &req)
	if err != nil {
		if status == http.StatusBadRequest {
			badRequest(w, r, err.Error())
			return
		}
		writeEngineError(w, r, err)
		return
	}

	filename := fmt.Sprintf("thyroid_analysis_%s.json", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(resp)
}

// History lists recent analyses.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, r, http.StatusNotImplemented, "history_disabled", "analysis history is not configured")
		return
	}
	records, err := h.store.Recent(r.Context(), historyLimit)
	if err != nil {
		h.log.Error("history query failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load history")
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// predict runs the forward pass with latency recording and a trace span.
func (h *Handler) predict(ctx context.Context, input *tensor.Tensor) (float32, error) {
	ctx, span := h.tracer.Start(ctx, "model.predict")
	defer span.End()

	start := time.Now()
	score, err := h.model.Predict(ctx, input)
	metrics.RecordInferenceLatency(time.Since(start).Seconds())
	return score, err
}

// computeGradCAM resolves the target layer, computes the heatmap, and
// renders the display images.
func (h *Handler) computeGradCAM(ctx context.Context, original image.Image, input *tensor.Tensor, layerName string, classIndex int) (*gradcam.Heatmap, *imageproc.RenderedImages, error) {
	if layerName == "" {
		name, err := gradcam.LastConvolutionalLayer(h.model)
		if err != nil {
			return nil, nil, err
		}
		layerName = name
	}

	ctx, span := h.tracer.Start(ctx, "gradcam.compute",
		trace.WithAttributes(attribute.String("layer", layerName)))
	defer span.End()

	start := time.Now()
	hm, err := h.engine.ComputeHeatmap(ctx, h.model, input, layerName, classIndex)
	metrics.RecordGradCAMLatency(time.Since(start).Seconds())
	if err != nil {
		return nil, nil, err
	}
	if hm.Degenerate {
		metrics.RecordDegenerateHeatmap()
	}

	images, err := imageproc.Render(original, hm, h.imageSize)
	if err != nil {
		return nil, nil, err
	}
	return hm, images, nil
}

// preprocess decodes the base64 payload and builds the model input tensor.
func (h *Handler) preprocess(payload string) (image.Image, *tensor.Tensor, error) {
	img, err := imageproc.DecodeBase64Image(payload, h.maxUploadBytes)
	if err != nil {
		return nil, nil, err
	}
	input, err := imageproc.ToTensor(img, h.imageSize)
	if err != nil {
		return nil, nil, err
	}
	return img, input, nil
}

// record persists the analysis to the history store; failures are logged,
// never surfaced.
func (h *Handler) record(ctx context.Context, filename string, c classify.Result, resp *AnalyzeResponse, took time.Duration) {
	if h.store == nil {
		return
	}
	rec := &store.Record{
		RequestID: middleware.GetRequestID(ctx),
		Filename:  filename,
		Class:     c.Class,
		Label:     c.Label,
		Score:     float64(c.Score),
		Risk:      c.Risk,
		Duration:  float64(took.Microseconds()) / 1000.0,
	}
	if resp.GradCAM != nil {
		rec.Layer = resp.GradCAM.LayerUsed
	}
	if err := h.store.Insert(ctx, rec); err != nil {
		h.log.Warn("failed to record analysis", zap.Error(err))
	}
}

// decodeBody parses the JSON request body with the upload cap applied.
// It writes the error response itself and returns false on failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if h.maxUploadBytes > 0 {
		// Base64 expands the payload by 4/3; leave room for the JSON
		// envelope as well.
		r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxUploadBytes)*2)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, r, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func prediction(c classify.Result) Prediction {
	return Prediction{
		Class:                c.Class,
		Label:                c.Label,
		ConfidenceScore:      c.Score,
		ConfidencePercentage: c.ConfidencePct,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// buildReportData adapts an analyze response for the report package.
func buildReportData(resp *AnalyzeResponse, requestID string) *report.Data {
	d := &report.Data{
		Timestamp: time.Now(),
		Filename:  resp.Filename,
		RequestID: requestID,
		Classification: classify.Result{
			Class:          resp.Prediction.Class,
			Label:          resp.Prediction.Label,
			Score:          resp.Prediction.ConfidenceScore,
			ConfidencePct:  resp.Prediction.ConfidencePercentage,
			Risk:           resp.RiskAssessment,
			Recommendation: resp.Recommendation,
		},
	}
	if resp.GradCAM != nil {
		d.LayerUsed = resp.GradCAM.LayerUsed
		if resp.GradCAM.Images != nil {
			if raw, err := base64.StdEncoding.DecodeString(resp.GradCAM.Images.Overlay); err == nil {
				d.OverlayPNG = raw
			}
		}
	}
	return d
}
