package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vaidehibh/thyroscan/internal/gradcam"
	"github.com/vaidehibh/thyroscan/internal/middleware"
)

// httpStatus maps engine and pipeline errors onto HTTP status codes and
// stable error kinds the client can branch on.
func httpStatus(err error) (int, string) {
	var (
		invalid  *gradcam.InvalidInputError
		notFound *gradcam.LayerNotFoundError
		noConv   *gradcam.NoConvolutionalLayerError
		gradErr  *gradcam.GradientComputationError
		shapeErr *gradcam.ShapeMismatchError
		numErr   *gradcam.NumericalInstabilityError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "invalid_input"
	case errors.As(err, &notFound):
		return http.StatusBadRequest, "layer_not_found"
	case errors.As(err, &noConv):
		return http.StatusBadRequest, "no_convolutional_layer"
	case errors.As(err, &gradErr):
		return http.StatusInternalServerError, "gradient_computation_failed"
	case errors.As(err, &shapeErr):
		return http.StatusInternalServerError, "shape_mismatch"
	case errors.As(err, &numErr):
		return http.StatusInternalServerError, "numerical_instability"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError sends the uniform JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:     kind,
		Message:   message,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now().Format(timeFormat),
	})
}

// writeEngineError maps err through httpStatus and sends it.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := httpStatus(err)
	writeError(w, r, status, kind, err.Error())
}

// badRequest sends a 400 with the bad_request kind.
func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusBadRequest, "bad_request", message)
}

// modelUnavailable sends the 503 used when no model is loaded.
func modelUnavailable(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusServiceUnavailable, "model_unavailable", "model not loaded")
}
