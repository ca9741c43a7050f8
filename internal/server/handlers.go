package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MeKo-Tech/stereorect/internal/distort"
	"github.com/MeKo-Tech/stereorect/internal/epipolar"
	"github.com/MeKo-Tech/stereorect/internal/geometry"
	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"github.com/MeKo-Tech/stereorect/internal/utils"
	"github.com/MeKo-Tech/stereorect/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// transformsHandler computes the rectifying pair for a JSON or YAML
// geometry document.
func (s *Server) transformsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("transforms", "error").Inc()
		s.writeBodyError(w, err)
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	doc, err := geometry.Parse(data)
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("transforms", "error").Inc()
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	rect, err := s.rectifierForRequest(r.URL.Query())
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("transforms", "error").Inc()
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	tf, err := computeTransforms(rect, doc)
	rectifyProcessingDuration.WithLabelValues("transforms").Observe(time.Since(start).Seconds())
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("transforms", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Rectification failed: %v", err), statusForError(err))
		return
	}
	rectifyRequestsTotal.WithLabelValues("transforms", "success").Inc()
	rowResidual.Observe(tf.Diagnostics.RowResidual)

	s.writeJSON(w, http.StatusOK, TransformsResponse{Success: true, Transforms: newTransformsResult(tf)})
}

// RequestConfig holds per-request overrides of the server's rectification
// settings.
type RequestConfig struct {
	View          string
	LeftHanded    *bool
	OutputWidth   int
	OutputHeight  int
	Interpolation string
	Border        string
}

// parseRequestConfig reads overrides from query or form values.
func parseRequestConfig(values url.Values) (*RequestConfig, error) {
	rc := &RequestConfig{
		View:          values.Get("view"),
		Interpolation: values.Get("interp"),
		Border:        values.Get("border"),
	}
	if v := values.Get("left_handed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid left_handed %q", v)
		}
		rc.LeftHanded = &b
	}
	var err error
	if rc.OutputWidth, err = optionalInt(values, "width"); err != nil {
		return nil, err
	}
	if rc.OutputHeight, err = optionalInt(values, "height"); err != nil {
		return nil, err
	}
	return rc, nil
}

// maxOutputDim bounds a single requested output dimension. The area is
// bounded separately by rectify.Config.MaxOutputPixels.
const maxOutputDim = 1 << 15

func optionalInt(values url.Values, key string) (int, error) {
	v := values.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	if n > maxOutputDim {
		return 0, fmt.Errorf("%s %d exceeds %d", key, n, maxOutputDim)
	}
	return n, nil
}

func (rc *RequestConfig) isEmpty() bool {
	return rc.View == "" && rc.LeftHanded == nil && rc.OutputWidth == 0 && rc.OutputHeight == 0 &&
		rc.Interpolation == "" && rc.Border == ""
}

// apply returns base with the overrides set.
func (rc *RequestConfig) apply(base rectify.Config) (rectify.Config, error) {
	cfg := base
	if rc.View != "" {
		view, err := epipolar.ParseViewMode(rc.View)
		if err != nil {
			return cfg, err
		}
		cfg.View = view
	}
	if rc.LeftHanded != nil {
		cfg.LeftHanded = *rc.LeftHanded
	}
	if rc.OutputWidth > 0 {
		cfg.OutputWidth = rc.OutputWidth
	}
	if rc.OutputHeight > 0 {
		cfg.OutputHeight = rc.OutputHeight
	}
	if rc.Interpolation != "" {
		interp, err := distort.ParseInterpolation(rc.Interpolation)
		if err != nil {
			return cfg, err
		}
		cfg.Interpolation = interp
	}
	if rc.Border != "" {
		border, err := distort.ParseBorder(rc.Border)
		if err != nil {
			return cfg, err
		}
		cfg.Border = border
	}
	return cfg, nil
}

// rectifierForRequest returns the server's rectifier, or a new one when the
// request overrides any setting.
func (s *Server) rectifierForRequest(values url.Values) (*rectify.Rectifier, error) {
	rc, err := parseRequestConfig(values)
	if err != nil {
		return nil, err
	}
	if rc.isEmpty() {
		return s.rectifier, nil
	}
	cfg, err := rc.apply(s.rectifier.Config())
	if err != nil {
		return nil, err
	}
	return rectify.New(cfg)
}

func computeTransforms(rect *rectify.Rectifier, doc *geometry.Document) (*rectify.Transforms, error) {
	f, err := doc.F()
	if err != nil {
		return nil, err
	}
	return rect.Compute(f, doc.AssociatedPairs(), doc.Width, doc.Height)
}

// statusForError maps rectification failures to HTTP status codes.
func statusForError(err error) int {
	var ipe *utils.ImageProcessingError
	switch {
	case errors.Is(err, epipolar.ErrDegenerateGeometry),
		errors.Is(err, epipolar.ErrInvalidCorrespondence),
		errors.Is(err, homography.ErrSingularMatrix),
		errors.Is(err, homography.ErrPointAtInfinity),
		errors.Is(err, distort.ErrSingularTransform):
		return http.StatusUnprocessableEntity
	case errors.Is(err, geometry.ErrInvalidDocument),
		errors.Is(err, rectify.ErrSizeMismatch),
		errors.Is(err, rectify.ErrNilImage),
		errors.Is(err, rectify.ErrOutputTooLarge),
		errors.As(err, &ipe):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeBodyError reports a failed body read, distinguishing oversized uploads.
func (s *Server) writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeErrorResponse(w, "Request too large", http.StatusRequestEntityTooLarge)
		return
	}
	s.writeErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
}

// writeJSON writes v with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, TransformsResponse{Success: false, Error: message})
}
