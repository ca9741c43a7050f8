package server

import (
	"net/http"

	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	rectifier   *rectify.Rectifier
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host          string
	Port          int
	CORSOrigin    string
	MaxUploadMB   int64
	TimeoutSec    int
	RectifyConfig rectify.Config

	// Per-client limits; zero disables a limit.
	RateLimitPerMinute int
	DailyUploadMB      int64
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// DiagnosticsResult reports the solver diagnostics.
type DiagnosticsResult struct {
	LeftEpipole        [3]float64 `json:"left_epipole"`
	RightEpipole       [3]float64 `json:"right_epipole"`
	SingularValues     [3]float64 `json:"singular_values"`
	LeftEpipoleInside  bool       `json:"left_epipole_inside"`
	RightEpipoleInside bool       `json:"right_epipole_inside"`
	EpipoleAtInfinity  bool       `json:"epipole_at_infinity"`
	RowResidual        float64    `json:"row_residual"`
}

// TransformsResult is the JSON form of a fitted rectifying pair.
type TransformsResult struct {
	Rect1        []float64         `json:"rect1"`
	Rect2        []float64         `json:"rect2"`
	Raw1         []float64         `json:"raw1"`
	Raw2         []float64         `json:"raw2"`
	View         string            `json:"view"`
	LeftHanded   bool              `json:"left_handed"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	OutputWidth  int               `json:"output_width"`
	OutputHeight int               `json:"output_height"`
	Diagnostics  DiagnosticsResult `json:"diagnostics"`
}

// TransformsResponse is returned by POST /rectify/transforms.
type TransformsResponse struct {
	Success    bool              `json:"success"`
	Transforms *TransformsResult `json:"transforms,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// ImagesResponse is returned by POST /rectify/images. Images are PNG
// encoded and base64 in JSON.
type ImagesResponse struct {
	Success      bool              `json:"success"`
	Transforms   *TransformsResult `json:"transforms,omitempty"`
	Left         []byte            `json:"left,omitempty"`
	Right        []byte            `json:"right,omitempty"`
	ProcessingMs int64             `json:"processing_ms"`
	Error        string            `json:"error,omitempty"`
}

// NewServer creates a new rectification server instance.
func NewServer(config Config) (*Server, error) {
	rect, err := rectify.New(config.RectifyConfig)
	if err != nil {
		return nil, err
	}
	return newServerWithRectifier(config, rect), nil
}

func newServerWithRectifier(config Config, rect *rectify.Rectifier) *Server {
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 50
	}
	timeout := config.TimeoutSec
	if timeout <= 0 {
		timeout = 30
	}
	s := &Server{
		rectifier:   rect,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: maxUpload,
		timeoutSec:  timeout,
	}
	if config.RateLimitPerMinute > 0 || config.DailyUploadMB > 0 {
		s.rateLimiter = NewRateLimiter(config.RateLimitPerMinute, config.DailyUploadMB*1024*1024)
	}
	return s
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/rectify/transforms", s.corsMiddleware(s.rateLimitMiddleware(s.transformsHandler)))
	mux.HandleFunc("/rectify/images", s.corsMiddleware(s.rateLimitMiddleware(s.imagesHandler)))
	// No CORS wrapper here: its response recorder cannot be hijacked.
	mux.HandleFunc("/ws/stream", s.rateLimitMiddleware(s.streamWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

func newTransformsResult(tf *rectify.Transforms) *TransformsResult {
	d := tf.Diagnostics
	return &TransformsResult{
		Rect1:        tf.Rect1.Slice(),
		Rect2:        tf.Rect2.Slice(),
		Raw1:         tf.Raw1.Slice(),
		Raw2:         tf.Raw2.Slice(),
		View:         tf.View.String(),
		LeftHanded:   tf.LeftHanded,
		Width:        tf.SourceWidth,
		Height:       tf.SourceHeight,
		OutputWidth:  tf.OutputWidth,
		OutputHeight: tf.OutputHeight,
		Diagnostics: DiagnosticsResult{
			LeftEpipole:        vec(d.Epipoles.Left),
			RightEpipole:       vec(d.Epipoles.Right),
			SingularValues:     d.SingularValues,
			LeftEpipoleInside:  d.LeftEpipoleInside,
			RightEpipoleInside: d.RightEpipoleInside,
			EpipoleAtInfinity:  d.EpipoleAtInfinity,
			RowResidual:        d.RowResidual,
		},
	}
}

func vec(v r3.Vector) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }
