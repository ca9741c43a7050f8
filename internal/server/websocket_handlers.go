package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/MeKo-Tech/stereorect/internal/geometry"
	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"github.com/MeKo-Tech/stereorect/internal/utils"
	"github.com/gorilla/websocket"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message types of the streaming protocol.
const (
	wsTypeSetup = "setup"
	wsTypeFrame = "frame"
	wsTypeError = "error"
)

// WebSocketRequest is a client message. A setup message carries the
// geometry document and optional overrides (the query keys of
// /rectify/transforms); frame messages carry PNG, JPEG or BMP bytes.
type WebSocketRequest struct {
	Type     string            `json:"type"`
	Geometry json.RawMessage   `json:"geometry,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
	Frame    int               `json:"frame,omitempty"`
	Left     []byte            `json:"left,omitempty"`
	Right    []byte            `json:"right,omitempty"`
}

// WebSocketResponse is a server message.
type WebSocketResponse struct {
	Type         string            `json:"type"`
	Status       string            `json:"status"` // "ready", "completed", "error"
	Frame        int               `json:"frame,omitempty"`
	Transforms   *TransformsResult `json:"transforms,omitempty"`
	Left         []byte            `json:"left,omitempty"`
	Right        []byte            `json:"right,omitempty"`
	ProcessingMs int64             `json:"processing_ms,omitempty"`
	Error        string            `json:"error,omitempty"`
	ErrorType    string            `json:"error_type,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// streamSession is the per-connection state: the stream built by the last
// setup message.
type streamSession struct {
	stream *rectify.Stream
}

// streamWebSocketHandler handles WebSocket connections for frame streaming.
func (s *Server) streamWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	s.handleWebSocketConnection(r.Context(), conn)
}

// handleWebSocketConnection processes messages from a WebSocket connection.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	// Oversized messages close the connection with CloseMessageTooBig.
	conn.SetReadLimit(s.maxUploadMB * 1024 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	session := &streamSession{}
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, session, data)
		}
	}
}

// handleWebSocketMessage dispatches one client message.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, session *streamSession, data []byte) {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	switch req.Type {
	case wsTypeSetup:
		s.processWebSocketSetup(conn, session, req)
	case wsTypeFrame:
		s.processWebSocketFrame(ctx, conn, session, req)
	default:
		s.sendWebSocketError(conn, "invalid_request", "Unsupported request type: "+req.Type)
	}
}

// processWebSocketSetup computes the transforms and caches a stream for the
// frames that follow.
func (s *Server) processWebSocketSetup(conn WebSocketConnWriter, session *streamSession, req WebSocketRequest) {
	if len(req.Geometry) == 0 {
		s.sendWebSocketError(conn, "invalid_request", "No geometry provided")
		return
	}
	doc, err := parseGeometryField(req.Geometry)
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("websocket_setup", "error").Inc()
		s.sendWebSocketError(conn, "invalid_request", err.Error())
		return
	}

	values := url.Values{}
	for k, v := range req.Options {
		values.Set(k, v)
	}
	rect, err := s.rectifierForRequest(values)
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("websocket_setup", "error").Inc()
		s.sendWebSocketError(conn, "invalid_request", err.Error())
		return
	}

	start := time.Now()
	tf, err := computeTransforms(rect, doc)
	if err == nil {
		session.stream, err = rect.NewStream(tf)
	}
	if err != nil {
		session.stream = nil
		rectifyRequestsTotal.WithLabelValues("websocket_setup", "error").Inc()
		s.sendWebSocketError(conn, "processing_error", fmt.Sprintf("Rectification failed: %v", err))
		return
	}
	duration := time.Since(start)
	rectifyRequestsTotal.WithLabelValues("websocket_setup", "success").Inc()
	rectifyProcessingDuration.WithLabelValues("websocket_setup").Observe(duration.Seconds())

	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:         wsTypeSetup,
		Status:       "ready",
		Transforms:   newTransformsResult(tf),
		ProcessingMs: duration.Milliseconds(),
	})
}

// processWebSocketFrame rectifies one frame pair with the cached stream.
func (s *Server) processWebSocketFrame(ctx context.Context, conn WebSocketConnWriter, session *streamSession, req WebSocketRequest) {
	if session.stream == nil {
		s.sendWebSocketError(conn, "not_ready", "Send a setup message before frames")
		return
	}
	if len(req.Left) == 0 || len(req.Right) == 0 {
		s.sendWebSocketError(conn, "invalid_request", "Frame needs left and right image data")
		return
	}

	left, err := decodeFrameImage(req.Left)
	if err != nil {
		s.sendWebSocketError(conn, "invalid_request", fmt.Sprintf("Failed to decode left image: %v", err))
		return
	}
	right, err := decodeFrameImage(req.Right)
	if err != nil {
		s.sendWebSocketError(conn, "invalid_request", fmt.Sprintf("Failed to decode right image: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
	defer cancel()

	res, err := session.stream.Rectify(ctx, left, right)
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("websocket_frame", "error").Inc()
		s.sendWebSocketError(conn, "processing_error", fmt.Sprintf("frame %d: %v", req.Frame, err))
		return
	}
	leftPNG, err := utils.EncodePNG(res.Left)
	if err != nil {
		s.sendWebSocketError(conn, "processing_error", err.Error())
		return
	}
	rightPNG, err := utils.EncodePNG(res.Right)
	if err != nil {
		s.sendWebSocketError(conn, "processing_error", err.Error())
		return
	}

	rectifyRequestsTotal.WithLabelValues("websocket_frame", "success").Inc()
	rectifyProcessingDuration.WithLabelValues("websocket_frame").Observe(res.Duration.Seconds())
	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:         wsTypeFrame,
		Status:       "completed",
		Frame:        req.Frame,
		Left:         leftPNG,
		Right:        rightPNG,
		ProcessingMs: res.Duration.Milliseconds(),
	})
}

// parseGeometryField accepts the document as a JSON object or as a string
// holding YAML.
func parseGeometryField(raw json.RawMessage) (*geometry.Document, error) {
	data := []byte(raw)
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		data = []byte(text)
	}
	return geometry.Parse(data)
}

func decodeFrameImage(data []byte) (image.Image, error) {
	img, _, err := utils.DecodeImage(bytes.NewReader(data))
	return img, err
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      wsTypeError,
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
	})
}
