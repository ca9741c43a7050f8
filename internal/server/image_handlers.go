package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/stereorect/internal/geometry"
	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"github.com/MeKo-Tech/stereorect/internal/utils"
)

// imagesHandler rectifies one uploaded image pair.
func (s *Server) imagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	left, right, doc, err := s.parseImagesRequest(w, r)
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("images", "error").Inc()
		return // error already written
	}

	rect, err := s.rectifierForRequest(r.Form)
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("images", "error").Inc()
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.timeoutSec)*time.Second)
	defer cancel()

	start := time.Now()
	tf, err := computeTransforms(rect, doc)
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("images", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Rectification failed: %v", err), statusForError(err))
		return
	}
	stream, err := rect.NewStream(tf)
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("images", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Rectification failed: %v", err), statusForError(err))
		return
	}
	res, err := stream.Rectify(ctx, left, right)
	duration := time.Since(start)
	if err != nil {
		rectifyRequestsTotal.WithLabelValues("images", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Rectification failed: %v", err), statusForError(err))
		return
	}

	leftPNG, err := utils.EncodePNG(res.Left)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rightPNG, err := utils.EncodePNG(res.Right)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rectifyRequestsTotal.WithLabelValues("images", "success").Inc()
	rectifyProcessingDuration.WithLabelValues("images").Observe(duration.Seconds())
	rowResidual.Observe(tf.Diagnostics.RowResidual)

	s.writeJSON(w, http.StatusOK, ImagesResponse{
		Success:      true,
		Transforms:   newTransformsResult(tf),
		Left:         leftPNG,
		Right:        rightPNG,
		ProcessingMs: duration.Milliseconds(),
	})
}

// parseImagesRequest reads the left and right images and the geometry
// document from a multipart form. The geometry may be a file or a plain
// form value.
func (s *Server) parseImagesRequest(w http.ResponseWriter, r *http.Request) (image.Image, image.Image, *geometry.Document, error) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return nil, nil, nil, err
	}

	left, err := s.readFormImage(w, r, "left")
	if err != nil {
		return nil, nil, nil, err
	}
	right, err := s.readFormImage(w, r, "right")
	if err != nil {
		return nil, nil, nil, err
	}

	geomData, err := readFormBytes(r, "geometry")
	if err != nil {
		s.writeErrorResponse(w, "No geometry provided", http.StatusBadRequest)
		return nil, nil, nil, err
	}
	doc, err := geometry.Parse(geomData)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return nil, nil, nil, err
	}

	if err := utils.ValidatePair(left, right); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return nil, nil, nil, err
	}
	// The maps are sized from the document, so it has to describe the
	// uploaded frames before anything is allocated for it.
	if got, want := left.Bounds().Size(), image.Pt(doc.Width, doc.Height); got != want {
		err := fmt.Errorf("%w: images are %v, geometry describes %v", rectify.ErrSizeMismatch, got, want)
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return nil, nil, nil, err
	}
	return left, right, doc, nil
}

// readFormImage decodes the uploaded file stored under field.
func (s *Server) readFormImage(w http.ResponseWriter, r *http.Request, field string) (image.Image, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("No %s image provided", field), http.StatusBadRequest)
		return nil, err
	}
	defer func() { _ = file.Close() }()

	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Failed to read %s image", field), http.StatusInternalServerError)
		return nil, err
	}
	img, _, err := utils.DecodeImage(bytes.NewReader(data))
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Invalid %s image format", field), http.StatusBadRequest)
		return nil, err
	}
	return img, nil
}

// readFormBytes returns the file or value stored under field.
func readFormBytes(r *http.Request, field string) ([]byte, error) {
	if file, _, err := r.FormFile(field); err == nil {
		defer func() { _ = file.Close() }()
		return io.ReadAll(file)
	}
	if v := r.FormValue(field); v != "" {
		return []byte(v), nil
	}
	return nil, fmt.Errorf("missing form field %q", field)
}
