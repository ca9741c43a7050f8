package server

import (
	"bytes"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"github.com/MeKo-Tech/stereorect/internal/testutil"
	"github.com/stretchr/testify/require"
)

// newTestServer returns a server with default rectification settings.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(Config{
		CORSOrigin:    "*",
		MaxUploadMB:   10,
		TimeoutSec:    10,
		RectifyConfig: rectify.DefaultConfig(),
	})
	require.NoError(t, err)
	return s
}

// testScene is a verged rig with 30 matched spots.
func testScene() testutil.StereoScene {
	return testutil.NewStereoScene(testutil.VergedRig(320, 240), 30, 7)
}

func sceneYAML(t *testing.T, s testutil.StereoScene) []byte {
	t.Helper()
	data, err := s.GeometryYAML()
	require.NoError(t, err)
	return data
}

// encodeImageToPNG encodes an image to PNG bytes.
func encodeImageToPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// createMultipartPairRequest builds a POST /rectify/images request. Nil
// entries in files are skipped.
func createMultipartPairRequest(t *testing.T, files map[string][]byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for field, data := range files {
		if data == nil {
			continue
		}
		part, err := writer.CreateFormFile(field, field+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/rectify/images", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
