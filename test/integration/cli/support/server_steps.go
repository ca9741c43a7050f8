package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"github.com/MeKo-Tech/stereorect/internal/server"
	"github.com/MeKo-Tech/stereorect/internal/utils"
	"github.com/cucumber/godog"
)

// HTTPServerWrapper wraps an httptest.Server running the real handlers.
type HTTPServerWrapper struct {
	Server *httptest.Server
	Config server.Config
}

const httpTimeout = 30 * time.Second

// theServerIsRunning starts the rectification server on a random port.
func (testCtx *TestContext) theServerIsRunning() error {
	return testCtx.startServer(server.Config{
		CORSOrigin:    "*",
		MaxUploadMB:   50,
		TimeoutSec:    30,
		RectifyConfig: rectify.DefaultConfig(),
	})
}

func (testCtx *TestContext) theServerIsRunningWithCORSOrigin(origin string) error {
	return testCtx.startServer(server.Config{
		CORSOrigin:    origin,
		MaxUploadMB:   50,
		TimeoutSec:    30,
		RectifyConfig: rectify.DefaultConfig(),
	})
}

func (testCtx *TestContext) theServerIsRunningWithRateLimit(perMinute int) error {
	return testCtx.startServer(server.Config{
		CORSOrigin:         "*",
		MaxUploadMB:        50,
		TimeoutSec:         30,
		RectifyConfig:      rectify.DefaultConfig(),
		RateLimitPerMinute: perMinute,
	})
}

func (testCtx *TestContext) startServer(cfg server.Config) error {
	if err := testCtx.StopServer(); err != nil {
		return err
	}
	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	testCtx.HTTPServer = &HTTPServerWrapper{Server: httptest.NewServer(mux), Config: cfg}
	return nil
}

// StopServer stops the running test server, if any.
func (testCtx *TestContext) StopServer() error {
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Server.Close()
		testCtx.HTTPServer = nil
	}
	return nil
}

// doRequest sends a request to the running server and records the response.
func (testCtx *TestContext) doRequest(method, endpoint, contentType string, body io.Reader) error {
	if testCtx.HTTPServer == nil {
		return errors.New("server is not running")
	}
	req, err := http.NewRequest(method, testCtx.HTTPServer.Server.URL+endpoint, body) //nolint:noctx // client timeout applies
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(data)
	testCtx.LastHTTPHeaders = map[string]string{}
	for name := range resp.Header {
		testCtx.LastHTTPHeaders[name] = resp.Header.Get(name)
	}
	return nil
}

func (testCtx *TestContext) iGET(endpoint string) error {
	return testCtx.doRequest(http.MethodGet, endpoint, "", nil)
}

func (testCtx *TestContext) iMakeAnOPTIONSRequestTo(endpoint string) error {
	return testCtx.doRequest(http.MethodOptions, endpoint, "", nil)
}

// iPOSTTheGeometryOf sends a scene's geometry document as the request body.
func (testCtx *TestContext) iPOSTTheGeometryOf(scene, endpoint string) error {
	data, err := os.ReadFile(filepath.Join(testCtx.Path(scene), "geometry.yaml"))
	if err != nil {
		return err
	}
	return testCtx.doRequest(http.MethodPost, endpoint, "application/yaml", bytes.NewReader(data))
}

func (testCtx *TestContext) iPOSTToWithBody(endpoint string, body *godog.DocString) error {
	return testCtx.doRequest(http.MethodPost, endpoint, "application/json", strings.NewReader(body.Content))
}

// iPOSTTheImagePairOf uploads a scene's images and geometry as a multipart form.
func (testCtx *TestContext) iPOSTTheImagePairOf(scene, endpoint string) error {
	dir := testCtx.Path(scene)
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, field := range []string{"left", "right", "geometry"} {
		name := field + ".png"
		if field == "geometry" {
			name = "geometry.yaml"
		}
		data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // G304: scenario files
		if err != nil {
			return err
		}
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return testCtx.doRequest(http.MethodPost, endpoint, writer.FormDataContentType(), &buf)
}

// theResponseStatusShouldBe verifies the HTTP status code.
func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d\nResponse: %s",
			status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) responseJSON() (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &data); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w\nResponse: %s", err, testCtx.LastHTTPResponse)
	}
	return data, nil
}

func (testCtx *TestContext) theResponseJSONShouldContain(field string) error {
	data, err := testCtx.responseJSON()
	if err != nil {
		return err
	}
	_, err = lookupField(data, field)
	return err
}

func (testCtx *TestContext) theResponseJSONFieldShouldBe(field, want string) error {
	data, err := testCtx.responseJSON()
	if err != nil {
		return err
	}
	v, err := lookupField(data, field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("field %s is %s, want %s", field, got, want)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, want string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != want {
		return fmt.Errorf("header %s is %q, want %q", name, got, want)
	}
	return nil
}

// theResponseImagesShouldBe decodes both returned PNGs and checks their size.
func (testCtx *TestContext) theResponseImagesShouldBe(width, height int) error {
	var resp server.ImagesResponse
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &resp); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	for name, data := range map[string][]byte{"left": resp.Left, "right": resp.Right} {
		img, _, err := utils.DecodeImage(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s image: %w", name, err)
		}
		if got := img.Bounds().Size(); got != image.Pt(width, height) {
			return fmt.Errorf("%s image is %dx%d, want %dx%d", name, got.X, got.Y, width, height)
		}
	}
	return nil
}

// RegisterServerSteps registers HTTP server step definitions.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the rectification server is running$`, testCtx.theServerIsRunning)
	sc.Step(`^the rectification server is running with CORS origin "([^"]*)"$`, testCtx.theServerIsRunningWithCORSOrigin)

	sc.Step(`^the rectification server is running with a limit of (\d+) requests? per minute$`, testCtx.theServerIsRunningWithRateLimit)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I make an OPTIONS request to "([^"]*)"$`, testCtx.iMakeAnOPTIONSRequestTo)
	sc.Step(`^I POST the geometry of "([^"]*)" to "([^"]*)"$`, testCtx.iPOSTTheGeometryOf)
	sc.Step(`^I POST the image pair of "([^"]*)" to "([^"]*)"$`, testCtx.iPOSTTheImagePairOf)
	sc.Step(`^I POST to "([^"]*)" with body:$`, testCtx.iPOSTToWithBody)

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response JSON should contain "([^"]*)"$`, testCtx.theResponseJSONShouldContain)
	sc.Step(`^the response JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response images should be (\d+)x(\d+)$`, testCtx.theResponseImagesShouldBe)
}
