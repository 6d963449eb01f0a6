package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/scenescan/scenescan/pkg/nn"
	"github.com/scenescan/scenescan/server/config"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	pingErr error
}

func (d *fakeDetector) Close() {}

func (d *fakeDetector) DetectObjects(ctx context.Context, img *cimg.Image, params *nn.DetectionParams) ([]nn.Detection, error) {
	return nil, nil
}

func (d *fakeDetector) Ping(ctx context.Context) error {
	return d.pingErr
}

func newTestServer(t *testing.T, detector nn.ObjectDetector) *Server {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.TempPath = t.TempDir()
	return NewServer(logs.NewTestingLog(t), cfg, detector)
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", "/api/analyze", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func errorDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, &fakeDetector{})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "scenescan")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeDetector{})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body healthJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body.Status)
	require.True(t, body.ModelLoaded)
}

func TestHealthModelDown(t *testing.T) {
	s := newTestServer(t, &fakeDetector{pingErr: fmt.Errorf("connection refused")})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body healthJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.ModelLoaded)
}

func TestAnalyzeRejectsMissingFile(t *testing.T) {
	s := newTestServer(t, &fakeDetector{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/analyze", bytes.NewReader(nil))
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeRejectsUnsupportedType(t *testing.T) {
	s := newTestServer(t, &fakeDetector{})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, uploadRequest(t, "notes.txt", []byte("hello")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	detail := errorDetail(t, rec)
	require.Contains(t, detail, "Unsupported file type")
	require.Contains(t, detail, ".mp4")
}

func TestAnalyzeRejectsEmptyFile(t *testing.T) {
	s := newTestServer(t, &fakeDetector{})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, uploadRequest(t, "clip.mp4", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, errorDetail(t, rec), "empty")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakeDetector{})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/analyze", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
