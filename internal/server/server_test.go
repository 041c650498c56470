package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/go-voicescribe/internal/server"
	"github.com/example/go-voicescribe/internal/transcribe"
)

// stubTranscriber implements server.Transcriber for tests.
type stubTranscriber struct {
	text     string
	err      error
	content  []byte
	filename string
}

func (s *stubTranscriber) Transcribe(_ context.Context, content []byte, filename string) (string, error) {
	s.content = content
	s.filename = filename
	return s.text, s.err
}

func newTestHandler(svc server.Transcriber, opts ...server.Option) http.Handler {
	return server.NewHandler(svc, opts...)
}

// uploadRequest builds a multipart POST /transcribe/ with one file field.
func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/transcribe/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

// ---------------------------------------------------------------------------
// GET /health
// ---------------------------------------------------------------------------

func TestHealth_Returns200WithStatusOK(t *testing.T) {
	h := newTestHandler(&stubTranscriber{}, server.WithBackendName("fake"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec.Body)
	if body["status"] != "ok" {
		t.Errorf("want status=ok, got %q", body["status"])
	}

	if _, ok := body["version"]; !ok {
		t.Error("want version field in response")
	}

	if body["backend"] != "fake" {
		t.Errorf("want backend=fake, got %q", body["backend"])
	}
}

// ---------------------------------------------------------------------------
// GET / and /static/
// ---------------------------------------------------------------------------

func TestIndex_ServesRecorderPage(t *testing.T) {
	h := newTestHandler(&stubTranscriber{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q; want text/html", ct)
	}

	if !strings.Contains(rec.Body.String(), `id="recordButton"`) {
		t.Error("index page missing record button")
	}
}

func TestIndex_UnknownPathIs404(t *testing.T) {
	h := newTestHandler(&stubTranscriber{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestStatic_ServesEmbeddedScript(t *testing.T) {
	h := newTestHandler(&stubTranscriber{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/scripts.js", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "sendAudioToServer") {
		t.Error("scripts.js body unexpected")
	}
}

func TestStatic_MissingWasmIs404(t *testing.T) {
	h := newTestHandler(&stubTranscriber{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/wavenc.wasm", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /transcribe/
// ---------------------------------------------------------------------------

func TestTranscribe_Success(t *testing.T) {
	stub := &stubTranscriber{text: "hello world"}
	h := newTestHandler(stub)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "audio_file", "recording.wav", []byte("RIFFdata")))

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec.Body)
	if body["transcription"] != "hello world" {
		t.Errorf("transcription = %q; want %q", body["transcription"], "hello world")
	}

	if stub.filename != "recording.wav" {
		t.Errorf("filename = %q; want recording.wav", stub.filename)
	}

	if string(stub.content) != "RIFFdata" {
		t.Errorf("content = %q; want RIFFdata", stub.content)
	}

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("want X-Request-ID header")
	}
}

func TestTranscribe_NoFileIs422(t *testing.T) {
	h := newTestHandler(&stubTranscriber{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transcribe/", nil))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d", rec.Code)
	}

	body := decodeBody(t, rec.Body)
	if body["detail"] != "Field required: audio_file" {
		t.Errorf("detail = %q", body["detail"])
	}
}

func TestTranscribe_WrongFieldIs422(t *testing.T) {
	h := newTestHandler(&stubTranscriber{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "file", "a.wav", []byte("x")))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d", rec.Code)
	}
}

func TestTranscribe_GetIs405(t *testing.T) {
	h := newTestHandler(&stubTranscriber{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transcribe/", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

func TestTranscribe_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{
			name:       "empty audio",
			err:        &transcribe.AudioError{Err: transcribe.ErrEmptyAudio, Detail: "Empty audio content"},
			wantStatus: http.StatusBadRequest,
			wantDetail: "Empty audio content",
		},
		{
			name:       "unsupported format",
			err:        &transcribe.AudioError{Err: transcribe.ErrUnsupportedFormat, Detail: "Unsupported audio format. Supported formats: ['wav']"},
			wantStatus: http.StatusBadRequest,
			wantDetail: "Unsupported audio format. Supported formats: ['wav']",
		},
		{
			name:       "timeout",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantDetail: "Transcription timed out",
		},
		{
			name:       "cancelled",
			err:        context.Canceled,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "internal",
			err:        errors.New("disk on fire"),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Transcription failed: disk on fire",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&stubTranscriber{err: tt.err})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, "audio_file", "a.wav", []byte("x")))

			if rec.Code != tt.wantStatus {
				t.Fatalf("want %d, got %d", tt.wantStatus, rec.Code)
			}

			body := decodeBody(t, rec.Body)
			if tt.wantDetail != "" && body["detail"] != tt.wantDetail {
				t.Errorf("detail = %q; want %q", body["detail"], tt.wantDetail)
			}
			if body["detail"] == "" {
				t.Error("want non-empty detail field")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// CORS
// ---------------------------------------------------------------------------

func TestCORS_Preflight(t *testing.T) {
	h := newTestHandler(&stubTranscriber{})

	req := httptest.NewRequest(http.MethodOptions, "/transcribe/", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("want 204, got %d", rec.Code)
	}

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q; want *", got)
	}

	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "content-type" {
		t.Errorf("Allow-Headers = %q; want content-type", got)
	}

	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Error("Allow-Methods missing POST")
	}
}

func TestCORS_SimpleRequestHeader(t *testing.T) {
	h := newTestHandler(&stubTranscriber{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q; want *", got)
	}
}

// ---------------------------------------------------------------------------
// GET /metrics
// ---------------------------------------------------------------------------

func TestMetrics_CountsRequests(t *testing.T) {
	h := newTestHandler(&stubTranscriber{text: "ok"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "audio_file", "a.wav", []byte("x")))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), `voicescribe_transcribe_requests_total{status="200"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", rec.Body.String())
	}
}
