// Package client uploads recordings to a transcription server and provides
// the copy and download affordances for the returned text.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
)

const (
	// UploadFilename is the name every recording is uploaded under.
	UploadFilename = "recording.wav"

	// TranscriptionFile is the file written by SaveTranscription.
	TranscriptionFile = "transcription.txt"

	defaultTimeout = 120 * time.Second
)

// ErrClipboard is returned when the system clipboard cannot be written.
// Its text is shown to users as is.
var ErrClipboard = errors.New("Failed to copy text") //nolint:staticcheck

// HTTPError reports a non-2xx response from the server. Its message is
// generic; Detail keeps the server's explanation for logging.
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// Client talks to a transcription server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the upload timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http = &http.Client{Timeout: d}
		}
	}
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe uploads wav as recording.wav and returns the transcription.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio_file"; filename=%q`, UploadFilename))
	hdr.Set("Content-Type", "audio/wav")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe/", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload recording: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode}
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &detail) == nil {
			httpErr.Detail = detail.Detail
		}
		return "", httpErr
	}

	var result struct {
		Transcription string `json:"transcription"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return result.Transcription, nil
}

// SaveTranscription writes text to dir/transcription.txt and returns the path.
func SaveTranscription(dir, text string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, TranscriptionFile)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write transcription: %w", err)
	}
	return path, nil
}

// clipboardWrite is replaced in tests.
var clipboardWrite = func(text string) error {
	if clipboard.Unsupported {
		return errors.New("no clipboard utility found")
	}
	return clipboard.WriteAll(text)
}

// CopyTranscription places text on the system clipboard.
func CopyTranscription(text string) error {
	if err := clipboardWrite(text); err != nil {
		return fmt.Errorf("%w: %v", ErrClipboard, err)
	}
	return nil
}
