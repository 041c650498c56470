package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const (
	openAIBaseURL            = "https://api.openai.com/v1"
	openAITranscribeEndpoint = "/audio/transcriptions"

	// ModelWhisper1 is the OpenAI Whisper model for transcription.
	ModelWhisper1 = "whisper-1"

	defaultOpenAITimeout = 60 * time.Second
)

// OpenAIRecognizer implements Recognizer against the OpenAI audio
// transcription API or any server speaking the same protocol.
type OpenAIRecognizer struct {
	apiKey  string
	baseURL string
	client  *http.Client
	model   string
}

// OpenAIOption configures an OpenAIRecognizer.
type OpenAIOption func(*OpenAIRecognizer)

// WithOpenAIBaseURL sets a custom base URL (for testing or proxies).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(r *OpenAIRecognizer) {
		if url != "" {
			r.baseURL = url
		}
	}
}

// WithOpenAIClient sets a custom HTTP client.
func WithOpenAIClient(client *http.Client) OpenAIOption {
	return func(r *OpenAIRecognizer) {
		r.client = client
	}
}

// WithOpenAIModel sets the default model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(r *OpenAIRecognizer) {
		if model != "" {
			r.model = model
		}
	}
}

// NewOpenAI creates a recognizer using the Whisper API.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIRecognizer {
	r := &OpenAIRecognizer{
		apiKey:  apiKey,
		baseURL: openAIBaseURL,
		client:  &http.Client{Timeout: defaultOpenAITimeout},
		model:   ModelWhisper1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the provider identifier.
func (r *OpenAIRecognizer) Name() string {
	return "openai-whisper"
}

// Recognize uploads wav and returns the recognised text.
func (r *OpenAIRecognizer) Recognize(ctx context.Context, wav []byte, opts Options) (string, error) {
	if len(wav) == 0 {
		return "", ErrEmptyAudio
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = r.model
	}
	fields := [][2]string{
		{"model", model},
		{"language", opts.Language},
		{"prompt", opts.Prompt},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("write %s field: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+openAITranscribeEndpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", NewTranscriptionError(r.Name(), "", "request failed", err, true)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", r.handleError(resp.StatusCode, body)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	return result.Text, nil
}

func (r *OpenAIRecognizer) handleError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return NewTranscriptionError(
			r.Name(),
			strconv.Itoa(statusCode),
			string(body),
			nil,
			statusCode >= http.StatusInternalServerError,
		)
	}

	retryable := statusCode == http.StatusTooManyRequests ||
		statusCode >= http.StatusInternalServerError

	var cause error
	switch statusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusUnauthorized:
		cause = ErrUnauthorized
	case http.StatusBadRequest:
		if errResp.Error.Code == "audio_too_short" {
			cause = ErrAudioTooShort
		}
	}

	return NewTranscriptionError(
		r.Name(),
		errResp.Error.Code,
		errResp.Error.Message,
		cause,
		retryable,
	)
}
