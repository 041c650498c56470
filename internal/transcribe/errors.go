package transcribe

import (
	"errors"
	"fmt"
)

// Errors caused by the uploaded audio rather than by the service.
var (
	// ErrUnsupportedFormat is returned when the file extension is not accepted.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrEmptyAudio is returned when the upload has no content.
	ErrEmptyAudio = errors.New("empty audio content")

	// ErrConversion is returned when the upload cannot be decoded.
	ErrConversion = errors.New("audio conversion failed")

	// ErrNoSpeech is returned when the recognizer produced no text.
	ErrNoSpeech = errors.New("no speech detected in audio")

	// ErrUnintelligible is returned when the recognizer could not understand the audio.
	ErrUnintelligible = errors.New("speech recognition could not understand the audio")

	// ErrAudioTooShort is returned when the recognizer rejects the clip length.
	ErrAudioTooShort = errors.New("audio too short to transcribe")

	// ErrRecognizerService wraps a failure reported by the recognizer
	// backend. It is reported to callers like a rejected upload.
	ErrRecognizerService = errors.New("speech recognition service error")
)

// Errors caused by the recognizer backend.
var (
	// ErrRateLimited is returned when the provider rate limits requests.
	ErrRateLimited = errors.New("rate limited by provider")

	// ErrUnauthorized is returned when the provider rejects the credentials.
	ErrUnauthorized = errors.New("invalid API key")
)

var clientErrors = []error{
	ErrUnsupportedFormat,
	ErrEmptyAudio,
	ErrConversion,
	ErrNoSpeech,
	ErrUnintelligible,
	ErrAudioTooShort,
	ErrRecognizerService,
}

// IsClientError reports whether err was caused by the submitted audio.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// TranscriptionError represents a failure reported by a recognizer backend.
type TranscriptionError struct {
	// Provider is the recognizer name.
	Provider string

	// Code is the provider-specific error code.
	Code string

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether the request can be retried.
	Retryable bool
}

// NewTranscriptionError creates a new TranscriptionError.
func NewTranscriptionError(provider, code, message string, cause error, retryable bool) *TranscriptionError {
	return &TranscriptionError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable,
	}
}

// Error implements the error interface.
func (e *TranscriptionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s transcription error [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s transcription error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *TranscriptionError) Unwrap() error {
	return e.Cause
}

// Is matches on the cause, or on provider and code for another TranscriptionError.
func (e *TranscriptionError) Is(target error) bool {
	if e.Cause != nil && errors.Is(e.Cause, target) {
		return true
	}
	t, ok := target.(*TranscriptionError)
	if !ok {
		return false
	}
	return e.Provider == t.Provider && e.Code == t.Code
}
