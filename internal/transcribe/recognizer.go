// Package transcribe turns uploaded audio into text.
//
// A Service validates and normalises an upload, re-encodes it as canonical
// 16-bit PCM WAV and hands it to a Recognizer. Two recognizers are
// provided: OpenAIRecognizer talks to a Whisper-compatible HTTP API and
// CLIRecognizer runs a local whisper executable.
package transcribe

import (
	"context"
)

// Recognizer converts a WAV file to text.
type Recognizer interface {
	// Name returns the backend identifier used in logs and errors.
	Name() string

	// Recognize returns the transcription of wav.
	Recognize(ctx context.Context, wav []byte, opts Options) (string, error)
}

// Options tune a single recognition call.
type Options struct {
	// Language is an optional ISO-639-1 hint such as "en".
	Language string

	// Model overrides the backend's default model.
	Model string

	// Prompt guides vocabulary for backends that support it.
	Prompt string
}
