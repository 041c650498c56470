package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/example/go-voicescribe/internal/audio"
	"github.com/example/go-voicescribe/internal/config"
	"github.com/google/uuid"
)

// AudioError carries the message shown to the caller for a rejected upload.
// Err is one of the package sentinels.
type AudioError struct {
	Err    error
	Detail string
}

func (e *AudioError) Error() string { return e.Detail }

func (e *AudioError) Unwrap() error { return e.Err }

// Service validates uploads, normalises them to canonical WAV and runs the
// configured Recognizer.
type Service struct {
	cfg        config.TranscribeConfig
	recognizer Recognizer
	formats    []string
	logger     *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger used for archive and recognition events.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service and ensures the upload directory exists.
func NewService(cfg config.TranscribeConfig, rec Recognizer, opts ...ServiceOption) (*Service, error) {
	if rec == nil {
		return nil, errors.New("transcribe: recognizer is required")
	}

	formats := make([]string, 0, len(cfg.Formats))
	for _, f := range cfg.Formats {
		f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
		if f != "" {
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		formats = audio.SupportedFormats()
	}

	if cfg.UploadDir != "" {
		if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
			return nil, fmt.Errorf("create upload directory: %w", err)
		}
	}

	s := &Service{
		cfg:        cfg,
		recognizer: rec,
		formats:    formats,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Formats returns the accepted file extensions.
func (s *Service) Formats() []string {
	return slices.Clone(s.formats)
}

// Recognizer returns the backend the service delegates to.
func (s *Service) Recognizer() Recognizer { return s.recognizer }

// Transcribe converts content, named filename by the uploader, into text.
// Errors caused by the upload satisfy IsClientError.
func (s *Service) Transcribe(ctx context.Context, content []byte, filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !slices.Contains(s.formats, ext) {
		return "", &AudioError{
			Err:    ErrUnsupportedFormat,
			Detail: fmt.Sprintf("Unsupported audio format. Supported formats: %s", formatList(s.formats)),
		}
	}

	if len(content) == 0 {
		return "", &AudioError{Err: ErrEmptyAudio, Detail: "Empty audio content"}
	}

	buf, err := audio.Decode(ext, content)
	if err != nil {
		return "", &AudioError{
			Err:    ErrConversion,
			Detail: fmt.Sprintf("Audio conversion failed: %v", err),
		}
	}

	wav := audio.EncodeWAV(audio.ApplyHooks(buf, s.hooks()...))

	if s.cfg.Archive {
		if err := s.archive(wav); err != nil {
			return "", err
		}
	}

	text, err := s.recognizer.Recognize(ctx, wav, Options{
		Language: s.cfg.Language,
		Model:    s.cfg.Model,
		Prompt:   s.cfg.Prompt,
	})
	if err != nil {
		return "", s.recognitionError(err)
	}

	text = strings.TrimSpace(text)
	switch {
	case text == "" || isBlankMarker(text):
		return "", &AudioError{Err: ErrNoSpeech, Detail: "No speech detected in audio"}
	case isUnintelligibleMarker(text):
		return "", &AudioError{Err: ErrUnintelligible, Detail: "Speech recognition could not understand the audio"}
	}

	return text, nil
}

func (s *Service) hooks() []audio.Hook {
	var hooks []audio.Hook
	if s.cfg.Mono {
		hooks = append(hooks, audio.DownmixMono)
	}
	if s.cfg.SampleRate > 0 {
		hooks = append(hooks, audio.Resampler(s.cfg.SampleRate))
	}
	return hooks
}

func (s *Service) archive(wav []byte) error {
	dir := s.cfg.UploadDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, uuid.NewString()+".wav")
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return fmt.Errorf("archive upload: %w", err)
	}
	s.logger.Debug("archived upload", "path", path, "bytes", len(wav))
	return nil
}

func (s *Service) recognitionError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if IsClientError(err) {
		var te *TranscriptionError
		if errors.As(err, &te) && errors.Is(err, ErrAudioTooShort) {
			return &AudioError{Err: te, Detail: "Audio too short to transcribe"}
		}
		return err
	}

	var te *TranscriptionError
	if errors.As(err, &te) {
		return &AudioError{
			Err:    errors.Join(ErrRecognizerService, te),
			Detail: fmt.Sprintf("Speech recognition service error: %s", te.Message),
		}
	}
	return fmt.Errorf("%s: %w", s.recognizer.Name(), err)
}

// formatList renders formats the way they appear in error details.
func formatList(formats []string) string {
	quoted := make([]string, len(formats))
	for i, f := range formats {
		quoted[i] = "'" + f + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Whisper emits bracketed annotations instead of text for silent or noisy
// input.
var (
	blankMarkers = []string{"[BLANK_AUDIO]", "[SILENCE]", "(silence)", "[ Silence ]"}
	noiseMarkers = []string{"[inaudible]", "(inaudible)", "[unintelligible]", "(unintelligible)", "[NOISE]", "(noise)"}
)

func isBlankMarker(text string) bool {
	return onlyMarkers(text, blankMarkers)
}

func isUnintelligibleMarker(text string) bool {
	return onlyMarkers(text, append(slices.Clone(blankMarkers), noiseMarkers...))
}

// onlyMarkers reports whether text consists solely of the given markers.
func onlyMarkers(text string, markers []string) bool {
	rest := text
	for _, m := range markers {
		rest = strings.ReplaceAll(rest, m, "")
		rest = strings.ReplaceAll(rest, strings.ToLower(m), "")
	}
	return strings.TrimSpace(rest) == "" && text != ""
}

// NewRecognizer builds the backend selected by cfg.Transcribe.Backend.
func NewRecognizer(cfg config.Config) (Recognizer, error) {
	backend, err := config.NormalizeBackend(cfg.Transcribe.Backend)
	if err != nil {
		return nil, err
	}

	switch backend {
	case config.BackendCLI:
		return &CLIRecognizer{
			ExecutablePath: cfg.CLI.Path,
			ModelPath:      cfg.CLI.ModelPath,
		}, nil
	default:
		return NewOpenAI(cfg.OpenAI.APIKey,
			WithOpenAIBaseURL(cfg.OpenAI.BaseURL),
			WithOpenAIModel(cfg.Transcribe.Model),
		), nil
	}
}
