package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// DefaultCLIExecutable is looked up in PATH when no executable is configured.
const DefaultCLIExecutable = "whisper-cli"

// CLIRecognizer runs a whisper.cpp style executable on a temporary WAV file
// and reads the transcription from its stdout.
type CLIRecognizer struct {
	ExecutablePath string
	ModelPath      string
	// ExtraArgs are appended verbatim after the generated arguments.
	ExtraArgs []string
	Stderr    io.Writer
}

// Name returns the backend identifier.
func (c *CLIRecognizer) Name() string { return "whisper-cli" }

func (c *CLIRecognizer) executable() string {
	if c.ExecutablePath == "" {
		return DefaultCLIExecutable
	}
	return c.ExecutablePath
}

// Args returns the command line used for a recognition of wavPath.
func (c *CLIRecognizer) Args(wavPath string, opts Options) []string {
	args := []string{"-f", wavPath, "-nt", "-np"}

	model := opts.Model
	if model == "" {
		model = c.ModelPath
	}
	if model != "" {
		args = append(args, "-m", model)
	}
	if opts.Language != "" {
		args = append(args, "-l", opts.Language)
	}
	if opts.Prompt != "" {
		args = append(args, "--prompt", opts.Prompt)
	}

	return append(args, c.ExtraArgs...)
}

// Recognize writes wav to a temporary file and runs the executable on it.
func (c *CLIRecognizer) Recognize(ctx context.Context, wav []byte, opts Options) (string, error) {
	if len(wav) == 0 {
		return "", ErrEmptyAudio
	}

	tmp, err := os.CreateTemp("", "voicescribe-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp WAV: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(wav); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp WAV: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp WAV: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.executable(), c.Args(tmp.Name(), opts)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if c.Stderr != nil {
		cmd.Stderr = c.Stderr
	} else {
		cmd.Stderr = io.Discard
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", c.mapError(err)
	}

	return joinLines(out.String()), nil
}

func (c *CLIRecognizer) mapError(err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return NewTranscriptionError(c.Name(), "not_found",
			fmt.Sprintf("%s executable not found; set --cli-path or VOICESCRIBE_CLI_PATH", c.executable()),
			err, false)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return NewTranscriptionError(c.Name(), fmt.Sprintf("exit_%d", exitErr.ExitCode()),
			"recognizer returned non-zero exit", err, false)
	}

	return NewTranscriptionError(c.Name(), "", "run recognizer", err, false)
}

// joinLines collapses the per-segment lines whisper prints into one string.
func joinLines(s string) string {
	lines := strings.Split(s, "\n")
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " ")
}
