// Package doctor provides environment preflight checks for voicescribe.
package doctor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// WhisperVersion probes the whisper executable used by the cli backend.
	WhisperVersion VersionFunc
	// SkipWhisper skips the whisper checks (openai backend).
	SkipWhisper bool
	// WhisperModelPath is verified on disk when set.
	WhisperModelPath string
	// OpenAIKey is the configured API key. Only presence is checked.
	OpenAIKey string
	// SkipOpenAI skips the API key check (cli backend).
	SkipOpenAI bool
	// UploadDir must be creatable and writable.
	UploadDir string
	// Formats are the configured upload extensions.
	Formats []string
	// Decodable lists the extensions the audio pipeline can decode.
	Decodable []string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- whisper executable -------------------------------------------------
	if cfg.SkipWhisper {
		fmt.Fprintf(w, "%s whisper binary: skipped\n", PassMark)
	} else {
		ver, err := probe(cfg.WhisperVersion)
		if err != nil {
			res.fail(fmt.Sprintf("whisper binary: %v", err))
			fmt.Fprintf(w, "%s whisper binary: not found (%v)\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s whisper binary: %s\n", PassMark, ver)
		}

		if cfg.WhisperModelPath != "" {
			if err := checkFile(cfg.WhisperModelPath); err != nil {
				res.fail(fmt.Sprintf("whisper model %q: %v", cfg.WhisperModelPath, err))
				fmt.Fprintf(w, "%s whisper model %s: %v\n", FailMark, cfg.WhisperModelPath, err)
			} else {
				fmt.Fprintf(w, "%s whisper model: %s\n", PassMark, cfg.WhisperModelPath)
			}
		}
	}

	// ---- OpenAI credentials -------------------------------------------------
	if cfg.SkipOpenAI {
		fmt.Fprintf(w, "%s openai api key: skipped\n", PassMark)
	} else if strings.TrimSpace(cfg.OpenAIKey) == "" {
		res.fail("openai api key: not set (use --openai-api-key or OPENAI_API_KEY)")
		fmt.Fprintf(w, "%s openai api key: not set\n", FailMark)
	} else {
		fmt.Fprintf(w, "%s openai api key: set\n", PassMark)
	}

	// ---- upload directory ---------------------------------------------------
	if cfg.UploadDir != "" {
		if err := checkWritable(cfg.UploadDir); err != nil {
			res.fail(fmt.Sprintf("upload dir %q: %v", cfg.UploadDir, err))
			fmt.Fprintf(w, "%s upload dir %s: %v\n", FailMark, cfg.UploadDir, err)
		} else {
			fmt.Fprintf(w, "%s upload dir: %s\n", PassMark, cfg.UploadDir)
		}
	}

	// ---- formats ------------------------------------------------------------
	if unknown := unsupportedFormats(cfg.Formats, cfg.Decodable); len(unknown) > 0 {
		res.fail(fmt.Sprintf("formats: no decoder for %s", strings.Join(unknown, ", ")))
		fmt.Fprintf(w, "%s formats: no decoder for %s\n", FailMark, strings.Join(unknown, ", "))
	} else if len(cfg.Formats) > 0 {
		fmt.Fprintf(w, "%s formats: %s\n", PassMark, strings.Join(cfg.Formats, ", "))
	}

	return res
}

func probe(fn VersionFunc) (string, error) {
	if fn == nil {
		return "", errors.New("no probe configured")
	}
	return fn()
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	if info.Size() == 0 {
		return errors.New("file is empty")
	}
	return nil
}

// checkWritable creates dir if needed and writes a probe file into it.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// unsupportedFormats returns the entries of formats missing from decodable.
// An empty decodable list disables the check.
func unsupportedFormats(formats, decodable []string) []string {
	if len(decodable) == 0 {
		return nil
	}
	var out []string
	for _, f := range formats {
		norm := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
		if norm == "" {
			continue
		}
		if !slices.Contains(decodable, norm) {
			out = append(out, norm)
		}
	}
	return out
}
