package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/example/go-voicescribe/internal/audio"
	"github.com/example/go-voicescribe/internal/config"
	"github.com/example/go-voicescribe/internal/doctor"
	"github.com/example/go-voicescribe/internal/transcribe"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run local recognizer and storage checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err := config.NormalizeBackend(cfg.Transcribe.Backend)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "backend: %s\n", backend)

			result := doctor.Run(doctorConfig(cfg, backend), out)
			if result.Failed() {
				for _, f := range result.Failures() {
					// #nosec G705 -- Writes plain diagnostic text to stderr for CLI output, not HTML rendering.
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}
}

func doctorConfig(cfg config.Config, backend string) doctor.Config {
	exe := cfg.CLI.Path
	if exe == "" {
		exe = transcribe.DefaultCLIExecutable
	}

	cliMode := backend == config.BackendCLI

	return doctor.Config{
		WhisperVersion:   func() (string, error) { return probeWhisper(exe) },
		SkipWhisper:      !cliMode,
		WhisperModelPath: cfg.CLI.ModelPath,
		OpenAIKey:        cfg.OpenAI.APIKey,
		SkipOpenAI:       cliMode,
		UploadDir:        cfg.Transcribe.UploadDir,
		Formats:          cfg.Transcribe.Formats,
		Decodable:        audio.Decodable(),
	}
}

// probeWhisper resolves exe on PATH. whisper.cpp builds have no stable
// version flag, so the resolved path is reported instead.
func probeWhisper(exe string) (string, error) {
	path, err := exec.LookPath(exe)
	if err != nil {
		return "", fmt.Errorf("%s: %w", exe, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%d bytes)", path, info.Size()), nil
}
