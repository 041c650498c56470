// Package testutil provides shared skip helpers and WAV assertions for tests.
//
// Each Require helper calls t.Skip with a clear human-readable reason when the
// named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestWhisperIntegration(t *testing.T) {
//	    exe := testutil.RequireWhisperCLI(t)
//	    model := testutil.RequireWhisperModel(t)
//	    ...
//	}
package testutil

import (
	"math"
	"os"
	"os/exec"
	"testing"
)

// RequireWhisperCLI skips the test if no whisper executable is found in PATH
// or at the path given by VOICESCRIBE_CLI_PATH. It returns the resolved path.
func RequireWhisperCLI(tb testing.TB) string {
	tb.Helper()

	exe := os.Getenv("VOICESCRIBE_CLI_PATH")
	if exe == "" {
		exe = "whisper-cli"
	}

	path, err := exec.LookPath(exe)
	if err != nil {
		tb.Skipf("whisper executable not available (%q not in PATH); set VOICESCRIBE_CLI_PATH to override", exe)
	}
	return path
}

// RequireWhisperModel skips the test unless VOICESCRIBE_CLI_MODEL_PATH names
// an existing model file. It returns the path.
func RequireWhisperModel(tb testing.TB) string {
	tb.Helper()

	p := os.Getenv("VOICESCRIBE_CLI_MODEL_PATH")
	if p == "" {
		tb.Skip("whisper model not configured; set VOICESCRIBE_CLI_MODEL_PATH")
	}
	if _, err := os.Stat(p); err != nil {
		tb.Skipf("whisper model not found at VOICESCRIBE_CLI_MODEL_PATH=%q", p)
	}
	return p
}

// RequireOpenAIKey skips the test unless OPENAI_API_KEY is set. It returns
// the key.
func RequireOpenAIKey(tb testing.TB) string {
	tb.Helper()

	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		tb.Skip("OPENAI_API_KEY not set")
	}
	return key
}

// Sine returns seconds of a sine tone at freq Hz and the given amplitude,
// sampled at sampleRate.
func Sine(freq float64, sampleRate int, seconds, amplitude float64) []float32 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}
