package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/example/go-voicescribe/internal/audio"
	"github.com/example/go-voicescribe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}

	path := filepath.Join(t.TempDir(), "fake-whisper")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCLIRecognizer_Args(t *testing.T) {
	c := &CLIRecognizer{ModelPath: "/m/base.bin", ExtraArgs: []string{"-t", "4"}}

	got := c.Args("/tmp/x.wav", Options{Language: "en", Prompt: "names"})
	want := []string{"-f", "/tmp/x.wav", "-nt", "-np", "-m", "/m/base.bin", "-l", "en", "--prompt", "names", "-t", "4"}
	assert.Equal(t, want, got)

	got = c.Args("/tmp/x.wav", Options{Model: "/m/large.bin"})
	assert.Equal(t, []string{"-f", "/tmp/x.wav", "-nt", "-np", "-m", "/m/large.bin", "-t", "4"}, got)

	assert.Equal(t, []string{"-f", "a.wav", "-nt", "-np"}, (&CLIRecognizer{}).Args("a.wav", Options{}))
}

func TestCLIRecognizer_Recognize(t *testing.T) {
	// The script checks it received a readable WAV file and prints two segments.
	script := writeScript(t, `
while [ $# -gt 0 ]; do
  if [ "$1" = "-f" ]; then f="$2"; fi
  shift
done
head -c 4 "$f" | grep -q RIFF || exit 3
printf ' hello\n\n  world \n'
`)

	c := &CLIRecognizer{ExecutablePath: script}
	text, err := c.Recognize(context.Background(), stereoWAV(16000), Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestCLIRecognizer_ExitError(t *testing.T) {
	script := writeScript(t, "echo failing >&2\nexit 2\n")

	var stderr strings.Builder
	c := &CLIRecognizer{ExecutablePath: script, Stderr: &stderr}
	_, err := c.Recognize(context.Background(), stereoWAV(16000), Options{})
	require.Error(t, err)

	var te *TranscriptionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "exit_2", te.Code)
	assert.Contains(t, stderr.String(), "failing")
}

func TestCLIRecognizer_NotFound(t *testing.T) {
	c := &CLIRecognizer{ExecutablePath: "voicescribe-no-such-binary"}
	_, err := c.Recognize(context.Background(), stereoWAV(16000), Options{})
	require.Error(t, err)

	var te *TranscriptionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "not_found", te.Code)
	assert.Contains(t, te.Message, "--cli-path")
}

func TestCLIRecognizer_EmptyAudio(t *testing.T) {
	_, err := (&CLIRecognizer{}).Recognize(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestCLIRecognizer_RemovesTempFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "path.txt")
	script := writeScript(t, `
while [ $# -gt 0 ]; do
  if [ "$1" = "-f" ]; then echo "$2" > `+out+`; fi
  shift
done
echo ok
`)

	c := &CLIRecognizer{ExecutablePath: script}
	_, err := c.Recognize(context.Background(), stereoWAV(16000), Options{})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	_, err = os.Stat(strings.TrimSpace(string(data)))
	assert.True(t, os.IsNotExist(err))
}

func TestJoinLines(t *testing.T) {
	assert.Equal(t, "", joinLines("\n \n"))
	assert.Equal(t, "a b", joinLines(" a \r\nb"))
}

func TestCLIRecognizer_WhisperIntegration(t *testing.T) {
	exe := testutil.RequireWhisperCLI(t)
	model := testutil.RequireWhisperModel(t)

	wav := audio.EncodeSamples([][]float32{testutil.Sine(440, 16000, 1, 0.1)}, 16000)
	c := &CLIRecognizer{ExecutablePath: exe, ModelPath: model}

	// A pure tone carries no speech; the run must still succeed.
	_, err := c.Recognize(context.Background(), wav, Options{Language: "en"})
	require.NoError(t, err)
}
