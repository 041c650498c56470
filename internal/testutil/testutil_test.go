package testutil_test

import (
	"math"
	"testing"

	"github.com/example/go-voicescribe/internal/audio"
	"github.com/example/go-voicescribe/internal/testutil"
)

func TestRequireWhisperCLI_SkipsWhenAbsent(t *testing.T) {
	t.Setenv("VOICESCRIBE_CLI_PATH", "/nonexistent/whisper-cli")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireWhisperCLI(fakeT)
	if !skipped {
		t.Error("expected RequireWhisperCLI to skip when binary is absent")
	}
}

func TestRequireWhisperModel_SkipsWhenUnset(t *testing.T) {
	t.Setenv("VOICESCRIBE_CLI_MODEL_PATH", "")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireWhisperModel(fakeT)
	if !skipped {
		t.Error("expected RequireWhisperModel to skip when unset")
	}
}

func TestRequireOpenAIKey_SkipsWhenUnset(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireOpenAIKey(fakeT)
	if !skipped {
		t.Error("expected RequireOpenAIKey to skip when unset")
	}
}

func TestSine(t *testing.T) {
	s := testutil.Sine(1000, 8000, 0.5, 0.8)
	if len(s) != 4000 {
		t.Fatalf("len = %d; want 4000", len(s))
	}

	var peak float64
	for _, v := range s {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak > 0.8+1e-6 || peak < 0.79 {
		t.Errorf("peak = %v; want ~0.8", peak)
	}
}

func TestAssertValidWAV_AcceptsEncoderOutput(t *testing.T) {
	tone := testutil.Sine(440, 16000, 0.25, 0.5)
	wav := audio.EncodeSamples([][]float32{tone, tone}, 16000)

	testutil.AssertValidWAV(t, wav, 2, 16000)
	testutil.AssertWAVDurationApprox(t, wav, 0.24, 0.26)
}

// skipTracker is a minimal testing.TB implementation that intercepts Skip calls.
type skipTracker struct {
	testing.TB
	onSkip func()
}

func (s *skipTracker) Helper() {}

func (s *skipTracker) Skip(_ ...any) {
	s.onSkip()
}

func (s *skipTracker) Skipf(_ string, _ ...any) {
	s.onSkip()
	// Do NOT call s.TB.Skip, that would actually skip the outer test.
}
