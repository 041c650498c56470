// Package bench measures recognition latency for the voicescribe bench command.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/example/go-voicescribe/internal/audio"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and transcript size of a single recognition run.
type RunResult struct {
	Index         int
	Cold          bool // true for the first run (cold-start)
	Duration      time.Duration
	AudioDuration time.Duration
	RTF           float64
	Chars         int
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return Stats{
		Min:  slices.Min(durations),
		Max:  slices.Max(durations),
		Mean: sum / time.Duration(len(durations)),
	}
}

// StatsOf aggregates the durations of runs.
func StatsOf(runs []RunResult) Stats {
	durations := make([]time.Duration, len(runs))
	for i, r := range runs {
		durations[i] = r.Duration
	}
	return ComputeStats(durations)
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// RecognizeFunc performs one recognition and returns the transcript.
type RecognizeFunc func(ctx context.Context) (string, error)

// Run calls fn n times and records one RunResult per call. audioDur is the
// length of the recording being recognized.
func Run(ctx context.Context, n int, audioDur time.Duration, fn RecognizeFunc) ([]RunResult, error) {
	if n < 1 {
		return nil, errors.New("runs must be at least 1")
	}

	results := make([]RunResult, 0, n)
	for i := range n {
		start := time.Now()
		text, err := fn(ctx)
		if err != nil {
			return nil, fmt.Errorf("run %d failed: %w", i+1, err)
		}
		dur := time.Since(start)

		results = append(results, RunResult{
			Index:         i,
			Cold:          i == 0,
			Duration:      dur,
			AudioDuration: audioDur,
			RTF:           CalcRTF(dur, audioDur),
			Chars:         len(text),
		})
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// RTF helpers
// ---------------------------------------------------------------------------

// CalcRTF returns recognition_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(recDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(recDur) / float64(audioDur)
}

// MeanRTF averages the RTF of runs.
func MeanRTF(runs []RunResult) float64 {
	if len(runs) == 0 {
		return 0
	}
	var total float64
	for _, r := range runs {
		total += r.RTF
	}
	return total / float64(len(runs))
}

// WAVDuration returns the playback duration of a PCM WAV file.
func WAVDuration(wav []byte) (time.Duration, error) {
	f, err := audio.Inspect(wav)
	if err != nil {
		return 0, err
	}
	if f.SampleRate == 0 || f.BlockAlign == 0 {
		return 0, fmt.Errorf("invalid fmt chunk: sampleRate=%d blockAlign=%d", f.SampleRate, f.BlockAlign)
	}

	frames := int64(f.DataSize) / int64(f.BlockAlign)
	return time.Duration(frames * int64(time.Second) / int64(f.SampleRate)), nil
}

// ---------------------------------------------------------------------------
// RTF threshold gate
// ---------------------------------------------------------------------------

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintln(tw, "Run\tCold\tMS\tAudio(ms)\tRTF\tChars\t")
	for _, r := range runs {
		cold := "-"
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.1f\t%.3f\t%d\t\n",
			r.Index+1, cold, ms(r.Duration), ms(r.AudioDuration), r.RTF, r.Chars)
	}
	fmt.Fprintf(tw, "\t(min)\t%.1f\t\t\t\t\n", ms(stats.Min))
	fmt.Fprintf(tw, "\t(mean)\t%.1f\t\t%.3f\t\t\n", ms(stats.Mean), MeanRTF(runs))
	fmt.Fprintf(tw, "\t(max)\t%.1f\t\t\t\t\n", ms(stats.Max))

	_ = tw.Flush()
}

// ms renders d in whole milliseconds.
func ms(d time.Duration) float64 { return float64(d.Milliseconds()) }

// Report is the JSON shape written by FormatJSON.
type Report struct {
	Runs    []ReportRun `json:"runs"`
	Stats   ReportStats `json:"stats"`
	MeanRTF float64     `json:"mean_rtf"`
}

// ReportRun is one timed run in a Report.
type ReportRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	AudioMS    float64 `json:"audio_ms"`
	RTF        float64 `json:"rtf"`
	Chars      int     `json:"chars"`
}

// ReportStats summarises run durations in milliseconds.
type ReportStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// NewReport converts runs and their stats to a Report.
func NewReport(runs []RunResult, stats Stats) Report {
	rep := Report{
		Runs:    make([]ReportRun, 0, len(runs)),
		Stats:   ReportStats{MinMS: ms(stats.Min), MeanMS: ms(stats.Mean), MaxMS: ms(stats.Max)},
		MeanRTF: MeanRTF(runs),
	}
	for _, r := range runs {
		rep.Runs = append(rep.Runs, ReportRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: ms(r.Duration),
			AudioMS:    ms(r.AudioDuration),
			RTF:        r.RTF,
			Chars:      r.Chars,
		})
	}
	return rep
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewReport(runs, stats))
}
