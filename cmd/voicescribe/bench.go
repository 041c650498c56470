package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/go-voicescribe/internal/audio"
	"github.com/example/go-voicescribe/internal/bench"
	"github.com/example/go-voicescribe/internal/client"
	"github.com/example/go-voicescribe/internal/transcribe"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		in           string
		inFormat     string
		runs         int
		format       string
		rtfThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark recognition latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if in == "" {
				return errors.New("--in is required for bench")
			}
			if runs < 1 {
				return errors.New("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return errors.New("--format must be 'table' or 'json'")
			}

			buf, err := loadAudio(encodeOptions{in: in, format: inFormat}, cmd.InOrStdin())
			if err != nil {
				return err
			}
			wav := audio.EncodeWAV(buf)

			audioDur, err := bench.WAVDuration(wav)
			if err != nil {
				return err
			}

			rec, err := transcribe.NewRecognizer(cfg)
			if err != nil {
				return err
			}
			svc, err := transcribe.NewService(cfg.Transcribe, rec)
			if err != nil {
				return err
			}

			slog.Debug("bench starting", "backend", rec.Name(), "runs", runs, "audio_ms", audioDur.Milliseconds())

			results, err := bench.Run(cmd.Context(), runs, audioDur, func(ctx context.Context) (string, error) {
				return svc.Transcribe(ctx, wav, client.UploadFilename)
			})
			if err != nil {
				return err
			}

			stats := bench.StatsOf(results)
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				if err := bench.FormatJSON(results, stats, out); err != nil {
					return err
				}
			default:
				bench.FormatTable(results, stats, out)
			}

			return bench.CheckRTFThreshold(bench.MeanRTF(results), rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Recording to recognize on each run (required)")
	cmd.Flags().StringVar(&inFormat, "in-format", "", "Input format (default from extension)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of recognition runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")

	return cmd
}
