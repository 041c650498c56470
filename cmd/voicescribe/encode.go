package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-voicescribe/internal/audio"
	"github.com/spf13/cobra"
)

// FormatRawF32LE is interleaved little-endian float32 PCM without a header.
const FormatRawF32LE = "raw-f32le"

type encodeOptions struct {
	in       string
	out      string
	format   string
	rate     int
	channels int
}

func newEncodeCmd() *cobra.Command {
	var opts encodeOptions

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Convert audio into a 16-bit PCM WAV file",
		Long: "Convert audio into a 16-bit PCM WAV file.\n\n" +
			"For raw-f32le input --rate and --channels describe the input layout.\n" +
			"For other formats --rate resamples and --channels 1 downmixes the output.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.in == "" {
				return errors.New("--in is required")
			}
			if opts.out == "" {
				return errors.New("--out is required (use - for stdout)")
			}

			buf, err := loadAudio(opts, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return writeWAV(opts.out, cmd.OutOrStdout(), buf)
		},
	}

	cmd.Flags().StringVar(&opts.in, "in", "", "Input audio file (- for stdin)")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output WAV file (- for stdout)")
	cmd.Flags().StringVar(&opts.format, "format", "", "Input format: raw-f32le|wav|mp3|ogg|flac (default from extension)")
	cmd.Flags().IntVar(&opts.rate, "rate", 0, "Sample rate (required for raw-f32le, resample target otherwise)")
	cmd.Flags().IntVar(&opts.channels, "channels", 0, "Channel count (raw-f32le layout, or 1 to downmix)")

	return cmd
}

// loadAudio reads opts.in and decodes it into a Buffer.
func loadAudio(opts encodeOptions, stdin io.Reader) (audio.Buffer, error) {
	data, err := readInput(opts.in, stdin)
	if err != nil {
		return audio.Buffer{}, err
	}

	format := opts.format
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.in)), ".")
	}
	if format == "" {
		return audio.Buffer{}, errors.New("cannot infer input format; pass --format")
	}

	if format == FormatRawF32LE {
		return decodeRawF32LE(data, opts.channels, opts.rate)
	}

	buf, err := audio.Decode(format, data)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("decode %s: %w", opts.in, err)
	}

	var hooks []audio.Hook
	if opts.channels == 1 {
		hooks = append(hooks, audio.DownmixMono)
	}
	if opts.rate > 0 {
		hooks = append(hooks, audio.Resampler(opts.rate))
	}
	return audio.ApplyHooks(buf, hooks...), nil
}

func decodeRawF32LE(data []byte, channels, rate int) (audio.Buffer, error) {
	if rate <= 0 {
		return audio.Buffer{}, errors.New("--rate is required for raw-f32le input")
	}
	if channels <= 0 {
		channels = 1
	}
	if len(data)%4 != 0 {
		return audio.Buffer{}, fmt.Errorf("raw-f32le input length %d is not a multiple of 4", len(data))
	}

	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return audio.Deinterleave(samples, channels, rate), nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func writeWAV(path string, stdout io.Writer, buf audio.Buffer) error {
	if path == "-" {
		_, err := audio.WriteWAV(stdout, buf)
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := audio.WriteWAV(f, buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return f.Close()
}
