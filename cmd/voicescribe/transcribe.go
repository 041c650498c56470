package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/go-voicescribe/internal/audio"
	"github.com/example/go-voicescribe/internal/client"
	"github.com/spf13/cobra"
)

func newTranscribeCmd() *cobra.Command {
	var (
		in        string
		format    string
		rate      int
		channels  int
		serverURL string
		saveDir   string
		copyText  bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Upload a recording to the server and print the transcription",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if in == "" {
				return errors.New("--in is required")
			}
			if serverURL == "" {
				serverURL = cfg.Client.ServerURL
			}

			buf, err := loadAudio(encodeOptions{in: in, format: format, rate: rate, channels: channels}, cmd.InOrStdin())
			if err != nil {
				return err
			}
			wav := audio.EncodeWAV(buf)

			c := client.New(serverURL, client.WithTimeout(time.Duration(cfg.Client.Timeout)*time.Second))
			slog.Debug("uploading recording", "server", serverURL, "bytes", len(wav), "duration_s", buf.Duration())

			text, err := c.Transcribe(cmd.Context(), wav)
			if err != nil {
				return err
			}

			if _, err := fmt.Fprintln(cmd.OutOrStdout(), text); err != nil {
				return err
			}

			if saveDir != "" {
				path, err := client.SaveTranscription(saveDir, text)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "saved %s\n", path)
			}

			if copyText {
				if err := client.CopyTranscription(text); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Copied!")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Recording to transcribe (- for stdin)")
	cmd.Flags().StringVar(&format, "format", "", "Input format: raw-f32le|wav|mp3|ogg|flac (default from extension)")
	cmd.Flags().IntVar(&rate, "rate", 0, "Sample rate of raw-f32le input")
	cmd.Flags().IntVar(&channels, "channels", 0, "Channel count of raw-f32le input")
	cmd.Flags().StringVar(&serverURL, "server", "", "Server base URL (default --client-server-url)")
	cmd.Flags().StringVar(&saveDir, "save", "", "Also write transcription.txt into this directory")
	cmd.Flags().BoolVar(&copyText, "copy", false, "Copy the transcription to the clipboard")

	return cmd
}
