package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/example/go-voicescribe/internal/model"
	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Whisper model acquisition commands",
	}

	cmd.AddCommand(newModelDownloadCmd())
	cmd.AddCommand(newModelListCmd())
	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	var (
		name    string
		outDir  string
		hfToken string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a whisper.cpp ggml model from Hugging Face",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hfToken == "" {
				hfToken = os.Getenv("HF_TOKEN")
			}

			path, err := model.Download(cmd.Context(), model.DownloadOptions{
				Model:   name,
				OutDir:  outDir,
				HFToken: hfToken,
				BaseURL: baseURL,
				Stdout:  cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("model download failed: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "use with: --transcribe-backend cli --cli-model-path %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "base.en", "Model name ("+strings.Join(model.KnownModels(), "|")+")")
	cmd.Flags().StringVar(&outDir, "out-dir", "models", "Directory where model files are stored")
	cmd.Flags().StringVar(&hfToken, "hf-token", "", "Hugging Face token (falls back to HF_TOKEN env var)")
	cmd.Flags().StringVar(&baseURL, "hf-base-url", model.DefaultBaseURL, "Hugging Face base URL")

	return cmd
}

func newModelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List downloadable whisper model names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range model.KnownModels() {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", name, model.Filename(name)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
