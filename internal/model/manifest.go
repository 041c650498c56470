package model

import (
	"fmt"
	"slices"
	"strings"
)

// WhisperRepo hosts the ggml conversions of the Whisper checkpoints.
const WhisperRepo = "ggerganov/whisper.cpp"

// DefaultRevision is the branch models are resolved against.
const DefaultRevision = "main"

type Manifest struct {
	Repo  string      `json:"repo"`
	Files []ModelFile `json:"files"`
}

type ModelFile struct {
	Filename string `json:"filename"`
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

// knownModels are the ggml model names published in WhisperRepo.
var knownModels = []string{
	"tiny", "tiny.en",
	"base", "base.en",
	"small", "small.en",
	"medium", "medium.en",
	"large-v1", "large-v2", "large-v3", "large-v3-turbo",
}

// KnownModels returns the model names ManifestFor accepts.
func KnownModels() []string { return slices.Clone(knownModels) }

// Filename returns the file a model is stored as, e.g. ggml-base.en.bin.
func Filename(name string) string { return "ggml-" + name + ".bin" }

// ManifestFor returns the single-file manifest for a whisper model name.
// Checksums are resolved from repository metadata at download time and
// pinned in the local lock manifest.
func ManifestFor(name string) (Manifest, error) {
	name = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(name), "ggml-"), ".bin")
	if !slices.Contains(knownModels, name) {
		return Manifest{}, fmt.Errorf("unknown whisper model %q (known: %s)", name, strings.Join(knownModels, ", "))
	}
	return Manifest{
		Repo: WhisperRepo,
		Files: []ModelFile{{
			Filename: Filename(name),
			Revision: DefaultRevision,
		}},
	}, nil
}
