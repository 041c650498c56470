package config

import (
	"fmt"
	"strings"
)

const (
	BackendOpenAI = "openai"
	BackendCLI    = "cli"
)

func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendOpenAI
	}
	switch backend {
	case BackendOpenAI, BackendCLI:
		return backend, nil
	case "whisper", "whisper-cpp":
		return BackendCLI, nil
	default:
		return "", fmt.Errorf(
			"invalid backend %q (expected %s|%s|whisper)",
			raw,
			BackendOpenAI,
			BackendCLI,
		)
	}
}
