package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	Server     ServerConfig     `mapstructure:"server"`
	Transcribe TranscribeConfig `mapstructure:"transcribe"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	CLI        CLIConfig        `mapstructure:"cli"`
	Client     ClientConfig     `mapstructure:"client"`
}

type ServerConfig struct {
	ListenAddr      string  `mapstructure:"listen_addr"`
	MaxUploadBytes  int64   `mapstructure:"max_upload_bytes"`
	Workers         int     `mapstructure:"workers"`
	RequestTimeout  int     `mapstructure:"request_timeout"`
	ShutdownTimeout int     `mapstructure:"shutdown_timeout"`
	RateLimit       float64 `mapstructure:"rate_limit"`
	RateBurst       int     `mapstructure:"rate_burst"`
	StaticDir       string  `mapstructure:"static_dir"`
}

type TranscribeConfig struct {
	Backend    string   `mapstructure:"backend"`
	Formats    []string `mapstructure:"formats"`
	UploadDir  string   `mapstructure:"upload_dir"`
	Archive    bool     `mapstructure:"archive"`
	SampleRate int      `mapstructure:"sample_rate"`
	Mono       bool     `mapstructure:"mono"`
	Language   string   `mapstructure:"language"`
	Model      string   `mapstructure:"model"`
	Prompt     string   `mapstructure:"prompt"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type CLIConfig struct {
	Path      string `mapstructure:"path"`
	ModelPath string `mapstructure:"model_path"`
}

type ClientConfig struct {
	ServerURL string `mapstructure:"server_url"`
	Timeout   int    `mapstructure:"timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			ListenAddr:      ":8000",
			MaxUploadBytes:  10 * 1024 * 1024,
			Workers:         2,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
			RateLimit:       0,
			RateBurst:       5,
			StaticDir:       "",
		},
		Transcribe: TranscribeConfig{
			Backend:    BackendOpenAI,
			Formats:    []string{"wav", "mp3", "ogg", "flac"},
			UploadDir:  "uploads",
			Archive:    false,
			SampleRate: 16000,
			Mono:       true,
			Language:   "",
			Model:      "",
			Prompt:     "",
		},
		OpenAI: OpenAIConfig{
			APIKey:  "",
			BaseURL: "https://api.openai.com/v1",
		},
		CLI: CLIConfig{
			Path:      "",
			ModelPath: "",
		},
		Client: ClientConfig{
			ServerURL: "http://localhost:8000",
			Timeout:   120,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int64("server-max-upload-bytes", defaults.Server.MaxUploadBytes, "Maximum accepted upload size in bytes")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent transcriptions (0 = unlimited)")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request transcription timeout in seconds (0 = no deadline)")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.Float64("server-rate-limit", defaults.Server.RateLimit, "Transcription requests per second (0 = unlimited)")
	fs.Int("server-rate-burst", defaults.Server.RateBurst, "Burst size for --server-rate-limit")
	fs.String("server-static-dir", defaults.Server.StaticDir, "Directory with extra static assets (wavenc.wasm, wasm_exec.js)")
	fs.String("transcribe-backend", defaults.Transcribe.Backend, "Recognizer backend (openai|cli)")
	fs.StringSlice("transcribe-formats", defaults.Transcribe.Formats, "Accepted upload extensions")
	fs.String("transcribe-upload-dir", defaults.Transcribe.UploadDir, "Directory for archived uploads")
	fs.Bool("transcribe-archive", defaults.Transcribe.Archive, "Archive each normalised upload as WAV in the upload dir")
	fs.Int("transcribe-sample-rate", defaults.Transcribe.SampleRate, "Sample rate sent to the recognizer (0 = keep)")
	fs.Bool("transcribe-mono", defaults.Transcribe.Mono, "Downmix uploads to mono before recognition")
	fs.String("transcribe-language", defaults.Transcribe.Language, "Language hint, e.g. en")
	fs.String("transcribe-model", defaults.Transcribe.Model, "Recognizer model override")
	fs.String("transcribe-prompt", defaults.Transcribe.Prompt, "Vocabulary prompt for the recognizer")
	fs.String("openai-api-key", defaults.OpenAI.APIKey, "OpenAI API key")
	fs.String("openai-base-url", defaults.OpenAI.BaseURL, "OpenAI-compatible API base URL")
	fs.String("cli-path", defaults.CLI.Path, "Path to whisper executable")
	fs.String("cli-model-path", defaults.CLI.ModelPath, "Path to whisper model file")
	fs.String("client-server-url", defaults.Client.ServerURL, "Base URL of the transcription server")
	fs.Int("client-timeout", defaults.Client.Timeout, "Upload timeout in seconds")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix("VOICESCRIBE")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("openai.api_key", "VOICESCRIBE_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind api key env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("voicescribe")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	backend, err := NormalizeBackend(cfg.Transcribe.Backend)
	if err != nil {
		return Config{}, err
	}
	cfg.Transcribe.Backend = backend

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_upload_bytes", c.Server.MaxUploadBytes)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit", c.Server.RateLimit)
	v.SetDefault("server.rate_burst", c.Server.RateBurst)
	v.SetDefault("server.static_dir", c.Server.StaticDir)
	v.SetDefault("transcribe.backend", c.Transcribe.Backend)
	v.SetDefault("transcribe.formats", c.Transcribe.Formats)
	v.SetDefault("transcribe.upload_dir", c.Transcribe.UploadDir)
	v.SetDefault("transcribe.archive", c.Transcribe.Archive)
	v.SetDefault("transcribe.sample_rate", c.Transcribe.SampleRate)
	v.SetDefault("transcribe.mono", c.Transcribe.Mono)
	v.SetDefault("transcribe.language", c.Transcribe.Language)
	v.SetDefault("transcribe.model", c.Transcribe.Model)
	v.SetDefault("transcribe.prompt", c.Transcribe.Prompt)
	v.SetDefault("openai.api_key", c.OpenAI.APIKey)
	v.SetDefault("openai.base_url", c.OpenAI.BaseURL)
	v.SetDefault("cli.path", c.CLI.Path)
	v.SetDefault("cli.model_path", c.CLI.ModelPath)
	v.SetDefault("client.server_url", c.Client.ServerURL)
	v.SetDefault("client.timeout", c.Client.Timeout)
}

// flagKeys maps each flag registered by RegisterFlags to its config key.
var flagKeys = map[string]string{
	"log-level":               "log_level",
	"server-listen-addr":      "server.listen_addr",
	"server-max-upload-bytes": "server.max_upload_bytes",
	"server-workers":          "server.workers",
	"server-request-timeout":  "server.request_timeout",
	"server-shutdown-timeout": "server.shutdown_timeout",
	"server-rate-limit":       "server.rate_limit",
	"server-rate-burst":       "server.rate_burst",
	"server-static-dir":       "server.static_dir",
	"transcribe-backend":      "transcribe.backend",
	"transcribe-formats":      "transcribe.formats",
	"transcribe-upload-dir":   "transcribe.upload_dir",
	"transcribe-archive":      "transcribe.archive",
	"transcribe-sample-rate":  "transcribe.sample_rate",
	"transcribe-mono":         "transcribe.mono",
	"transcribe-language":     "transcribe.language",
	"transcribe-model":        "transcribe.model",
	"transcribe-prompt":       "transcribe.prompt",
	"openai-api-key":          "openai.api_key",
	"openai-base-url":         "openai.base_url",
	"cli-path":                "cli.path",
	"cli-model-path":          "cli.model_path",
	"client-server-url":       "client.server_url",
	"client-timeout":          "client.timeout",
}

// bindFlags binds every known flag present in fs to its nested key, so that
// unchanged flags fall through to env, config file and defaults.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
