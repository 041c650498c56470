package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/go-voicescribe/internal/config"
	"github.com/example/go-voicescribe/internal/metrics"
	"github.com/example/go-voicescribe/internal/transcribe"
	"github.com/example/go-voicescribe/internal/web"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Transcriber turns an uploaded audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, content []byte, filename string) (string, error)
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxUploadBytes int64
	workers        int
	requestTimeout time.Duration
	rateLimit      float64
	rateBurst      int
	staticDir      string
	backend        string
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

func defaultOptions() options {
	return options{
		maxUploadBytes: 10 * 1024 * 1024,
		workers:        2,
		requestTimeout: 60 * time.Second,
		rateBurst:      5,
		backend:        "unknown",
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxUploadBytes sets the largest accepted audio_file size for POST /transcribe/.
func WithMaxUploadBytes(n int64) Option {
	return func(o *options) { o.maxUploadBytes = n }
}

// WithWorkers sets the maximum number of concurrent transcriptions.
// Zero or less disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request transcription deadline.
// A non-positive d disables the deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithRateLimit enables a token bucket of rps requests per second with the
// given burst on POST /transcribe/. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rateLimit = rps
		o.rateBurst = burst
	}
}

// WithStaticDir serves extra files (wavenc.wasm, wasm_exec.js) from dir
// under /static/, in addition to the embedded assets.
func WithStaticDir(dir string) Option {
	return func(o *options) { o.staticDir = dir }
}

// WithBackendName sets the recognizer label used in logs and metrics.
func WithBackendName(name string) Option {
	return func(o *options) { o.backend = name }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records request metrics and exposes them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	svc     Transcriber
	opts    options
	sem     chan struct{} // semaphore for worker pool
	limiter *rate.Limiter
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns an http.Handler that serves the recorder page, its
// static assets, /health, /metrics and POST /transcribe/.
func NewHandler(svc Transcriber, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.metrics == nil {
		opts.metrics = metrics.New()
	}

	h := &handler{
		svc:     svc,
		opts:    opts,
		log:     opts.logger,
		metrics: opts.metrics,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}
	if opts.rateLimit > 0 {
		burst := opts.rateBurst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.rateLimit), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleIndex)
	mux.Handle("/static/", http.StripPrefix("/static/", staticHandler(opts.staticDir)))
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/metrics", h.metrics.Handler())
	mux.HandleFunc("/transcribe/", h.handleTranscribe)
	return withCORS(mux)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	page, err := fs.ReadFile(web.Static(), web.IndexFile)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Template rendering failed: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
		"backend": h.opts.backend,
	})
}

// staticHandler serves files from dir when present there and falls back to
// the embedded assets.
func staticHandler(dir string) http.Handler {
	embedded := http.FileServerFS(web.Static())
	if dir == "" {
		return embedded
	}
	disk := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			if strings.HasSuffix(name, ".wasm") {
				w.Header().Set("Content-Type", "application/wasm")
			}
			disk.ServeHTTP(w, r)
			return
		}
		embedded.ServeHTTP(w, r)
	})
}

// withCORS allows any origin, method and header, answering preflight
// requests directly.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			hdr.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				hdr.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				hdr.Set("Access-Control-Allow-Headers", "*")
			}
			hdr.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	svc             *transcribe.Service
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New creates a Server. When svc is nil Start builds the recognizer and
// service from cfg.
func New(cfg config.Config, svc *transcribe.Service) *Server {
	shutdown := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		shutdown = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}
	return &Server{
		cfg:             cfg,
		svc:             svc,
		logger:          slog.Default(),
		shutdownTimeout: shutdown,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger sets the logger passed to the handler and service.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	if l != nil {
		s.logger = l
	}
	return s
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	svc, err := s.service()
	if err != nil {
		return err
	}

	h := NewHandler(svc,
		WithMaxUploadBytes(s.cfg.Server.MaxUploadBytes),
		WithWorkers(s.cfg.Server.Workers),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
		WithRateLimit(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst),
		WithStaticDir(s.cfg.Server.StaticDir),
		WithBackendName(svc.Recognizer().Name()),
		WithLogger(s.logger),
		WithMetrics(metrics.New()),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("server listening",
		slog.String("addr", s.cfg.Server.ListenAddr),
		slog.String("backend", svc.Recognizer().Name()),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func (s *Server) service() (*transcribe.Service, error) {
	if s.svc != nil {
		return s.svc, nil
	}

	rec, err := transcribe.NewRecognizer(s.cfg)
	if err != nil {
		return nil, err
	}
	svc, err := transcribe.NewService(s.cfg.Transcribe, rec, transcribe.WithServiceLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("initialize transcription service: %w", err)
	}
	return svc, nil
}

// ProbeHTTP checks that a server at addr answers GET /health with 200.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
