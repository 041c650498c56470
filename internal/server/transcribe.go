package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-voicescribe/internal/transcribe"
)

// UploadField is the multipart field carrying the audio file.
const UploadField = "audio_file"

// multipartOverhead is the room left for multipart headers and boundaries
// on top of the audio payload before the body is cut off.
const multipartOverhead = 1 << 20

// maxMemory is the amount of a multipart body kept in memory before
// spilling parts to temporary files.
const maxMemory = 32 << 20

func (h *handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.New().String()
	w.Header().Set("X-Request-ID", requestID)
	log := h.log.With(slog.String("request_id", requestID))

	status := http.StatusOK
	defer func() {
		h.metrics.ObserveRequest(strconv.Itoa(status), time.Since(start))
	}()
	fail := func(code int, msg string) {
		status = code
		writeError(w, code, msg)
	}

	if r.URL.Path != "/transcribe/" {
		fail(http.StatusNotFound, "Not Found")
		return
	}
	if r.Method != http.MethodPost {
		fail(http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		log.WarnContext(r.Context(), "transcription rate limited")
		fail(http.StatusTooManyRequests, "Too many requests")
		return
	}

	content, filename, err := h.readUpload(w, r)
	if err != nil {
		var tooLarge *uploadTooLargeError
		if errors.As(err, &tooLarge) {
			log.InfoContext(r.Context(), "upload rejected", slog.String("error", err.Error()))
			fail(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File too large. Maximum size is %d bytes", h.opts.maxUploadBytes))
			return
		}
		log.InfoContext(r.Context(), "upload rejected", slog.String("error", err.Error()))
		fail(http.StatusUnprocessableEntity, "Field required: "+UploadField)
		return
	}
	h.metrics.ObserveUpload(len(content))

	log = log.With(slog.String("filename", filename), slog.Int("bytes", len(content)))

	// Acquire a worker slot, honouring cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			fail(http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}
	defer h.metrics.TrackInFlight()()

	ctx := r.Context()
	if h.opts.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.requestTimeout)
		defer cancel()
	}

	recStart := time.Now()
	text, err := h.svc.Transcribe(ctx, content, filename)
	durationMS := time.Since(recStart).Milliseconds()

	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			h.metrics.ObserveRecognizer(h.opts.backend, "timeout")
			log.WarnContext(r.Context(), "transcription timed out",
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			fail(http.StatusGatewayTimeout, "Transcription timed out")
		case errors.Is(err, context.Canceled):
			h.metrics.ObserveRecognizer(h.opts.backend, "cancelled")
			log.WarnContext(r.Context(), "transcription cancelled",
				slog.Int64("duration_ms", durationMS),
			)
			fail(http.StatusServiceUnavailable, "request cancelled")
		case transcribe.IsClientError(err):
			h.metrics.ObserveRecognizer(h.opts.backend, "client_error")
			log.InfoContext(r.Context(), "transcription rejected",
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			fail(http.StatusBadRequest, err.Error())
		default:
			h.metrics.ObserveRecognizer(h.opts.backend, "error")
			log.ErrorContext(r.Context(), "transcription failed",
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			fail(http.StatusInternalServerError, "Transcription failed: "+err.Error())
		}
		return
	}

	h.metrics.ObserveRecognizer(h.opts.backend, "success")
	log.InfoContext(r.Context(), "transcription complete",
		slog.Int64("duration_ms", durationMS),
		slog.Int("text_len", len(text)),
	)

	writeJSON(w, http.StatusOK, map[string]string{"transcription": text})
}

type uploadTooLargeError struct {
	limit int64
}

func (e *uploadTooLargeError) Error() string {
	return fmt.Sprintf("upload exceeds %d bytes", e.limit)
}

// readUpload extracts the audio_file part. Bodies are capped slightly above
// the payload limit so oversized files are rejected without buffering them.
func (h *handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	limit := h.opts.maxUploadBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", &uploadTooLargeError{limit: limit}
		}
		return nil, "", fmt.Errorf("parse form: %w", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, hdr, err := r.FormFile(UploadField)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", UploadField, err)
	}
	defer func() { _ = file.Close() }()

	if limit > 0 && hdr.Size > limit {
		return nil, "", &uploadTooLargeError{limit: limit}
	}

	content, err := readAll(file, limit)
	if err != nil {
		return nil, "", err
	}
	return content, hdr.Filename, nil
}

func readAll(f multipart.File, limit int64) ([]byte, error) {
	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if limit > 0 && int64(len(content)) > limit {
		return nil, &uploadTooLargeError{limit: limit}
	}
	return content, nil
}
