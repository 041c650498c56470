// Package model fetches whisper.cpp ggml models for the cli recognizer.
package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultBaseURL is the Hugging Face host models are resolved against.
const DefaultBaseURL = "https://huggingface.co"

// LockFile is written into the output directory after each download.
const LockFile = "download-manifest.lock.json"

// progressInterval bounds how often transfer progress is printed.
const progressInterval = 700 * time.Millisecond

type DownloadOptions struct {
	Model   string
	OutDir  string
	HFToken string
	BaseURL string
	Client  *http.Client
	Stdout  io.Writer
}

// AccessDeniedError reports a 401 or 403 from the model host, usually a
// missing or unauthorised token.
type AccessDeniedError struct {
	Repo string
	Msg  string
}

func (e *AccessDeniedError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("access denied for %s", e.Repo)
}

type lockManifest struct {
	Repo      string                `json:"repo"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

func (l lockManifest) pinned(f ModelFile) (string, bool) {
	rec, ok := l.Files[f.Filename]
	if !ok || rec.Revision != f.Revision || !isSHA256Hex(rec.SHA256) {
		return "", false
	}
	return strings.ToLower(rec.SHA256), true
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// hub talks to one Hugging Face repository.
type hub struct {
	client  *http.Client
	baseURL string
	repo    string
	token   string
	out     io.Writer
}

// Download fetches the model named in opts into opts.OutDir, verifying its
// sha256, and returns the local path. Files whose checksum already matches
// are not downloaded again.
func Download(ctx context.Context, opts DownloadOptions) (string, error) {
	if opts.OutDir == "" {
		return "", errors.New("out dir is required")
	}

	manifest, err := ManifestFor(opts.Model)
	if err != nil {
		return "", err
	}

	h := &hub{
		client:  opts.Client,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		repo:    manifest.Repo,
		token:   opts.HFToken,
		out:     opts.Stdout,
	}
	if h.client == nil {
		h.client = &http.Client{}
	}
	if h.baseURL == "" {
		h.baseURL = DefaultBaseURL
	}
	if h.out == nil {
		h.out = io.Discard
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, LockFile)
	lock := loadLock(lockPath)
	lock.Repo = manifest.Repo
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	var dest string
	for _, f := range manifest.Files {
		dest = filepath.Join(opts.OutDir, filepath.FromSlash(f.Filename))
		sum, err := h.fetch(ctx, f, dest, lock)
		if err != nil {
			return "", err
		}
		lock.Files[f.Filename] = lockRecord{Revision: f.Revision, SHA256: sum}
	}

	if err := saveLock(lockPath, lock); err != nil {
		return "", err
	}
	fmt.Fprintf(h.out, "wrote lock manifest: %s\n", lockPath)
	return dest, nil
}

// fetch makes dest hold a verified copy of f and returns its checksum.
func (h *hub) fetch(ctx context.Context, f ModelFile, dest string, lock lockManifest) (string, error) {
	url := h.url(f)

	want := strings.ToLower(f.SHA256)
	if want == "" {
		var ok bool
		if want, ok = lock.pinned(f); !ok {
			var err error
			if want, err = h.checksum(ctx, url, f.Filename); err != nil {
				return "", err
			}
		}
	}

	match, err := existingMatches(dest, want)
	if err != nil {
		return "", err
	}
	if match {
		fmt.Fprintf(h.out, "skip %s (checksum match)\n", f.Filename)
		return want, nil
	}

	fmt.Fprintf(h.out, "download %s@%s -> %s\n", f.Filename, f.Revision, dest)
	got, err := h.get(ctx, url, dest)
	if err != nil {
		return "", err
	}
	if got != want {
		_ = os.Remove(dest)
		return "", fmt.Errorf("checksum mismatch for %s: expected %s got %s", f.Filename, want, got)
	}
	fmt.Fprintf(h.out, "verified %s (sha256=%s)\n", f.Filename, got)
	return got, nil
}

func (h *hub) url(f ModelFile) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", h.baseURL, h.repo, f.Revision, f.Filename)
}

func (h *hub) do(req *http.Request, follow bool) (*http.Response, error) {
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	c := h.client
	if !follow {
		// LFS checksum headers live on the redirect itself.
		nc := *h.client
		nc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
		c = &nc
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, &AccessDeniedError{
			Repo: h.repo,
			Msg:  fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", h.repo),
		}
	}
	return resp, nil
}

// checksum reads the sha256 Hugging Face publishes for an LFS file.
func (h *hub) checksum(ctx context.Context, url, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", fmt.Errorf("build metadata request: %w", err)
	}

	resp, err := h.do(req, false)
	if err != nil {
		var denied *AccessDeniedError
		if errors.As(err, &denied) {
			return "", err
		}
		return "", fmt.Errorf("metadata request failed for %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("metadata request failed for %s: %s", name, resp.Status)
	}

	for _, key := range []string{"X-Linked-Etag", "X-Repo-Commit", "Etag"} {
		if v := normalizeETag(resp.Header.Get(key)); isSHA256Hex(v) {
			return strings.ToLower(v), nil
		}
	}
	return "", fmt.Errorf("unable to resolve sha256 metadata for %s", name)
}

// get streams url into dest through a temp file and returns the sha256 of
// the bytes written.
func (h *hub) get(ctx context.Context, url, dest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := h.do(req, true)
	if err != nil {
		var denied *AccessDeniedError
		if errors.As(err, &denied) {
			return "", err
		}
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("download failed for %s: %s", filepath.Base(dest), resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	sum := sha256.New()
	progress := &progressWriter{out: h.out, total: resp.ContentLength, last: time.Now()}
	if _, err := io.Copy(io.MultiWriter(tmp, sum, progress), resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("download read failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("move temp file into place: %w", err)
	}

	return hex.EncodeToString(sum.Sum(nil)), nil
}

// progressWriter counts bytes and prints a progress line at most every
// progressInterval.
type progressWriter struct {
	out   io.Writer
	total int64
	seen  int64
	last  time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.seen += int64(len(b))
	if time.Since(p.last) < progressInterval {
		return len(b), nil
	}
	p.last = time.Now()

	if p.total > 0 {
		fmt.Fprintf(p.out, "  progress: %.1f%% (%d/%d bytes)\n", float64(p.seen)*100/float64(p.total), p.seen, p.total)
	} else {
		fmt.Fprintf(p.out, "  progress: %d bytes\n", p.seen)
	}
	return len(b), nil
}

func existingMatches(path, want string) (bool, error) {
	fi, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat existing file: %w", err)
	case fi.IsDir():
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return false, fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(sum.Sum(nil)) == want, nil
}

// normalizeETag strips the weak prefix and quotes from an ETag value.
func normalizeETag(v string) string {
	v = strings.Trim(strings.TrimSpace(v), `"`)
	return strings.Trim(strings.TrimPrefix(v, "W/"), `"`)
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

// loadLock reads the lock manifest at path. A missing or corrupt file
// yields an empty manifest.
func loadLock(path string) lockManifest {
	var lock lockManifest
	if b, err := os.ReadFile(path); err == nil {
		if json.Unmarshal(b, &lock) != nil {
			lock = lockManifest{}
		}
	}
	if lock.Files == nil {
		lock.Files = map[string]lockRecord{}
	}
	return lock
}

func saveLock(path string, lock lockManifest) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}
	return nil
}
