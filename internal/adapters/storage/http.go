package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jobrunner/sceneport/internal/ports/output"
)

// HTTPStorage implements ObjectStorage for files served over HTTP(S). The
// available files are listed in an index file, one key per line.
type HTTPStorage struct {
	client    *http.Client
	baseURL   string
	indexFile string
	username  string
	password  string
}

// HTTPConfig holds HTTP storage configuration.
type HTTPConfig struct {
	BaseURL   string
	IndexFile string // default: index.txt
	Timeout   time.Duration
	Username  string
	Password  string
}

// NewHTTPStorage creates a new HTTP storage adapter.
func NewHTTPStorage(cfg HTTPConfig) *HTTPStorage {
	if cfg.IndexFile == "" {
		cfg.IndexFile = "index.txt"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &HTTPStorage{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		indexFile: cfg.IndexFile,
		username:  cfg.Username,
		password:  cfg.Password,
	}
}

// List returns the location list files named in the index. Each entry is
// stat'ed with HEAD so changed files can be told apart from unchanged ones.
func (s *HTTPStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	resp, err := s.do(ctx, http.MethodGet, s.indexFile)
	if err != nil {
		return nil, storageErr("http", "list", s.indexFile, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, "list", s.indexFile); err != nil {
		return nil, err
	}

	var objects []output.StorageObject
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || !output.IsLocationFile(line) {
			continue
		}
		objects = append(objects, s.stat(ctx, line))
	}
	if err := scanner.Err(); err != nil {
		return nil, storageErr("http", "list", s.indexFile, err)
	}

	return objects, nil
}

// stat fills size, modification time and ETag from a HEAD request. Missing
// headers leave the zero values.
func (s *HTTPStorage) stat(ctx context.Context, key string) output.StorageObject {
	obj := output.StorageObject{Key: key}

	resp, err := s.do(ctx, http.MethodHead, key)
	if err != nil {
		return obj
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return obj
	}

	if resp.ContentLength > 0 {
		obj.Size = resp.ContentLength
	}
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		obj.LastModified = lm.Unix()
	}
	obj.ETag = strings.Trim(resp.Header.Get("ETag"), "\"")
	return obj
}

// Download downloads a file to the local filesystem.
func (s *HTTPStorage) Download(ctx context.Context, key string, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return storageErr("http", "download", key, err)
	}

	body, err := s.GetReader(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	f, err := os.Create(dest) //#nosec G304 -- dest is a controlled local path
	if err != nil {
		return storageErr("http", "download", key, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, body); err != nil {
		return storageErr("http", "download", key, err)
	}
	return nil
}

// GetReader returns a reader for the given file.
func (s *HTTPStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, key)
	if err != nil {
		return nil, storageErr("http", "read", key, err)
	}
	if err := checkStatus(resp, "read", key); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// Exists checks if a file exists via HTTP HEAD request.
func (s *HTTPStorage) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := s.do(ctx, http.MethodHead, key)
	if err != nil {
		return false, storageErr("http", "stat", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, checkStatus(resp, "stat", key)
	}
}

func (s *HTTPStorage) do(ctx context.Context, method, key string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/"+strings.TrimPrefix(key, "/"), nil)
	if err != nil {
		return nil, err
	}
	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	return s.client.Do(req)
}

func checkStatus(resp *http.Response, op, key string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return notFoundErr("http", op, key, fmt.Errorf("HTTP %d", resp.StatusCode))
	default:
		return storageErr("http", op, key, fmt.Errorf("HTTP %d", resp.StatusCode))
	}
}
