package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/jobrunner/sceneport/internal/domain"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}
}

func TestNewLocalStorage(t *testing.T) {
	storage := NewLocalStorage("/tmp/test")

	if storage == nil {
		t.Fatal("NewLocalStorage() returned nil")
	}

	if storage.basePath != "/tmp/test" {
		t.Errorf("basePath = %q, want %q", storage.basePath, "/tmp/test")
	}
}

func TestLocalStorageList(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"sites.csv":          "test",
		"coast.yaml":         "test",
		"subdir/inland.json": "test",
		"subdir/more.YML":    "test",
		"ignored.txt":        "test",
		"also_ignored.gpkg":  "test",
	})

	storage := NewLocalStorage(tmpDir)
	objects, err := storage.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	var keys []string
	for _, obj := range objects {
		keys = append(keys, obj.Key)
		if obj.Size != 4 {
			t.Errorf("object %q size = %d, want 4", obj.Key, obj.Size)
		}
		if obj.LastModified == 0 {
			t.Errorf("object %q LastModified should not be 0", obj.Key)
		}
	}
	sort.Strings(keys)

	want := []string{"coast.yaml", "sites.csv", "subdir/inland.json", "subdir/more.YML"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestLocalStorageListEmpty(t *testing.T) {
	storage := NewLocalStorage(t.TempDir())
	objects, err := storage.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(objects) != 0 {
		t.Errorf("len(objects) = %d, want 0", len(objects))
	}
}

func TestLocalStorageListNonExistent(t *testing.T) {
	storage := NewLocalStorage("/nonexistent/path")
	_, err := storage.List(context.Background())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("List() error = %v, want ErrNotFound", err)
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Backend != "local" || se.Operation != "list" {
		t.Errorf("expected local list StorageError, got %v", err)
	}
}

func TestLocalStorageExists(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{"exists.csv": "a,1,2"})
	storage := NewLocalStorage(tmpDir)

	tests := []struct {
		name     string
		key      string
		expected bool
	}{
		{"existing file", "exists.csv", true},
		{"non-existing file", "nonexistent.csv", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exists, err := storage.Exists(context.Background(), tt.key)
			if err != nil {
				t.Fatalf("Exists() error = %v", err)
			}
			if exists != tt.expected {
				t.Errorf("Exists() = %v, want %v", exists, tt.expected)
			}
		})
	}
}

func TestLocalStorageGetReader(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{"sites.csv": "sf,-122.4,37.8\n"})
	storage := NewLocalStorage(tmpDir)

	reader, err := storage.GetReader(context.Background(), "sites.csv")
	if err != nil {
		t.Fatalf("GetReader() error = %v", err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "sf,-122.4,37.8\n" {
		t.Errorf("content = %q", data)
	}
}

func TestLocalStorageGetReaderErrors(t *testing.T) {
	storage := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	if _, err := storage.GetReader(ctx, "nonexistent.csv"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetReader(missing) error = %v, want ErrNotFound", err)
	}

	for _, key := range []string{"../outside.csv", "a/../../outside.csv", "/etc/passwd"} {
		if _, err := storage.GetReader(ctx, key); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("GetReader(%q) error = %v, want ErrInvalidInput", key, err)
		}
	}
}

func TestLocalStorageDownload(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	writeFiles(t, srcDir, map[string]string{"source.csv": "test content"})

	storage := NewLocalStorage(srcDir)
	destFile := filepath.Join(destDir, "nested", "deep", "dest.csv")

	if err := storage.Download(context.Background(), "source.csv", destFile); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	data, err := os.ReadFile(destFile)
	if err != nil {
		t.Fatalf("failed to read dest file: %v", err)
	}
	if string(data) != "test content" {
		t.Errorf("dest content = %q, want %q", string(data), "test content")
	}
}

func TestLocalStorageDownloadSameFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{"test.csv": "test"})
	storage := NewLocalStorage(tmpDir)

	if err := storage.Download(context.Background(), "test.csv", filepath.Join(tmpDir, "test.csv")); err != nil {
		t.Errorf("Download() same file error = %v", err)
	}
}

func TestLocalStorageDownloadNonExistent(t *testing.T) {
	storage := NewLocalStorage(t.TempDir())
	err := storage.Download(context.Background(), "nonexistent.csv", filepath.Join(t.TempDir(), "dest.csv"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Download() error = %v, want ErrNotFound", err)
	}
}

func TestLocalStorageFullPathAndKeyFor(t *testing.T) {
	storage := NewLocalStorage("/data/inbox")

	tests := []struct {
		key      string
		expected string
	}{
		{"sites.csv", "/data/inbox/sites.csv"},
		{"subdir/nested.yaml", "/data/inbox/subdir/nested.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			path := storage.FullPath(tt.key)
			if path != tt.expected {
				t.Errorf("FullPath(%q) = %q, want %q", tt.key, path, tt.expected)
			}
			key, err := storage.KeyFor(path)
			if err != nil {
				t.Fatalf("KeyFor(%q) error = %v", path, err)
			}
			if key != tt.key {
				t.Errorf("KeyFor(%q) = %q, want %q", path, key, tt.key)
			}
		})
	}

	if _, err := storage.KeyFor("/data/other/sites.csv"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("KeyFor(outside) error = %v, want ErrInvalidInput", err)
	}
}
