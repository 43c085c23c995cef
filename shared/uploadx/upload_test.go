package uploadx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalUploaderWritesFileAndReturnsURL(t *testing.T) {
	dir := t.TempDir()
	uploader, err := NewLocalUploader(dir, "http://localhost:8080/uploads")
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}

	url, err := uploader.Upload(context.Background(), "banner.png", "image/png", strings.NewReader("fake-png-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:8080/uploads/") {
		t.Fatalf("unexpected url %q", url)
	}
	if !strings.HasSuffix(url, ".png") {
		t.Fatalf("extension should be preserved, got %q", url)
	}

	name := url[strings.LastIndex(url, "/")+1:]
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "fake-png-bytes" {
		t.Fatalf("stored content mismatch: %q", data)
	}
}

func TestLocalUploaderRequiresDir(t *testing.T) {
	if _, err := NewLocalUploader("", ""); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
