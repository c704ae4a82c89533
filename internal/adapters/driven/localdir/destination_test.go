package localdir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

func TestWriteToRoot(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "exports")
	dest := NewDestination(root)

	path, err := dest.Write(ctx, []byte("payload"), "vitalexport_20260308T020000.json", "")
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteToReference(t *testing.T) {
	ctx := context.Background()
	dest := NewDestination(t.TempDir())
	ref := t.TempDir()

	path, err := dest.Write(ctx, []byte("x"), "out.json", ref)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Dir(path) != ref {
		t.Errorf("path %s not under ref %s", path, ref)
	}
}

func TestWriteStaleReference(t *testing.T) {
	ctx := context.Background()
	dest := NewDestination(t.TempDir())

	_, err := dest.Write(ctx, []byte("x"), "out.json", filepath.Join(t.TempDir(), "revoked"))
	if !errors.Is(err, domain.ErrDestinationUnavailable) {
		t.Errorf("error = %v, want ErrDestinationUnavailable", err)
	}
}
