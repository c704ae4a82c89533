// Package localdir stores export output on the local filesystem.
package localdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
	"github.com/openvitals/vitalexport-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Destination = (*Destination)(nil)

// Destination implements driven.Destination over local directories. The
// empty reference resolves to the configured root; any other reference is a
// directory path that must already exist, mirroring how a revoked or stale
// grant surfaces as a missing location.
type Destination struct {
	root string
}

// NewDestination creates a destination rooted at dir
func NewDestination(dir string) *Destination {
	return &Destination{root: dir}
}

// Write stores data under filename and returns the final path
func (d *Destination) Write(ctx context.Context, data []byte, filename string, ref string) (string, error) {
	dir := d.root
	if ref != "" {
		info, err := os.Stat(ref)
		if err != nil || !info.IsDir() {
			return "", fmt.Errorf("%w: %s", domain.ErrDestinationUnavailable, ref)
		}
		dir = ref
	} else if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
