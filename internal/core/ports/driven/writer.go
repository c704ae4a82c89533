package driven

import "github.com/openvitals/vitalexport-core/internal/core/domain"

// SnapshotWriter serializes an assembled snapshot into one durable output
// format. Writers must be deterministic: identical snapshots produce
// byte-identical output, preserving fetch order.
type SnapshotWriter interface {
	// Format returns the format this writer produces
	Format() domain.ExportFormat

	// FileExtension returns the output filename extension, without the dot
	FileExtension() string

	// Write serializes the snapshot
	Write(snapshot *domain.Snapshot) ([]byte, error)
}
