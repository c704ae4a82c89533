package driven

import (
	"context"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

// SyncStateStore persists the sync state as a whole blob. Loaded once at
// process start and saved after every mutating run so a crash loses at most
// the in-flight run.
type SyncStateStore interface {
	// Load retrieves the persisted state. Returns domain.ErrNotFound when no
	// state has ever been saved.
	Load(ctx context.Context) (*domain.SyncState, error)

	// Save persists the whole state
	Save(ctx context.Context, state *domain.SyncState) error

	// Clear removes the persisted state. Previously written export files are
	// untouched.
	Clear(ctx context.Context) error
}

// ConfigStore persists the export configuration under a well-known key
type ConfigStore interface {
	// Load retrieves the persisted configuration. Returns domain.ErrNotFound
	// when none has been saved.
	Load(ctx context.Context) (*domain.ExportConfiguration, error)

	// Save persists the configuration
	Save(ctx context.Context, cfg *domain.ExportConfiguration) error
}
