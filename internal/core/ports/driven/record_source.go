package driven

import (
	"context"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

// RecordSource fetches health records from the platform-managed store.
// Implementations live outside this module; the engine only consumes the
// contract.
type RecordSource interface {
	// Fetch returns records for one category inside the window, in ascending
	// start-time order, plus a continuation cursor for the next incremental
	// fetch. A supplied cursor restricts the result to records added since
	// that cursor. limit = 0 means unbounded. A category with no matching
	// records yields an empty result, not an error.
	//
	// Fails with domain.ErrPermissionDenied when access to the category has
	// not been granted, and domain.ErrSourceUnavailable on transient store
	// failures.
	Fetch(ctx context.Context, category domain.Category, window domain.Window, limit int, cursor domain.Cursor) ([]domain.Record, domain.Cursor, error)

	// FetchAssociatedSeries returns the series records (heart rate and the
	// like) recorded during a workout.
	FetchAssociatedSeries(ctx context.Context, workoutID string, window domain.Window) ([]domain.Record, error)
}
