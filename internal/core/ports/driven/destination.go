package driven

import "context"

// Destination resolves an opaque destination reference to a writable
// location and stores export output there.
type Destination interface {
	// Write stores data under filename at the location named by ref and
	// returns the final path. Fails with domain.ErrDestinationUnavailable
	// when the reference has become stale or unauthorized.
	Write(ctx context.Context, data []byte, filename string, ref string) (string, error)
}
