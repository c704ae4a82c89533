package driven

import (
	"context"
	"time"
)

// WakeupHandler runs when the platform grants background execution time.
// ctx carries the platform's hard deadline. The handler must call complete
// exactly once before the deadline or the platform reports failure on its
// behalf.
type WakeupHandler func(ctx context.Context, complete func(success bool))

// WakeupScheduler is the opportunistic background-execution scheduler the
// platform provides. Wakeups are best effort: a requested wakeup may fire
// late or not at all, which is why the coordinator keeps a foreground
// fallback path.
type WakeupScheduler interface {
	// Register installs the handler for a task identifier. Must be called
	// before the first RequestWakeup.
	Register(taskID string, handler WakeupHandler) error

	// RequestWakeup asks for a future invocation no earlier than notBefore
	RequestWakeup(taskID string, notBefore time.Time) error
}
