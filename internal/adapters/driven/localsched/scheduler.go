// Package localsched is a timer-based wakeup scheduler for hosts without a
// platform background-task facility. Wakeups fire while the process runs and
// are lost when it exits, which is exactly the best-effort contract the
// coordinator is built to tolerate.
package localsched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
	"github.com/openvitals/vitalexport-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.WakeupScheduler = (*Scheduler)(nil)

// Scheduler polls for due wakeups and invokes the registered handler with a
// deadline context.
type Scheduler struct {
	logger *slog.Logger

	// Internal state
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	handlers map[string]driven.WakeupHandler
	pending  map[string]time.Time

	interval time.Duration
	budget   time.Duration
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Logger        *slog.Logger
	PollInterval  time.Duration // How often to check for due wakeups (default: 1s)
	HandlerBudget time.Duration // Deadline granted to each handler invocation (default: 30s)
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.PollInterval
	if interval == 0 {
		interval = time.Second
	}
	budget := cfg.HandlerBudget
	if budget == 0 {
		budget = 30 * time.Second
	}

	return &Scheduler{
		logger:   logger,
		handlers: make(map[string]driven.WakeupHandler),
		pending:  make(map[string]time.Time),
		interval: interval,
		budget:   budget,
	}
}

// Register installs the handler for a task identifier
func (s *Scheduler) Register(taskID string, handler driven.WakeupHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskID] = handler
	return nil
}

// RequestWakeup asks for a future invocation no earlier than notBefore.
// A request for an already-pending task replaces the earlier request.
func (s *Scheduler) RequestWakeup(taskID string, notBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[taskID]; !ok {
		return fmt.Errorf("%w: no handler registered for task %q", domain.ErrInvalidInput, taskID)
	}
	s.pending[taskID] = notBefore
	return nil
}

// Start begins the wakeup loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("wakeup scheduler starting", "poll_interval", s.interval)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for the loop to finish
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("wakeup scheduler stopped")
}

// run is the main polling loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("wakeup scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

// fireDue invokes the handler of every pending wakeup whose time has come.
// Each invocation gets its own deadline context; the handler reports its
// outcome through the completion callback.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []string
	for taskID, notBefore := range s.pending {
		if !notBefore.After(now) {
			due = append(due, taskID)
		}
	}
	handlers := make(map[string]driven.WakeupHandler, len(due))
	for _, taskID := range due {
		delete(s.pending, taskID)
		handlers[taskID] = s.handlers[taskID]
	}
	s.mu.Unlock()

	for _, taskID := range due {
		s.invoke(ctx, taskID, handlers[taskID])
	}
}

func (s *Scheduler) invoke(ctx context.Context, taskID string, handler driven.WakeupHandler) {
	handlerCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	s.logger.Info("firing wakeup", "task_id", taskID)

	var once sync.Once
	handler(handlerCtx, func(success bool) {
		once.Do(func() {
			s.logger.Info("wakeup completed", "task_id", taskID, "success", success)
		})
	})
}
