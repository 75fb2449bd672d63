package logger

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// StageStats holds the timing and record count of one pipeline stage
type StageStats struct {
	Name     string        `json:"name"`
	Records  int64         `json:"records"`
	Duration time.Duration `json:"duration"`
}

// String returns a human-readable representation of the stage
func (s StageStats) String() string {
	return fmt.Sprintf("%s: %d records in %v", s.Name, s.Records, s.Duration)
}

// StageTracker times the stages of a reconciliation run. Stages of the two
// sides may run concurrently, so counters are atomic and the stage list is
// guarded.
type StageTracker struct {
	logger    Logger
	operation string
	startTime time.Time
	processed atomic.Int64

	mu     sync.Mutex
	stages []StageStats
}

// NewStageTracker creates a tracker for one run
func NewStageTracker(operation string, logger Logger) *StageTracker {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	return &StageTracker{
		logger:    logger.WithComponent("stages"),
		operation: operation,
		startTime: time.Now(),
	}
}

// Stage runs fn as a named stage. fn reports how many records it handled.
func (t *StageTracker) Stage(name string, fn func() (int, error)) error {
	start := time.Now()
	n, err := fn()
	elapsed := time.Since(start)

	t.processed.Add(int64(n))

	t.mu.Lock()
	t.stages = append(t.stages, StageStats{Name: name, Records: int64(n), Duration: elapsed})
	t.mu.Unlock()

	fields := Fields{
		"operation": t.operation,
		"stage":     name,
		"records":   n,
		"duration":  elapsed.String(),
	}
	if err != nil {
		t.logger.WithError(err).WithFields(fields).Warn("Stage failed")
		return err
	}
	t.logger.WithFields(fields).Debug("Stage completed")
	return nil
}

// Processed returns the number of records handled by all stages so far
func (t *StageTracker) Processed() int64 {
	return t.processed.Load()
}

// Stages returns a copy of the recorded stages in completion order
func (t *StageTracker) Stages() []StageStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]StageStats, len(t.stages))
	copy(out, t.stages)
	return out
}

// Elapsed returns the time since the tracker was created
func (t *StageTracker) Elapsed() time.Duration {
	return time.Since(t.startTime)
}

// Complete logs the final statistics of the run
func (t *StageTracker) Complete() {
	t.logger.WithFields(Fields{
		"operation": t.operation,
		"stages":    len(t.Stages()),
		"processed": t.Processed(),
		"duration":  t.Elapsed().String(),
	}).Info("Operation completed")
}
