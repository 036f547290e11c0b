package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker counts the units of a long-running operation and logs a
// progress line at most once per interval. Add may be called from several
// goroutines.
type ProgressTracker struct {
	logger    Logger
	operation string
	total     int64
	interval  time.Duration
	started   time.Time

	mu      sync.Mutex
	current int64
	logged  time.Time
}

// ProgressConfig configures a ProgressTracker. Total may be zero when the
// size of the operation is unknown.
type ProgressConfig struct {
	Operation   string        `json:"operation" yaml:"operation"`
	Total       int64         `json:"total" yaml:"total"`
	LogInterval time.Duration `json:"log_interval" yaml:"log_interval"`
	Logger      Logger        `json:"-" yaml:"-"`
}

// NewProgressTracker starts tracking an operation
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	log := config.Logger
	if log == nil {
		log = GetGlobalLogger()
	}
	interval := config.LogInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	now := time.Now()
	p := &ProgressTracker{
		logger:    log.WithComponent("progress"),
		operation: config.Operation,
		total:     config.Total,
		interval:  interval,
		started:   now,
		logged:    now,
	}
	p.logger.WithFields(Fields{"operation": p.operation, "total": p.total}).Debug("Starting operation")
	return p
}

// Add records delta more completed units
func (p *ProgressTracker) Add(delta int64) {
	p.mu.Lock()
	p.current += delta
	now := time.Now()
	due := now.Sub(p.logged) >= p.interval
	if due {
		p.logged = now
	}
	stats := p.snapshot(now)
	p.mu.Unlock()

	if due {
		fields := Fields{
			"operation": stats.Operation,
			"processed": stats.Current,
			"rate":      fmt.Sprintf("%.2f/sec", stats.Rate),
		}
		if stats.Total > 0 {
			fields["total"] = stats.Total
			fields["percentage"] = fmt.Sprintf("%.1f%%", stats.Percentage)
		}
		p.logger.WithFields(fields).Info("Progress update")
	}
}

// Complete logs the final statistics of a finished operation
func (p *ProgressTracker) Complete() {
	stats := p.GetStats()
	p.logger.WithFields(stats.fields()).Debug("Operation completed")
}

// CompleteWithError logs the statistics of an operation that stopped early
func (p *ProgressTracker) CompleteWithError(err error) {
	stats := p.GetStats()
	p.logger.WithError(err).WithFields(stats.fields()).Warn("Operation stopped")
}

// GetStats returns the statistics so far
func (p *ProgressTracker) GetStats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(time.Now())
}

// snapshot must be called with mu held
func (p *ProgressTracker) snapshot(now time.Time) ProgressStats {
	ps := ProgressStats{
		Operation: p.operation,
		Total:     p.total,
		Current:   p.current,
		Duration:  now.Sub(p.started),
	}
	if secs := ps.Duration.Seconds(); secs > 0 {
		ps.Rate = float64(p.current) / secs
	}
	if p.total > 0 {
		ps.Percentage = float64(p.current) / float64(p.total) * 100
		if p.current > 0 && ps.Rate > 0 && p.current < p.total {
			ps.ETA = time.Duration(float64(p.total-p.current) / ps.Rate * float64(time.Second))
		}
	}
	return ps
}

// ProgressStats is a point-in-time view of a tracked operation
type ProgressStats struct {
	Operation  string        `json:"operation" yaml:"operation"`
	Total      int64         `json:"total" yaml:"total"`
	Current    int64         `json:"current" yaml:"current"`
	Percentage float64       `json:"percentage" yaml:"percentage"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Rate       float64       `json:"rate" yaml:"rate"`
	ETA        time.Duration `json:"eta,omitempty" yaml:"eta,omitempty"`
}

func (ps ProgressStats) fields() Fields {
	return Fields{
		"operation": ps.Operation,
		"total":     ps.Total,
		"processed": ps.Current,
		"duration":  ps.Duration.String(),
		"rate":      fmt.Sprintf("%.2f/sec", ps.Rate),
	}
}

// String returns a one-line summary
func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d (%.1f%%) at %.2f/sec, ETA: %v",
			ps.Operation, ps.Current, ps.Total, ps.Percentage, ps.Rate, ps.ETA)
	}
	return fmt.Sprintf("%s: %d processed at %.2f/sec, elapsed: %v",
		ps.Operation, ps.Current, ps.Rate, ps.Duration)
}

// OperationLogger provides structured logging for a multi-step operation
// with timing. Fields attached to it are repeated on every step.
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
	stepStart time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	now := time.Now()
	return &OperationLogger{
		logger:    logger,
		operation: operation,
		fields:    Fields{"operation": operation},
		startTime: now,
		stepStart: now,
	}
}

// WithFields adds multiple fields to the operation context
func (ol *OperationLogger) WithFields(fields Fields) *OperationLogger {
	for k, v := range fields {
		ol.fields[k] = v
	}
	return ol
}

// Step logs the end of a step with its own duration and the given fields.
func (ol *OperationLogger) Step(step string, extra Fields) time.Duration {
	now := time.Now()
	elapsed := now.Sub(ol.stepStart)
	ol.stepStart = now

	fields := Fields{"step": step, "step_duration": elapsed.String()}
	for k, v := range ol.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}

	ol.logger.WithFields(fields).Debug("Operation step")
	return elapsed
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string, extra Fields) {
	fields := Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "success",
	}
	for k, v := range ol.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}

	ol.logger.WithFields(fields).Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	fields := Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "error",
	}
	for k, v := range ol.fields {
		fields[k] = v
	}

	ol.logger.WithError(err).WithFields(fields).Error(message)
}
