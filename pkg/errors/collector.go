package errors

import (
	"fmt"
	"strings"
)

// Collector gathers validation errors over a batch of input so that all of
// them can be reported together instead of stopping at the first one.
type Collector struct {
	errors    []*ReconcilerError
	maxErrors int
	dropped   int
}

// NewCollector creates a collector that keeps at most maxErrors errors.
// A non-positive maxErrors keeps everything.
func NewCollector(maxErrors int) *Collector {
	return &Collector{maxErrors: maxErrors}
}

// Add records err. Nil errors are ignored.
func (c *Collector) Add(err *ReconcilerError) {
	if err == nil {
		return
	}
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		c.dropped++
		return
	}
	c.errors = append(c.errors, err)
}

// HasErrors returns true if any errors have been collected
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Count returns the number of errors seen, including those over the limit.
func (c *Collector) Count() int {
	return len(c.errors) + c.dropped
}

// Errors returns the retained errors
func (c *Collector) Errors() []*ReconcilerError {
	return c.errors
}

// Summary returns an error summary for all retained errors
func (c *Collector) Summary() *ErrorSummary {
	return NewErrorSummary(c.errors)
}

// Err folds the collected errors into a single error, or nil when there are
// none. A single error is returned as is; several become one validation
// error that carries the summary in its context.
func (c *Collector) Err() error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		if c.dropped == 0 {
			return c.errors[0]
		}
	}

	summary := c.Summary()
	first := c.errors[0]
	result := New(first.Category, first.Code, fmt.Sprintf("%d input problems: %s", c.Count(), joinMessages(c.errors, 3)))
	result.Cause = first
	return result.
		WithSuggestion(first.Suggestion).
		WithContext("summary", summary)
}

func joinMessages(errs []*ReconcilerError, limit int) string {
	var parts []string
	for i, err := range errs {
		if i == limit {
			parts = append(parts, fmt.Sprintf("and %d more", len(errs)-limit))
			break
		}
		parts = append(parts, err.Message)
	}
	return strings.Join(parts, "; ")
}
