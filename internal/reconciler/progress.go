package reconciler

import (
	"sync"
	"time"
)

// Phase names a step of a run
type Phase string

const (
	PhaseValidate  Phase = "validate"
	PhaseNormalize Phase = "normalize"
	PhaseIndex     Phase = "index"
	PhaseScore     Phase = "score"
	PhaseAssign    Phase = "assign"
	PhaseDone      Phase = "done"
)

// phaseOrder lists the phases that do work, in run order
var phaseOrder = []Phase{PhaseValidate, PhaseNormalize, PhaseIndex, PhaseScore, PhaseAssign}

// Progress tracks the progress of a run
type Progress struct {
	Phase              Phase         `json:"phase"`
	CompletedPhases    int           `json:"completed_phases"`
	TotalPhases        int           `json:"total_phases"`
	PercentComplete    float64       `json:"percent_complete"`
	StartTime          time.Time     `json:"start_time"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`

	RecordsScored int `json:"records_scored"`
	TotalRecords  int `json:"total_records"`
	MatchesFound  int `json:"matches_found"`
}

// ProgressCallback is called to report run progress. It may be called from
// scoring goroutines, but never concurrently with itself.
type ProgressCallback func(*Progress)

type progressReporter struct {
	mu        sync.Mutex
	callbacks []ProgressCallback
	current   Progress
}

func newProgressReporter(callbacks []ProgressCallback, start time.Time, totalRecords int) *progressReporter {
	return &progressReporter{
		callbacks: callbacks,
		current: Progress{
			TotalPhases:  len(phaseOrder),
			StartTime:    start,
			TotalRecords: totalRecords,
		},
	}
}

// report records that phase has completed
func (p *progressReporter) report(phase Phase, matches int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current.Phase = phase
	p.current.MatchesFound = matches
	p.current.CompletedPhases = completedPhases(phase)
	p.update(float64(p.current.CompletedPhases))
}

// scored records that done bank records have been scored so far
func (p *progressReporter) scored(done int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current.Phase = PhaseScore
	p.current.RecordsScored = done

	fraction := 1.0
	if p.current.TotalRecords > 0 {
		fraction = float64(done) / float64(p.current.TotalRecords)
	}
	p.update(float64(completedPhases(PhaseIndex)) + fraction)
}

// update sets the percentage from fractional completed phases and notifies
// callbacks. The caller holds the lock.
func (p *progressReporter) update(completed float64) {
	p.current.ElapsedTime = time.Since(p.current.StartTime)
	p.current.PercentComplete = completed / float64(p.current.TotalPhases) * 100

	p.current.EstimatedRemaining = 0
	if completed > 0 && completed < float64(p.current.TotalPhases) {
		perPhase := float64(p.current.ElapsedTime) / completed
		p.current.EstimatedRemaining = time.Duration(perPhase * (float64(p.current.TotalPhases) - completed))
	}

	for _, callback := range p.callbacks {
		snapshot := p.current
		callback(&snapshot)
	}
}

func completedPhases(phase Phase) int {
	if phase == PhaseDone {
		return len(phaseOrder)
	}
	for i, ph := range phaseOrder {
		if ph == phase {
			return i + 1
		}
	}
	return 0
}
