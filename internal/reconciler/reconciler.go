// Package reconciler runs one reconciliation of a bank record set against a
// ledger record set.
//
// A run validates its configuration and input, normalizes both sides,
// indexes the ledger, scores candidates for every bank record on a bounded
// worker pool and finally commits a one-to-one match set in a single
// ordered pass. The context is checked between phases and between scoring
// chunks; a cancelled run never returns a partial match set.
//
// Example usage:
//
//	r, err := reconciler.New(matcher.DefaultConfig(), reconciler.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	r.AddProgressCallback(func(p *reconciler.Progress) {
//		fmt.Printf("%s %.0f%%\n", p.Phase, p.PercentComplete)
//	})
//
//	result, err := r.Reconcile(ctx, bank, ledger)
package reconciler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"bank-ledger-reconciler/internal/matcher"
	"bank-ledger-reconciler/internal/models"
	"bank-ledger-reconciler/internal/normalizer"
	"bank-ledger-reconciler/pkg/errors"
	"bank-ledger-reconciler/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config holds run options that do not change matching results
type Config struct {
	// Workers bounds the number of scoring goroutines
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// ChunkSize is the number of bank records scored per task. Cancellation
	// is checked between chunks.
	ChunkSize int `json:"chunk_size" yaml:"chunk_size" mapstructure:"chunk_size"`

	// MaxInputErrors caps how many input validation errors are reported
	MaxInputErrors int `json:"max_input_errors" yaml:"max_input_errors" mapstructure:"max_input_errors"`

	// ProgressInterval is how often the scoring phase logs progress
	ProgressInterval time.Duration `json:"progress_interval" yaml:"progress_interval" mapstructure:"progress_interval"`

	// DetectDuplicates reports suspected duplicate postings on each side
	DetectDuplicates bool `json:"detect_duplicates" yaml:"detect_duplicates" mapstructure:"detect_duplicates"`

	Logger logger.Logger `json:"-" yaml:"-" mapstructure:"-"`
}

// DefaultConfig returns the default run options
func DefaultConfig() *Config {
	return &Config{
		Workers:          runtime.NumCPU(),
		ChunkSize:        256,
		MaxInputErrors:   20,
		ProgressInterval: 5 * time.Second,
		DetectDuplicates: true,
	}
}

// Validate validates the run options
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "workers", c.Workers,
			fmt.Errorf("must be positive"))
	}
	if c.ChunkSize <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "chunk_size", c.ChunkSize,
			fmt.Errorf("must be positive"))
	}
	if c.MaxInputErrors < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_input_errors", c.MaxInputErrors,
			fmt.Errorf("cannot be negative"))
	}
	return nil
}

// Reconciler runs reconciliations with a fixed configuration. Runs share
// nothing mutable, so one Reconciler may serve concurrent runs.
type Reconciler struct {
	matching *matcher.ReconciliationConfig
	config   *Config
	logger   logger.Logger

	progressCallbacks []ProgressCallback
}

// New validates both configurations and creates a reconciler. The matching
// configuration is copied so later changes by the caller do not leak into
// runs.
func New(matching *matcher.ReconciliationConfig, config *Config) (*Reconciler, error) {
	if err := matching.Validate(); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log := config.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Reconciler{
		matching: matching.Clone(),
		config:   config,
		logger:   log.WithComponent("reconciler"),
	}, nil
}

// AddProgressCallback adds a progress callback function. Callbacks must be
// added before the first run.
func (r *Reconciler) AddProgressCallback(callback ProgressCallback) {
	r.progressCallbacks = append(r.progressCallbacks, callback)
}

// MatchingConfig returns a copy of the matching configuration
func (r *Reconciler) MatchingConfig() *matcher.ReconciliationConfig {
	return r.matching.Clone()
}

// run holds the state of one reconciliation
type run struct {
	*Reconciler
	id       string
	start    time.Time
	op       *logger.OperationLogger
	progress *progressReporter

	bank   []*models.TransactionRecord
	ledger []*models.TransactionRecord

	result *Result
}

// Reconcile matches bank records against ledger records. Input slices and
// records are not modified.
//
// An invalid configuration or invalid input (missing or duplicate ids) is
// returned as an error before any record is processed. Malformed records are
// not errors: they are excluded and reported. When ctx is cancelled the
// returned Result holds no matches, every record as unmatched and the
// statistics gathered so far, together with a cancellation error.
func (r *Reconciler) Reconcile(ctx context.Context, bank, ledger []*models.TransactionRecord) (*Result, error) {
	rn := &run{
		Reconciler: r,
		id:         uuid.NewString(),
		start:      time.Now(),
		bank:       bank,
		ledger:     ledger,
	}
	rn.op = logger.NewOperationLogger("reconcile", r.logger).WithFields(logger.Fields{
		"run_id":       rn.id,
		"bank_count":   len(bank),
		"ledger_count": len(ledger),
	})
	rn.progress = newProgressReporter(r.progressCallbacks, rn.start, len(bank))
	rn.result = newResult(rn.id, bank, ledger)

	r.logger.WithFields(logger.Fields{
		"run_id": rn.id,
		"config": r.matching.String(),
	}).Info("Starting reconciliation")

	if err := rn.execute(ctx); err != nil {
		rn.result.Stats.ElapsedTime = time.Since(rn.start)
		if re, ok := errors.AsReconcilerError(err); ok && re.Category == errors.CategoryCancelled {
			rn.op.Error(err, "Reconciliation cancelled")
			return rn.result, err
		}
		rn.op.Error(err, "Reconciliation failed")
		return nil, err
	}

	stats := &rn.result.Stats
	rn.op.Success("Reconciliation completed", logger.Fields{
		"matches":          stats.MatchesFound,
		"unmatched_bank":   stats.UnmatchedBank,
		"unmatched_ledger": stats.UnmatchedLedger,
		"excluded":         stats.ExcludedBank + stats.ExcludedLedger,
		"match_rate":       fmt.Sprintf("%.1f%%", stats.MatchRate*100),
	})
	return rn.result, nil
}

func (rn *run) execute(ctx context.Context) error {
	if err := rn.validateInput(); err != nil {
		return err
	}
	rn.finishPhase(PhaseValidate, nil)

	if err := rn.checkpoint(ctx, PhaseNormalize); err != nil {
		return err
	}
	bank, ledger := rn.normalize()
	rn.finishPhase(PhaseNormalize, logger.Fields{
		"excluded_bank":   rn.result.Stats.ExcludedBank,
		"excluded_ledger": rn.result.Stats.ExcludedLedger,
	})

	if err := rn.checkpoint(ctx, PhaseIndex); err != nil {
		return err
	}
	index := matcher.NewBucketIndex(ledger, rn.matching)
	rn.result.Stats.Index = index.Stats()
	rn.finishPhase(PhaseIndex, logger.Fields{
		"buckets":      rn.result.Stats.Index.Buckets,
		"bucket_width": rn.result.Stats.Index.AmountBucketWidth,
	})

	if err := rn.checkpoint(ctx, PhaseScore); err != nil {
		return err
	}
	candidates, err := rn.score(ctx, bank, index)
	if err != nil {
		return err
	}
	rn.finishPhase(PhaseScore, logger.Fields{
		"evaluated": rn.result.Stats.CandidatesEvaluated,
		"accepted":  len(candidates),
	})

	if err := rn.checkpoint(ctx, PhaseAssign); err != nil {
		return err
	}
	assignment := matcher.Assign(candidates, len(bank), len(ledger))
	rn.result.commit(assignment, bank, ledger)
	rn.finishPhase(PhaseAssign, logger.Fields{"matches": len(assignment.Matches)})

	rn.result.finish(time.Since(rn.start))
	rn.progress.report(PhaseDone, rn.result.Stats.MatchesFound)
	return nil
}

// checkpoint returns a cancellation error when ctx is done before phase
// starts
func (rn *run) checkpoint(ctx context.Context, phase Phase) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	return rn.cancelled(phase, err)
}

func (rn *run) cancelled(phase Phase, cause error) error {
	rn.result.Stats.Cancelled = true
	code := errors.CodeCancelled
	if cause == context.DeadlineExceeded {
		code = errors.CodeDeadline
	}
	return errors.CancelledError(code, string(phase), cause).
		WithContext("run_id", rn.id).
		WithContext("last_phase", string(rn.result.Stats.LastPhase))
}

func (rn *run) finishPhase(phase Phase, extra logger.Fields) {
	rn.result.Stats.PhaseDurations[phase] = rn.op.Step(string(phase), extra)
	rn.result.Stats.LastPhase = phase
	rn.progress.report(phase, rn.result.Stats.MatchesFound)
}

// normalize cleans both sides and records every excluded record
func (rn *run) normalize() ([]*models.TransactionRecord, []*models.TransactionRecord) {
	n := normalizer.New(normalizerConfig(rn.matching))

	bank, bankStats := n.NormalizeAll(rn.bank)
	ledger, ledgerStats := n.NormalizeAll(rn.ledger)
	tagSource(bank, models.SourceBank)
	tagSource(ledger, models.SourceLedger)

	stats := &rn.result.Stats
	stats.BankNormalization = bankStats
	stats.LedgerNormalization = ledgerStats
	rn.result.exclude(bank)
	rn.result.exclude(ledger)

	// Until assignment completes every record is unmatched
	rn.result.UnmatchedBank = bank
	rn.result.UnmatchedLedger = ledger
	stats.UnmatchedBank = len(bank)
	stats.UnmatchedLedger = len(ledger)

	if rn.config.DetectDuplicates {
		rn.result.DuplicateGroups = append(matcher.DetectDuplicates(bank), matcher.DetectDuplicates(ledger)...)
		stats.DuplicateGroups = len(rn.result.DuplicateGroups)
		if stats.DuplicateGroups > 0 {
			rn.logger.WithFields(logger.Fields{
				"run_id":           rn.id,
				"duplicate_groups": stats.DuplicateGroups,
			}).Warn("Suspected duplicate postings found")
		}
	}

	return bank, ledger
}

func normalizerConfig(c *matcher.ReconciliationConfig) normalizer.Config {
	return normalizer.Config{
		AmountPrecision:         c.AmountPrecision,
		PreferMonthFirst:        c.PreferMonthFirst,
		AllowZeroAmounts:        c.AllowZeroAmounts,
		AllowEmptyDescriptions:  c.AllowEmptyDescriptions,
		ExtractDescriptionDates: c.DescriptionDateRescue,
	}
}

func tagSource(records []*models.TransactionRecord, source models.Source) {
	for _, rec := range records {
		rec.Source = source
	}
}

// score generates and scores candidates for every bank record. Chunks run
// on a bounded pool; each writes only its own output slot.
func (rn *run) score(ctx context.Context, bank []*models.TransactionRecord, index *matcher.BucketIndex) ([]matcher.MatchCandidate, error) {
	if len(bank) == 0 || index.Stats().IndexedRecords == 0 {
		return nil, nil
	}

	gen := matcher.NewCandidateGenerator(index, rn.matching)
	scorer := matcher.NewScorer(rn.matching)
	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   "score_candidates",
		Total:       int64(len(bank)),
		LogInterval: rn.config.ProgressInterval,
		Logger:      rn.logger.WithField("run_id", rn.id),
	})

	size := rn.config.ChunkSize
	chunks := (len(bank) + size - 1) / size
	accepted := make([][]matcher.MatchCandidate, chunks)
	counts := make([]matcher.ScoreCounts, chunks)

	var processed sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rn.config.Workers)

	for chunk := 0; chunk < chunks; chunk++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			lo := chunk * size
			hi := min(lo+size, len(bank))
			for pos := lo; pos < hi; pos++ {
				found, c := scorer.ScoreCandidates(pos, bank[pos], gen)
				accepted[chunk] = append(accepted[chunk], found...)
				counts[chunk].Add(c)
			}

			tracker.Add(int64(hi - lo))
			processed.Lock()
			done += hi - lo
			rn.progress.scored(done)
			processed.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	// Counts of completed chunks are kept even when the phase is cut short
	var total matcher.ScoreCounts
	for _, c := range counts {
		total.Add(c)
	}
	rn.result.Stats.addScoreCounts(total)

	if err != nil {
		tracker.CompleteWithError(err)
		return nil, rn.cancelled(PhaseScore, err)
	}
	tracker.Complete()

	var out []matcher.MatchCandidate
	for _, a := range accepted {
		out = append(out, a...)
	}
	return out, nil
}
