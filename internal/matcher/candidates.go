package matcher

import (
	"math"
	"sort"

	"bank-ledger-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// CandidateGenerator finds the indexed records worth scoring against a query
// record. It holds no mutable state and may be shared between goroutines.
type CandidateGenerator struct {
	index      *BucketIndex
	config     *ReconciliationConfig
	baseRadius int64
	wideRadius int64
}

// NewCandidateGenerator creates a generator over index
func NewCandidateGenerator(index *BucketIndex, config *ReconciliationConfig) *CandidateGenerator {
	return &CandidateGenerator{
		index:      index,
		config:     config,
		baseRadius: dateRadius(config.DateToleranceDays, index.dateBucketDays),
		wideRadius: dateRadius(config.WidestPeriodicTolerance(), index.dateBucketDays),
	}
}

// dateRadius is the number of neighbouring date buckets needed to cover a
// tolerance, rounded up
func dateRadius(toleranceDays int, bucketDays int64) int64 {
	if bucketDays <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(toleranceDays) / float64(bucketDays)))
}

// amountRange returns the inclusive amount bucket range that can hold a
// magnitude scoring above zero against the query, widened by one adjacent
// bucket on each side
func (g *CandidateGenerator) amountRange(magnitude decimal.Decimal) (int64, int64) {
	t := g.config.AmountToleranceFraction()
	keep := decimal.NewFromFloat(1 - t)

	lo := g.index.amountKey(magnitude.Mul(keep)) - 1
	if t >= 1 {
		return lo, math.MaxInt64
	}
	hi := g.index.amountKey(magnitude.Div(keep)) + 1
	return lo, hi
}

// amountDistance is the amount difference the scorer sees for the pair. In
// AUTO mode an opposite-sign pair is as close as its sum.
func (g *CandidateGenerator) amountDistance(a1, a2 decimal.Decimal) decimal.Decimal {
	diff := a1.Sub(a2).Abs()
	if g.config.SignConventionMode != SignAuto {
		return diff
	}
	return decimal.Min(diff, a1.Add(a2).Abs())
}

type rankedCandidate struct {
	pos      int
	distance decimal.Decimal
	days     int
}

// CandidatePositions returns positions in the index for the records that
// should be scored against rec, nearest amount first, at most
// MaxCandidatesPerTransaction of them. A record that is not matchable, or
// that has no neighbours, gets an empty result.
func (g *CandidateGenerator) CandidatePositions(rec *models.TransactionRecord) []int {
	if !rec.Matchable() || len(g.index.buckets) == 0 {
		return nil
	}

	magnitude := rec.AbsAmount()
	lo, hi := g.amountRange(magnitude)

	days := []int64{models.EpochDay(rec.Date)}
	if g.config.DescriptionDateRescue && rec.HasDescriptionDate() {
		days = append(days, models.EpochDay(rec.DescriptionDate))
	}
	_, periodic := g.config.PeriodicPatternFor(rec.NormalizedDescription)

	seen := make(map[int]struct{})
	var ranked []rankedCandidate
	collect := func(pos int) {
		if _, dup := seen[pos]; dup {
			return
		}
		seen[pos] = struct{}{}
		other := g.index.Records[pos]
		ranked = append(ranked, rankedCandidate{
			pos:      pos,
			distance: g.amountDistance(rec.Amount, other.Amount),
			days:     models.DaysApart(rec.Date, other.Date),
		})
	}

	for _, day := range days {
		key := g.index.dateKey(day)
		if periodic {
			g.index.lookup(false, lo, hi, key, g.wideRadius, collect)
			continue
		}
		g.index.lookup(false, lo, hi, key, g.baseRadius, collect)
		if g.wideRadius > g.baseRadius {
			g.index.lookup(true, lo, hi, key, g.wideRadius, collect)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if c := ranked[i].distance.Cmp(ranked[j].distance); c != 0 {
			return c < 0
		}
		if ranked[i].days != ranked[j].days {
			return ranked[i].days < ranked[j].days
		}
		return ranked[i].pos < ranked[j].pos
	})

	if limit := g.config.MaxCandidatesPerTransaction; len(ranked) > limit {
		ranked = ranked[:limit]
	}

	positions := make([]int, len(ranked))
	for i, c := range ranked {
		positions[i] = c.pos
	}
	return positions
}

// Candidates returns the candidate records for rec in ranked order
func (g *CandidateGenerator) Candidates(rec *models.TransactionRecord) []*models.TransactionRecord {
	positions := g.CandidatePositions(rec)
	out := make([]*models.TransactionRecord, len(positions))
	for i, pos := range positions {
		out[i] = g.index.Records[pos]
	}
	return out
}
