package matcher

import (
	"sort"

	"bank-ledger-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// minAmountBucketWidth is one minor currency unit
var minAmountBucketWidth = decimal.New(1, -2)

// BucketKey identifies an index bucket: rounded amount magnitude over the
// bucket width and the date's epoch day over the date bucket size.
type BucketKey struct {
	Amount int64
	Date   int64
}

// BucketIndex makes candidate lookup sub-quadratic. Records are addressed by
// their position in the slice the index was built from, so positions double
// as claim slots during assignment. The index is read-only after
// construction and safe for concurrent lookups.
type BucketIndex struct {
	// Records holds every record given to the index, matchable or not
	Records []*models.TransactionRecord

	buckets       map[BucketKey][]int
	amountBuckets []int64

	// periodic holds the subset of records whose description matches a
	// periodic pattern, so that wide date windows stay cheap
	periodic        map[BucketKey][]int
	periodicAmounts []int64

	amountWidth    decimal.Decimal
	dateBucketDays int64

	indexed                int
	skipped                int
	periodicCount          int
	descriptionDateEntries int
}

// IndexStats provides statistics about an index
type IndexStats struct {
	TotalRecords           int     `json:"total_records"`
	IndexedRecords         int     `json:"indexed_records"`
	SkippedRecords         int     `json:"skipped_records"`
	Buckets                int     `json:"buckets"`
	AmountBuckets          int     `json:"amount_buckets"`
	PeriodicRecords        int     `json:"periodic_records"`
	DescriptionDateEntries int     `json:"description_date_entries"`
	AmountBucketWidth      string  `json:"amount_bucket_width"`
	DateBucketDays         int64   `json:"date_bucket_days"`
	AverageBucketSize      float64 `json:"average_bucket_size"`
}

// NewBucketIndex builds an index over records in O(n). Records that are not
// matchable (invalid date or any normalization issue) keep their position
// but are never placed in a bucket. An empty input yields an empty index.
func NewBucketIndex(records []*models.TransactionRecord, config *ReconciliationConfig) *BucketIndex {
	idx := &BucketIndex{
		Records:        records,
		buckets:        make(map[BucketKey][]int),
		periodic:       make(map[BucketKey][]int),
		amountWidth:    AmountBucketWidth(records, config),
		dateBucketDays: int64(config.DateToleranceDays),
	}

	mainAmounts := make(map[int64]struct{})
	periodicAmounts := make(map[int64]struct{})

	for pos, rec := range records {
		if !rec.Matchable() {
			idx.skipped++
			continue
		}
		idx.indexed++

		amountKey := idx.amountKey(rec.AbsAmount())
		keys := []BucketKey{{Amount: amountKey, Date: idx.dateKey(models.EpochDay(rec.Date))}}
		if config.DescriptionDateRescue && rec.HasDescriptionDate() {
			alt := BucketKey{Amount: amountKey, Date: idx.dateKey(models.EpochDay(rec.DescriptionDate))}
			if alt != keys[0] {
				keys = append(keys, alt)
				idx.descriptionDateEntries++
			}
		}

		_, isPeriodic := config.PeriodicPatternFor(rec.NormalizedDescription)
		if isPeriodic {
			idx.periodicCount++
		}

		for _, key := range keys {
			idx.buckets[key] = append(idx.buckets[key], pos)
			mainAmounts[key.Amount] = struct{}{}
			if isPeriodic {
				idx.periodic[key] = append(idx.periodic[key], pos)
				periodicAmounts[key.Amount] = struct{}{}
			}
		}
	}

	idx.amountBuckets = sortedKeys(mainAmounts)
	idx.periodicAmounts = sortedKeys(periodicAmounts)
	return idx
}

func sortedKeys(set map[int64]struct{}) []int64 {
	keys := make([]int64, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// AmountBucketWidth returns the configured width, or derives one from the
// amount tolerance applied to the median magnitude of the matchable records,
// never narrower than one minor unit.
func AmountBucketWidth(records []*models.TransactionRecord, config *ReconciliationConfig) decimal.Decimal {
	if config.AmountBucketWidth > 0 {
		w := decimal.NewFromFloat(config.AmountBucketWidth)
		if w.LessThan(minAmountBucketWidth) {
			return minAmountBucketWidth
		}
		return w
	}

	var magnitudes []decimal.Decimal
	for _, rec := range records {
		if rec.Matchable() {
			magnitudes = append(magnitudes, rec.AbsAmount())
		}
	}
	if len(magnitudes) == 0 {
		return minAmountBucketWidth
	}

	sort.Slice(magnitudes, func(i, j int) bool { return magnitudes[i].LessThan(magnitudes[j]) })
	median := magnitudes[len(magnitudes)/2]
	if len(magnitudes)%2 == 0 {
		median = median.Add(magnitudes[len(magnitudes)/2-1]).Div(decimal.NewFromInt(2))
	}

	width := median.Mul(decimal.NewFromFloat(config.AmountToleranceFraction())).Round(2)
	if width.LessThan(minAmountBucketWidth) {
		return minAmountBucketWidth
	}
	return width
}

func (idx *BucketIndex) amountKey(magnitude decimal.Decimal) int64 {
	return magnitude.Div(idx.amountWidth).Round(0).IntPart()
}

func (idx *BucketIndex) dateKey(epochDay int64) int64 {
	// floor division so that dates before the epoch land in the right bucket
	q := epochDay / idx.dateBucketDays
	if epochDay%idx.dateBucketDays != 0 && epochDay < 0 {
		q--
	}
	return q
}

// Len returns the number of records the index was built from
func (idx *BucketIndex) Len() int {
	return len(idx.Records)
}

// KeyFor returns the bucket key of a record's posting date and amount
func (idx *BucketIndex) KeyFor(rec *models.TransactionRecord) BucketKey {
	return BucketKey{
		Amount: idx.amountKey(rec.AbsAmount()),
		Date:   idx.dateKey(models.EpochDay(rec.Date)),
	}
}

// Bucket returns the positions stored under key
func (idx *BucketIndex) Bucket(key BucketKey) []int {
	return idx.buckets[key]
}

// lookup visits every position stored in the occupied amount buckets
// between loAmount and hiAmount inclusive and the date buckets within
// dateRadius of dateKey. Positions may repeat across calls.
func (idx *BucketIndex) lookup(periodicOnly bool, loAmount, hiAmount, dateKey, dateRadius int64, visit func(pos int)) {
	buckets, amounts := idx.buckets, idx.amountBuckets
	if periodicOnly {
		buckets, amounts = idx.periodic, idx.periodicAmounts
	}

	start := sort.Search(len(amounts), func(i int) bool { return amounts[i] >= loAmount })
	for i := start; i < len(amounts) && amounts[i] <= hiAmount; i++ {
		for d := dateKey - dateRadius; d <= dateKey+dateRadius; d++ {
			for _, pos := range buckets[BucketKey{Amount: amounts[i], Date: d}] {
				visit(pos)
			}
		}
	}
}

// Stats returns statistics about the index
func (idx *BucketIndex) Stats() IndexStats {
	stats := IndexStats{
		TotalRecords:           len(idx.Records),
		IndexedRecords:         idx.indexed,
		SkippedRecords:         idx.skipped,
		Buckets:                len(idx.buckets),
		AmountBuckets:          len(idx.amountBuckets),
		PeriodicRecords:        idx.periodicCount,
		DescriptionDateEntries: idx.descriptionDateEntries,
		AmountBucketWidth:      idx.amountWidth.String(),
		DateBucketDays:         idx.dateBucketDays,
	}
	if len(idx.buckets) > 0 {
		stats.AverageBucketSize = float64(idx.indexed+idx.descriptionDateEntries) / float64(len(idx.buckets))
	}
	return stats
}
