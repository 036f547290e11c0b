package matcher

import (
	"fmt"

	"bank-ledger-reconciler/internal/models"
)

// DuplicateGroup is a set of records on one side that look like the same
// posting entered more than once
type DuplicateGroup struct {
	GroupID   string        `json:"group_id" yaml:"group_id"`
	Source    models.Source `json:"source" yaml:"source"`
	RecordIDs []string      `json:"record_ids" yaml:"record_ids"`
	Reason    string        `json:"reason" yaml:"reason"`
}

type duplicateKey struct {
	amount      string
	day         int64
	description string
}

// DetectDuplicates groups matchable records that share amount, calendar date
// and normalized description. Such records compete for the same partner, so
// at most one of them can be matched. Groups are returned in order of their
// first member.
func DetectDuplicates(records []*models.TransactionRecord) []DuplicateGroup {
	groups := make(map[duplicateKey][]int)
	var order []duplicateKey

	for pos, rec := range records {
		if !rec.Matchable() {
			continue
		}
		key := duplicateKey{
			amount:      rec.Amount.String(),
			day:         models.EpochDay(rec.Date),
			description: rec.NormalizedDescription,
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], pos)
	}

	var out []DuplicateGroup
	for _, key := range order {
		positions := groups[key]
		if len(positions) < 2 {
			continue
		}

		first := records[positions[0]]
		ids := make([]string, len(positions))
		for i, pos := range positions {
			ids[i] = records[pos].ID
		}
		out = append(out, DuplicateGroup{
			GroupID:   fmt.Sprintf("DUP_%s", first.ID),
			Source:    first.Source,
			RecordIDs: ids,
			Reason: fmt.Sprintf("Found %d records with amount %s on %s and the same description",
				len(ids), first.Amount.StringFixed(2), first.Date.Format("2006-01-02")),
		})
	}
	return out
}
