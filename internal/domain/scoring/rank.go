package scoring

import (
	"cmp"
	"slices"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

// Candidate is one post offered for ranking.
type Candidate struct {
	// ItemID is the stable secondary key used to break score ties.
	ItemID   int64
	Snapshot model.EngagementSnapshot
	Affinity *model.AffinitySignals
}

// Rank scores candidates under strategy and returns them ordered by score
// descending, then ItemID ascending. Drafts are left out.
func Rank(candidates []Candidate, strategy Strategy, period Period, now time.Time) ([]model.RankedResult, error) {
	results := make([]model.RankedResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Snapshot.IsDraft() {
			continue
		}
		score, err := ComputeScore(Request{
			Strategy: strategy,
			Snapshot: c.Snapshot,
			Affinity: c.Affinity,
			Period:   period,
			Now:      now,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, model.RankedResult{ItemID: c.ItemID, Score: score})
	}
	SortResults(results)
	return results, nil
}

// SortResults orders results by score descending with ItemID ascending as
// the tie-break, so pagination over equal scores is deterministic.
func SortResults(results []model.RankedResult) {
	slices.SortStableFunc(results, func(a, b model.RankedResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ItemID, b.ItemID)
	})
}
