package model

import "time"

// EngagementSnapshot is the scoring input for a single post.
type EngagementSnapshot struct {
	ViewCount      uint64
	LikesCount     uint32
	CommentsCount  uint32
	BookmarksCount uint32
	PublishedAt    *time.Time
}

// IsDraft reports whether the snapshot belongs to an unpublished post.
func (s EngagementSnapshot) IsDraft() bool {
	return s.PublishedAt == nil
}

// AffinitySignals estimate how much a user favors a post. Each value is
// expected in [0,1]; a nil *AffinitySignals means no personalization.
type AffinitySignals struct {
	TagAffinity    float64
	AuthorAffinity float64
	FreshnessBonus float64
}

// RankedResult is one row of a ranked feed.
type RankedResult struct {
	ItemID int64   `json:"item_id"`
	Score  float64 `json:"score"`
}
