// Package model contains domain models passed between layers.
package model

import "time"

// Post is the persisted content item. The persistence layer owns it; the
// ingestion pipeline only touches ViewCount and the scoring engine only
// reads the engagement counters.
type Post struct {
	ID             int32
	AuthorID       int32
	TagIDs         []int32
	ViewCount      uint64
	LikesCount     uint32
	CommentsCount  uint32
	BookmarksCount uint32
	PublishedAt    *time.Time // nil while the post is a draft
	UpdatedAt      time.Time
}

// IncrementViewCount adds a single view to the in-memory counter.
func (p *Post) IncrementViewCount() {
	p.ViewCount++
}

// IsDraft reports whether the post has not been published yet.
func (p *Post) IsDraft() bool {
	return p.PublishedAt == nil
}

// Snapshot returns the read-only engagement view used for scoring.
func (p *Post) Snapshot() EngagementSnapshot {
	return EngagementSnapshot{
		ViewCount:      p.ViewCount,
		LikesCount:     p.LikesCount,
		CommentsCount:  p.CommentsCount,
		BookmarksCount: p.BookmarksCount,
		PublishedAt:    p.PublishedAt,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing storage.
func (p *Post) Clone() *Post {
	c := *p
	if p.TagIDs != nil {
		c.TagIDs = append([]int32(nil), p.TagIDs...)
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}
