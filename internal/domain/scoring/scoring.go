// Package scoring turns engagement signals into feed ranking scores.
//
// Every function here is pure: no shared state, no I/O, and safe to call
// from any number of goroutines. Time-dependent functions take the caller's
// notion of "now" so results are reproducible. Inputs are not sanitized;
// callers supply non-negative, consistent counters.
package scoring

import (
	"math"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

// Scoring constants.
const (
	trendingWindowHours = 48.0
	trendingGravity     = 1.8
	trendingAgeOffset   = 2.0

	hotTimeDivisor = 45000.0

	wilsonZ = 1.96

	tagAffinityWeight    = 0.35
	authorAffinityWeight = 0.25
	freshnessWeight      = 0.15
	tagMatchBonus        = 0.1

	// DefaultFreshnessDecayHours is the e-folding time for FreshnessBonus.
	DefaultFreshnessDecayHours = 72.0
)

// HotEpochUnix (2024-01-01T00:00:00Z) anchors the time term of HotScore.
// The term grows with the publish date itself, not with age relative to now.
const HotEpochUnix = 1704067200

// ageHours returns hours elapsed from publishedAt to now, clamped at zero.
func ageHours(publishedAt, now time.Time) float64 {
	h := now.Sub(publishedAt).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// TrendingScore models virality over a 48 hour window. Drafts and posts
// older than the window score 0.
func TrendingScore(s model.EngagementSnapshot, now time.Time) float64 {
	if s.PublishedAt == nil {
		return 0
	}
	age := ageHours(*s.PublishedAt, now)
	if age > trendingWindowHours {
		return 0
	}
	engagement := 4*float64(s.LikesCount) +
		3*float64(s.CommentsCount) +
		2*float64(s.BookmarksCount) +
		float64(s.ViewCount)/100
	gravity := math.Pow(age+trendingAgeOffset, trendingGravity)
	return engagement / gravity
}

// HotScore is a signed-log engagement balance plus a time term that grows
// with the publish date measured from HotEpochUnix.
func HotScore(s model.EngagementSnapshot) float64 {
	if s.PublishedAt == nil {
		return 0
	}
	x := 3*float64(s.LikesCount) + 2*float64(s.CommentsCount) + float64(s.BookmarksCount) - 1
	var sign float64
	switch {
	case x > 0:
		sign = 1
	case x < 0:
		sign = -1
	}
	order := math.Log10(math.Max(math.Abs(x), 1))
	seconds := s.PublishedAt.Sub(time.Unix(HotEpochUnix, 0)).Seconds()
	return sign*order + seconds/hotTimeDivisor
}

// WilsonScore returns the lower bound of the 95% Wilson interval for
// likes/total, scaled by timePenalty. A zero total scores 0.
func WilsonScore(likes, total uint64, timePenalty float64) float64 {
	if total == 0 {
		return 0
	}
	n := float64(total)
	p := float64(likes) / n
	z2 := wilsonZ * wilsonZ
	numerator := p + z2/(2*n) - wilsonZ*math.Sqrt((p*(1-p)+z2/(4*n))/n)
	denominator := 1 + z2/n
	return numerator / denominator * timePenalty
}

// TimeDecay down-weights old posts: 1/sqrt(1 + ageDays/periodDays).
// Drafts decay to 0.
func TimeDecay(publishedAt *time.Time, period Period, now time.Time) float64 {
	if publishedAt == nil {
		return 0
	}
	ageDays := ageHours(*publishedAt, now) / 24
	return 1 / math.Sqrt(1+ageDays/period.Days())
}

// PersonalizedScore applies a linear affinity boost to base. With all
// signals at zero it returns base unchanged.
func PersonalizedScore(base, tagAffinity, authorAffinity, freshnessBonus float64) float64 {
	boost := 1 +
		tagAffinityWeight*tagAffinity +
		authorAffinityWeight*authorAffinity +
		freshnessWeight*freshnessBonus
	return base * boost
}

// TagAffinity is the share of postTags the user prefers, with a 10% bonus
// per match once more than one tag overlaps. The result is capped at 1.
func TagAffinity(userTags, postTags []int32) float64 {
	if len(userTags) == 0 || len(postTags) == 0 {
		return 0
	}
	preferred := make(map[int32]struct{}, len(userTags))
	for _, id := range userTags {
		preferred[id] = struct{}{}
	}
	matches := 0
	for _, id := range postTags {
		if _, ok := preferred[id]; ok {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	affinity := float64(matches) / float64(len(postTags))
	if matches > 1 {
		affinity *= 1 + float64(matches)*tagMatchBonus
	}
	return math.Min(affinity, 1)
}

// FreshnessBonus decays exponentially with age: exp(-ageHours/decayHours).
// A non-positive decayHours falls back to DefaultFreshnessDecayHours.
func FreshnessBonus(publishedAt *time.Time, decayHours float64, now time.Time) float64 {
	if publishedAt == nil {
		return 0
	}
	if decayHours <= 0 {
		decayHours = DefaultFreshnessDecayHours
	}
	return math.Exp(-ageHours(*publishedAt, now) / decayHours)
}

// EngagementScore log-compresses a weighted engagement total so viral
// outliers do not dominate later combinations.
func EngagementScore(views uint64, likes, comments, bookmarks uint32) float64 {
	return math.Log10(1 +
		float64(views)*0.01 +
		float64(likes)*5 +
		float64(comments)*3 +
		float64(bookmarks)*2)
}
