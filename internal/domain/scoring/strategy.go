package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

// Strategy names a ranking strategy a feed endpoint can pick per request.
type Strategy int

// Supported strategies.
const (
	Trending Strategy = iota
	Hot
	Top
	Personalized
)

var strategyNames = [...]string{
	Trending:     "trending",
	Hot:          "hot",
	Top:          "top",
	Personalized: "personalized",
}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// ParseStrategy maps a case-insensitive name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range strategyNames {
		if candidate == n {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Period is the look-back window used by TimeDecay.
type Period int

// Supported periods.
const (
	Day Period = iota
	Week
	Month
	Year
	All
)

var periodDays = [...]float64{
	Day:   1,
	Week:  7,
	Month: 30,
	Year:  365,
	All:   3650,
}

var periodNames = [...]string{
	Day:   "day",
	Week:  "week",
	Month: "month",
	Year:  "year",
	All:   "all",
}

// Days returns the decay period in days. Unknown periods behave like All.
func (p Period) Days() float64 {
	if p < 0 || int(p) >= len(periodDays) {
		return periodDays[All]
	}
	return periodDays[p]
}

func (p Period) String() string {
	if p < 0 || int(p) >= len(periodNames) {
		return fmt.Sprintf("period(%d)", int(p))
	}
	return periodNames[p]
}

// ParsePeriod maps a case-insensitive name to a Period.
func ParsePeriod(name string) (Period, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range periodNames {
		if candidate == n {
			return Period(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPeriod, name)
}

// Request carries everything a strategy may look at. Affinity may be nil.
type Request struct {
	Strategy Strategy
	Snapshot model.EngagementSnapshot
	Affinity *model.AffinitySignals
	Period   Period
	Now      time.Time
}

type strategyFunc func(Request) float64

var strategies = [...]strategyFunc{
	Trending:     trendingStrategy,
	Hot:          hotStrategy,
	Top:          topStrategy,
	Personalized: personalizedStrategy,
}

// ComputeScore dispatches req to its strategy. The only error is an
// unknown strategy.
func ComputeScore(req Request) (float64, error) {
	if req.Strategy < 0 || int(req.Strategy) >= len(strategies) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStrategy, req.Strategy)
	}
	return strategies[req.Strategy](req), nil
}

func trendingStrategy(req Request) float64 {
	return TrendingScore(req.Snapshot, req.Now)
}

func hotStrategy(req Request) float64 {
	return HotScore(req.Snapshot)
}

// topStrategy treats views as trials and likes as successes. Views can lag
// likes because view counts are best-effort, so the trial count never drops
// below the like count.
func topStrategy(req Request) float64 {
	s := req.Snapshot
	likes := uint64(s.LikesCount)
	total := max(s.ViewCount, likes)
	return WilsonScore(likes, total, TimeDecay(s.PublishedAt, req.Period, req.Now))
}

func personalizedStrategy(req Request) float64 {
	s := req.Snapshot
	base := EngagementScore(s.ViewCount, s.LikesCount, s.CommentsCount, s.BookmarksCount) *
		TimeDecay(s.PublishedAt, req.Period, req.Now)
	if req.Affinity == nil {
		return base
	}
	a := req.Affinity
	return PersonalizedScore(base, a.TagAffinity, a.AuthorAffinity, a.FreshnessBonus)
}

// NewAffinity derives tag and freshness signals for one (user, post) pair.
// authorAffinity is passed through because only the caller knows the
// user/author relationship.
func NewAffinity(userTags, postTags []int32, authorAffinity float64, publishedAt *time.Time, now time.Time) model.AffinitySignals {
	return model.AffinitySignals{
		TagAffinity:    TagAffinity(userTags, postTags),
		AuthorAffinity: authorAffinity,
		FreshnessBonus: FreshnessBonus(publishedAt, DefaultFreshnessDecayHours, now),
	}
}
