package scoring_test

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	scoring "github.com/okian/feedrank/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func publishedAgo(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func snapshot(views uint64, likes, comments, bookmarks uint32, published *time.Time) model.EngagementSnapshot {
	return model.EngagementSnapshot{
		ViewCount:      views,
		LikesCount:     likes,
		CommentsCount:  comments,
		BookmarksCount: bookmarks,
		PublishedAt:    published,
	}
}

func TestDrafts(t *testing.T) {
	Convey("Given an unpublished snapshot with plenty of engagement", t, func() {
		draft := snapshot(100000, 500, 100, 50, nil)

		Convey("Then every time-aware score is exactly zero", func() {
			So(scoring.TrendingScore(draft, now), ShouldEqual, 0)
			So(scoring.HotScore(draft), ShouldEqual, 0)
			So(scoring.TimeDecay(nil, scoring.Week, now), ShouldEqual, 0)
			So(scoring.FreshnessBonus(nil, 72, now), ShouldEqual, 0)
		})

		Convey("And every strategy scores it zero", func() {
			for _, s := range []scoring.Strategy{scoring.Trending, scoring.Hot, scoring.Top, scoring.Personalized} {
				score, err := scoring.ComputeScore(scoring.Request{
					Strategy: s,
					Snapshot: draft,
					Affinity: &model.AffinitySignals{TagAffinity: 1, AuthorAffinity: 1, FreshnessBonus: 1},
					Period:   scoring.All,
					Now:      now,
				})
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 0)
			}
		})
	})
}

func TestTrendingScore(t *testing.T) {
	Convey("Given a post published ten hours ago", t, func() {
		s := snapshot(5000, 100, 20, 10, publishedAgo(10*time.Hour))

		Convey("Then the score follows weighted engagement over gravity", func() {
			expected := (4*100.0 + 3*20.0 + 2*10.0 + 5000.0/100) / math.Pow(12, 1.8)
			So(scoring.TrendingScore(s, now), ShouldAlmostEqual, expected, 1e-9)
			So(scoring.TrendingScore(s, now), ShouldAlmostEqual, 6.05, 0.01)
		})
	})

	Convey("Given fixed engagement at increasing ages", t, func() {
		prev := math.Inf(1)
		for h := 0; h <= 48; h += 4 {
			score := scoring.TrendingScore(snapshot(1000, 10, 5, 2, publishedAgo(time.Duration(h)*time.Hour)), now)
			So(score, ShouldBeLessThan, prev)
			prev = score
		}

		Convey("Then anything past the 48 hour window scores zero", func() {
			So(scoring.TrendingScore(snapshot(1000, 10, 5, 2, publishedAgo(48*time.Hour+time.Second)), now), ShouldEqual, 0)
			So(scoring.TrendingScore(snapshot(1000, 10, 5, 2, publishedAgo(72*time.Hour)), now), ShouldEqual, 0)
		})
	})

	Convey("Given a post with a publish time in the future", t, func() {
		future := now.Add(time.Hour)
		s := snapshot(0, 1, 0, 0, &future)

		Convey("Then its age is treated as zero", func() {
			So(scoring.TrendingScore(s, now), ShouldAlmostEqual, 4/math.Pow(2, 1.8), 1e-12)
		})
	})
}

func TestHotScore(t *testing.T) {
	Convey("Given posts measured against the 2024-01-01 epoch", t, func() {
		epoch := time.Unix(scoring.HotEpochUnix, 0).UTC()
		So(epoch, ShouldEqual, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

		Convey("When engagement nets to zero at the epoch", func() {
			s := snapshot(0, 0, 0, 1, &epoch)

			Convey("Then the score is zero", func() {
				So(scoring.HotScore(s), ShouldEqual, 0)
			})
		})

		Convey("When a post is published one time unit after the epoch", func() {
			later := epoch.Add(45000 * time.Second)
			s := snapshot(0, 4, 0, 0, &later)

			Convey("Then the log term and time term add up", func() {
				So(scoring.HotScore(s), ShouldAlmostEqual, math.Log10(11)+1, 1e-9)
			})
		})

		Convey("When there is no engagement at all", func() {
			s := snapshot(0, 0, 0, 0, &epoch)

			Convey("Then the negative sign multiplies log10(1) and only time counts", func() {
				So(scoring.HotScore(s), ShouldEqual, 0)
			})
		})

		Convey("When two posts have equal engagement", func() {
			older := epoch.Add(24 * time.Hour)
			newer := epoch.Add(48 * time.Hour)

			Convey("Then the newer one ranks higher regardless of now", func() {
				So(scoring.HotScore(snapshot(0, 5, 0, 0, &newer)), ShouldBeGreaterThan, scoring.HotScore(snapshot(0, 5, 0, 0, &older)))
			})
		})

		Convey("When views change but likes do not", func() {
			Convey("Then views do not affect the hot score", func() {
				So(scoring.HotScore(snapshot(10, 5, 0, 0, &epoch)), ShouldEqual, scoring.HotScore(snapshot(100000, 5, 0, 0, &epoch)))
			})
		})
	})
}

func TestWilsonScore(t *testing.T) {
	Convey("Given the Wilson lower bound", t, func() {
		Convey("Then zero interactions score zero", func() {
			So(scoring.WilsonScore(0, 0, 1), ShouldEqual, 0)
			So(scoring.WilsonScore(0, 0, 0.5), ShouldEqual, 0)
		})

		Convey("Then 80 likes out of 100 is about 0.712", func() {
			So(scoring.WilsonScore(80, 100, 1), ShouldAlmostEqual, 0.712, 0.002)
		})

		Convey("Then the score never decreases as the penalty grows", func() {
			prev := -1.0
			for _, penalty := range []float64{0, 0.1, 0.25, 0.5, 0.75, 1} {
				score := scoring.WilsonScore(30, 40, penalty)
				So(score, ShouldBeGreaterThanOrEqualTo, prev)
				prev = score
			}
		})

		Convey("Then few all-positive votes rank below many mostly-positive votes", func() {
			So(scoring.WilsonScore(2, 2, 1), ShouldBeLessThan, scoring.WilsonScore(90, 100, 1))
		})
	})
}

func TestTimeDecay(t *testing.T) {
	Convey("Given a post published a week ago", t, func() {
		published := publishedAgo(7 * 24 * time.Hour)

		Convey("Then decay depends on the period", func() {
			So(scoring.TimeDecay(published, scoring.Week, now), ShouldAlmostEqual, 1/math.Sqrt(2), 1e-12)
			So(scoring.TimeDecay(published, scoring.Day, now), ShouldAlmostEqual, 1/math.Sqrt(8), 1e-12)
			So(scoring.TimeDecay(published, scoring.All, now), ShouldBeGreaterThan, scoring.TimeDecay(published, scoring.Month, now))
		})

		Convey("Then a fresh post is not decayed", func() {
			So(scoring.TimeDecay(publishedAgo(0), scoring.Day, now), ShouldEqual, 1)
		})
	})
}

func TestPersonalization(t *testing.T) {
	Convey("Given a base score", t, func() {
		base := 2.0

		Convey("Then zero affinity returns the base exactly", func() {
			So(scoring.PersonalizedScore(base, 0, 0, 0), ShouldEqual, base)
			So(scoring.PersonalizedScore(1.2345, 0, 0, 0), ShouldEqual, 1.2345)
		})

		Convey("Then full affinity applies every weight", func() {
			So(scoring.PersonalizedScore(base, 1, 1, 1), ShouldAlmostEqual, 3.5, 1e-12)
		})
	})

	Convey("Given tag sets", t, func() {
		Convey("Then empty sets give zero", func() {
			So(scoring.TagAffinity(nil, []int32{1, 2}), ShouldEqual, 0)
			So(scoring.TagAffinity([]int32{1, 2}, nil), ShouldEqual, 0)
			So(scoring.TagAffinity([]int32{5}, []int32{1, 2}), ShouldEqual, 0)
		})

		Convey("Then more matches give higher affinity", func() {
			So(scoring.TagAffinity([]int32{1, 2, 3}, []int32{1, 2}), ShouldBeGreaterThan, scoring.TagAffinity([]int32{1}, []int32{1, 2}))
			So(scoring.TagAffinity([]int32{1}, []int32{1, 2}), ShouldEqual, 0.5)
			So(scoring.TagAffinity([]int32{1, 2}, []int32{1, 2, 3, 4}), ShouldAlmostEqual, 0.6, 1e-12)
		})

		Convey("Then the result is capped at one", func() {
			So(scoring.TagAffinity([]int32{1, 2, 3}, []int32{1, 2, 3}), ShouldEqual, 1)
		})
	})

	Convey("Given freshness and engagement helpers", t, func() {
		So(scoring.FreshnessBonus(publishedAgo(72*time.Hour), 72, now), ShouldAlmostEqual, math.Exp(-1), 1e-12)
		So(scoring.FreshnessBonus(publishedAgo(72*time.Hour), 0, now), ShouldAlmostEqual, math.Exp(-1), 1e-12)
		So(scoring.EngagementScore(0, 0, 0, 0), ShouldEqual, 0)
		So(scoring.EngagementScore(900, 0, 0, 0), ShouldAlmostEqual, 1, 1e-12)
		So(scoring.EngagementScore(0, 10, 10, 10), ShouldAlmostEqual, math.Log10(101), 1e-12)
	})

	Convey("Given a user/post pair", t, func() {
		published := publishedAgo(72 * time.Hour)
		a := scoring.NewAffinity([]int32{1}, []int32{1, 2}, 0.4, published, now)

		Convey("Then NewAffinity fills every signal", func() {
			So(a.TagAffinity, ShouldEqual, 0.5)
			So(a.AuthorAffinity, ShouldEqual, 0.4)
			So(a.FreshnessBonus, ShouldAlmostEqual, math.Exp(-1), 1e-12)
		})
	})
}

func TestComputeScore(t *testing.T) {
	Convey("Given a published snapshot", t, func() {
		s := snapshot(200, 40, 5, 3, publishedAgo(5*time.Hour))

		Convey("When dispatching each strategy", func() {
			trending, err := scoring.ComputeScore(scoring.Request{Strategy: scoring.Trending, Snapshot: s, Now: now})
			So(err, ShouldBeNil)
			hot, err := scoring.ComputeScore(scoring.Request{Strategy: scoring.Hot, Snapshot: s, Now: now})
			So(err, ShouldBeNil)
			top, err := scoring.ComputeScore(scoring.Request{Strategy: scoring.Top, Snapshot: s, Period: scoring.Week, Now: now})
			So(err, ShouldBeNil)

			Convey("Then they match the underlying functions", func() {
				So(trending, ShouldEqual, scoring.TrendingScore(s, now))
				So(hot, ShouldEqual, scoring.HotScore(s))
				So(top, ShouldEqual, scoring.WilsonScore(40, 200, scoring.TimeDecay(s.PublishedAt, scoring.Week, now)))
			})
		})

		Convey("When personalizing without affinity", func() {
			plain, err := scoring.ComputeScore(scoring.Request{Strategy: scoring.Personalized, Snapshot: s, Period: scoring.Month, Now: now})
			So(err, ShouldBeNil)
			boosted, err := scoring.ComputeScore(scoring.Request{
				Strategy: scoring.Personalized,
				Snapshot: s,
				Affinity: &model.AffinitySignals{TagAffinity: 1},
				Period:   scoring.Month,
				Now:      now,
			})
			So(err, ShouldBeNil)

			Convey("Then affinity only boosts", func() {
				base := scoring.EngagementScore(200, 40, 5, 3) * scoring.TimeDecay(s.PublishedAt, scoring.Month, now)
				So(plain, ShouldEqual, base)
				So(boosted, ShouldAlmostEqual, base*1.35, 1e-12)
			})
		})

		Convey("When likes exceed the best-effort view count", func() {
			lagging := snapshot(10, 40, 0, 0, publishedAgo(time.Hour))
			top, err := scoring.ComputeScore(scoring.Request{Strategy: scoring.Top, Snapshot: lagging, Period: scoring.All, Now: now})

			Convey("Then the proportion is clamped to one", func() {
				So(err, ShouldBeNil)
				So(top, ShouldBeLessThanOrEqualTo, 1)
				So(math.IsNaN(top), ShouldBeFalse)
			})
		})

		Convey("When the strategy is unknown", func() {
			_, err := scoring.ComputeScore(scoring.Request{Strategy: scoring.Strategy(99), Snapshot: s, Now: now})

			Convey("Then ErrUnknownStrategy is returned", func() {
				So(errors.Is(err, scoring.ErrUnknownStrategy), ShouldBeTrue)
			})
		})
	})
}

func TestParsing(t *testing.T) {
	Convey("Given strategy and period names", t, func() {
		s, err := scoring.ParseStrategy(" Hot ")
		So(err, ShouldBeNil)
		So(s, ShouldEqual, scoring.Hot)
		So(scoring.Personalized.String(), ShouldEqual, "personalized")
		So(scoring.Strategy(42).String(), ShouldEqual, "strategy(42)")

		_, err = scoring.ParseStrategy("random")
		So(errors.Is(err, scoring.ErrUnknownStrategy), ShouldBeTrue)

		p, err := scoring.ParsePeriod("YEAR")
		So(err, ShouldBeNil)
		So(p, ShouldEqual, scoring.Year)
		So(p.Days(), ShouldEqual, 365)
		So(scoring.Period(-1).Days(), ShouldEqual, 3650)
		So(scoring.Month.String(), ShouldEqual, "month")

		_, err = scoring.ParsePeriod("decade")
		So(errors.Is(err, scoring.ErrUnknownPeriod), ShouldBeTrue)
	})
}

func TestRank(t *testing.T) {
	Convey("Given candidates including a draft and a tie", t, func() {
		published := publishedAgo(3 * time.Hour)
		candidates := []scoring.Candidate{
			{ItemID: 30, Snapshot: snapshot(0, 1, 0, 0, published)},
			{ItemID: 10, Snapshot: snapshot(0, 5, 0, 0, published)},
			{ItemID: 20, Snapshot: snapshot(0, 1, 0, 0, published)},
			{ItemID: 5, Snapshot: snapshot(0, 100, 0, 0, nil)},
		}

		Convey("When ranking by trending", func() {
			results, err := scoring.Rank(candidates, scoring.Trending, scoring.Day, now)

			Convey("Then drafts are excluded and ties break by item id", func() {
				So(err, ShouldBeNil)
				So(len(results), ShouldEqual, 3)
				So(results[0].ItemID, ShouldEqual, 10)
				So(results[1].ItemID, ShouldEqual, 20)
				So(results[2].ItemID, ShouldEqual, 30)
				So(results[1].Score, ShouldEqual, results[2].Score)
			})
		})

		Convey("When ranking with an unknown strategy", func() {
			results, err := scoring.Rank(candidates, scoring.Strategy(-1), scoring.Day, now)

			Convey("Then the error surfaces", func() {
				So(results, ShouldBeNil)
				So(errors.Is(err, scoring.ErrUnknownStrategy), ShouldBeTrue)
			})
		})
	})
}

func TestConcurrentScoring(t *testing.T) {
	Convey("Given many goroutines scoring the same snapshot", t, func() {
		s := snapshot(5000, 100, 20, 10, publishedAgo(10*time.Hour))
		want := scoring.TrendingScore(s, now)

		var wg sync.WaitGroup
		results := make([]float64, 64)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = scoring.TrendingScore(s, now)
			}(i)
		}
		wg.Wait()

		Convey("Then every result is identical", func() {
			for _, got := range results {
				So(got, ShouldEqual, want)
			}
		})
	})
}
