package model_test

import (
	"testing"
	"time"

	model "github.com/okian/feedrank/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestPost(t *testing.T) {
	convey.Convey("Given a published post", t, func() {
		published := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		post := &model.Post{
			ID:             42,
			AuthorID:       7,
			TagIDs:         []int32{1, 2},
			ViewCount:      10,
			LikesCount:     3,
			CommentsCount:  2,
			BookmarksCount: 1,
			PublishedAt:    &published,
		}

		convey.Convey("When a view is recorded", func() {
			post.IncrementViewCount()

			convey.Convey("Then only the view counter moves by one", func() {
				convey.So(post.ViewCount, convey.ShouldEqual, 11)
				convey.So(post.LikesCount, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When taking a snapshot", func() {
			snap := post.Snapshot()

			convey.Convey("Then it mirrors the engagement counters", func() {
				convey.So(snap.ViewCount, convey.ShouldEqual, 10)
				convey.So(snap.LikesCount, convey.ShouldEqual, 3)
				convey.So(snap.CommentsCount, convey.ShouldEqual, 2)
				convey.So(snap.BookmarksCount, convey.ShouldEqual, 1)
				convey.So(snap.PublishedAt.Equal(published), convey.ShouldBeTrue)
				convey.So(snap.IsDraft(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When cloning", func() {
			clone := post.Clone()
			clone.TagIDs[0] = 99
			clone.IncrementViewCount()
			*clone.PublishedAt = published.Add(time.Hour)

			convey.Convey("Then the original is untouched", func() {
				convey.So(post.TagIDs[0], convey.ShouldEqual, 1)
				convey.So(post.ViewCount, convey.ShouldEqual, 10)
				convey.So(post.PublishedAt.Equal(published), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a draft post", t, func() {
		post := &model.Post{ID: 1}

		convey.Convey("Then it reports itself as a draft", func() {
			convey.So(post.IsDraft(), convey.ShouldBeTrue)
			convey.So(post.Snapshot().IsDraft(), convey.ShouldBeTrue)
			convey.So(post.Clone().PublishedAt, convey.ShouldBeNil)
		})
	})
}
