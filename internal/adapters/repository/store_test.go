package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

func samplePost(id int32) *model.Post {
	published := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	return &model.Post{
		ID:             id,
		AuthorID:       3,
		TagIDs:         []int32{4, 8, 15},
		ViewCount:      100,
		LikesCount:     10,
		CommentsCount:  4,
		BookmarksCount: 2,
		PublishedAt:    &published,
	}
}

// storeContract exercises the behavior every adapter must share.
func storeContract(t *testing.T, name string, newStore func() Store) {
	Convey("Given a "+name+" store", t, func() {
		ctx := context.Background()
		store := newStore()
		Reset(func() { _ = store.Close() })

		So(store.Create(ctx, samplePost(1)), ShouldBeNil)
		So(store.Create(ctx, &model.Post{ID: 2, AuthorID: 5}), ShouldBeNil)

		Convey("When loading an existing post", func() {
			p, err := store.LoadPost(ctx, 1)

			Convey("Then every field round-trips", func() {
				So(err, ShouldBeNil)
				So(p.ID, ShouldEqual, 1)
				So(p.AuthorID, ShouldEqual, 3)
				So(p.TagIDs, ShouldResemble, []int32{4, 8, 15})
				So(p.ViewCount, ShouldEqual, 100)
				So(p.LikesCount, ShouldEqual, 10)
				So(p.CommentsCount, ShouldEqual, 4)
				So(p.BookmarksCount, ShouldEqual, 2)
				So(p.PublishedAt, ShouldNotBeNil)
				So(p.PublishedAt.Equal(*samplePost(1).PublishedAt), ShouldBeTrue)
				So(p.UpdatedAt.IsZero(), ShouldBeFalse)
			})
		})

		Convey("When loading a draft", func() {
			p, err := store.LoadPost(ctx, 2)

			Convey("Then it has no publish time", func() {
				So(err, ShouldBeNil)
				So(p.IsDraft(), ShouldBeTrue)
			})
		})

		Convey("When loading an unknown post", func() {
			_, err := store.LoadPost(ctx, 404)

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a view is incremented and persisted", func() {
			p, err := store.LoadPost(ctx, 1)
			So(err, ShouldBeNil)
			before := p.UpdatedAt
			p.IncrementViewCount()
			So(store.Persist(ctx, p), ShouldBeNil)

			Convey("Then the next load sees it", func() {
				again, err := store.LoadPost(ctx, 1)
				So(err, ShouldBeNil)
				So(again.ViewCount, ShouldEqual, 101)
				So(again.LikesCount, ShouldEqual, 10)
				So(p.UpdatedAt.Before(before), ShouldBeFalse)
			})
		})

		Convey("When persisting a post that does not exist", func() {
			err := store.Persist(ctx, &model.Post{ID: 999})

			Convey("Then ErrNotFound is returned and nothing is created", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = store.LoadPost(ctx, 999)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When persisting nil", func() {
			Convey("Then ErrInvalidPost is returned", func() {
				So(errors.Is(store.Persist(ctx, nil), ErrInvalidPost), ShouldBeTrue)
				So(errors.Is(store.Create(ctx, nil), ErrInvalidPost), ShouldBeTrue)
			})
		})

		Convey("When counting", func() {
			n, err := store.Count(ctx)

			Convey("Then both posts are reported", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
			})
		})
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, "memory", func() Store { return NewMemoryStore() })

	Convey("Given a memory store", t, func() {
		ctx := context.Background()
		store := NewMemoryStore()
		So(store.Create(ctx, samplePost(1)), ShouldBeNil)

		Convey("When the caller mutates a loaded post without persisting", func() {
			p, err := store.LoadPost(ctx, 1)
			So(err, ShouldBeNil)
			p.ViewCount = 1_000_000
			p.TagIDs[0] = 99

			Convey("Then the stored post is unaffected", func() {
				again, err := store.LoadPost(ctx, 1)
				So(err, ShouldBeNil)
				So(again.ViewCount, ShouldEqual, 100)
				So(again.TagIDs[0], ShouldEqual, 4)
			})
		})

		Convey("When a post is deleted between load and persist", func() {
			p, err := store.LoadPost(ctx, 1)
			So(err, ShouldBeNil)
			store.Delete(ctx, 1)
			p.IncrementViewCount()

			Convey("Then Persist reports ErrNotFound", func() {
				So(errors.Is(store.Persist(ctx, p), ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When many goroutines load and persist concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					p, err := store.LoadPost(ctx, 1)
					if err == nil {
						_ = store.Persist(ctx, p)
					}
				}()
			}
			wg.Wait()

			Convey("Then the store stays consistent", func() {
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})
	})
}

func TestSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	seq := 0
	storeContract(t, "sqlite", func() Store {
		seq++
		path := filepath.Join(dir, "posts", fmt.Sprintf("feed-%d.db", seq))
		s, err := OpenSQLite(context.Background(), path)
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return s
	})

	Convey("Given an empty sqlite path", t, func() {
		_, err := OpenSQLite(context.Background(), "")
		So(errors.Is(err, ErrMissingDSN), ShouldBeTrue)
	})
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("FEEDRANK_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("FEEDRANK_TEST_POSTGRES_URL not set")
	}
	storeContract(t, "postgres", func() Store {
		s, err := OpenPostgres(context.Background(), url, WithMaxConns(2))
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		if _, err := s.pool.Exec(context.Background(), `TRUNCATE posts`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("FEEDRANK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FEEDRANK_TEST_REDIS_ADDR not set")
	}
	seq := 0
	storeContract(t, "redis", func() Store {
		seq++
		prefix := fmt.Sprintf("feedrank-test:%d:%d:", time.Now().UnixNano(), seq)
		s, err := OpenRedis(context.Background(), addr, 0, WithKeyPrefix(prefix))
		if err != nil {
			t.Fatalf("open redis: %v", err)
		}
		return s
	})
}

func TestOpen(t *testing.T) {
	Convey("Given store configurations", t, func() {
		ctx := context.Background()

		Convey("When the driver is empty or memory", func() {
			s, err := Open(ctx, Config{})
			So(err, ShouldBeNil)
			So(s.Driver(), ShouldEqual, DriverMemory)

			s, err = Open(ctx, Config{Driver: " Memory "})
			So(err, ShouldBeNil)
			So(s.Driver(), ShouldEqual, DriverMemory)
		})

		Convey("When the driver is sqlite", func() {
			s, err := Open(ctx, Config{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "open.db")})
			So(err, ShouldBeNil)
			So(s.Driver(), ShouldEqual, DriverSQLite)
			So(s.Close(), ShouldBeNil)
		})

		Convey("When a network driver has no address", func() {
			_, err := Open(ctx, Config{Driver: DriverPostgres})
			So(errors.Is(err, ErrMissingDSN), ShouldBeTrue)
			_, err = Open(ctx, Config{Driver: DriverRedis})
			So(errors.Is(err, ErrMissingDSN), ShouldBeTrue)
		})

		Convey("When the driver is unknown", func() {
			_, err := Open(ctx, Config{Driver: "cassandra"})
			So(errors.Is(err, ErrUnknownDriver), ShouldBeTrue)
		})
	})
}
