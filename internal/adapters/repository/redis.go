package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
)

const redisScanBatch = 256

// redisPost is the JSON document stored per post.
type redisPost struct {
	ID             int32      `json:"id"`
	AuthorID       int32      `json:"author_id"`
	TagIDs         []int32    `json:"tag_ids"`
	ViewCount      uint64     `json:"view_count"`
	LikesCount     uint32     `json:"likes_count"`
	CommentsCount  uint32     `json:"comments_count"`
	BookmarksCount uint32     `json:"bookmarks_count"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RedisStore keeps one JSON document per post under a key prefix.
type RedisStore struct {
	client *redis.Client
	opts   options
}

var _ Store = (*RedisStore)(nil)

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr string, db int, opts ...Option) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: redis address", ErrMissingDSN)
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	s := NewRedisStore(client, opts...)
	s.opts.logger.Info(ctx, "redis store ready",
		logger.String("addr", addr),
		logger.Int("db", db),
		logger.String("key_prefix", s.opts.keyPrefix),
	)
	return s, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisStore{client: client, opts: o}
}

func (s *RedisStore) key(id int32) string {
	return s.opts.keyPrefix + strconv.FormatInt(int64(id), 10)
}

// LoadPost reads and decodes one post.
func (s *RedisStore) LoadPost(ctx context.Context, id int32) (*model.Post, error) {
	defer observe(DriverRedis, "load", time.Now())

	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post %d: %w", id, err)
	}

	var doc redisPost
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode post %d: %w", id, err)
	}
	return &model.Post{
		ID:             doc.ID,
		AuthorID:       doc.AuthorID,
		TagIDs:         doc.TagIDs,
		ViewCount:      doc.ViewCount,
		LikesCount:     doc.LikesCount,
		CommentsCount:  doc.CommentsCount,
		BookmarksCount: doc.BookmarksCount,
		PublishedAt:    doc.PublishedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}

// Persist overwrites the document only if it still exists.
func (s *RedisStore) Persist(ctx context.Context, p *model.Post) error {
	defer observe(DriverRedis, "persist", time.Now())

	if err := validatePost(p); err != nil {
		return err
	}
	updated := time.Now().UTC()
	raw, err := encodeRedisPost(p, updated)
	if err != nil {
		return err
	}

	ok, err := s.client.SetXX(ctx, s.key(p.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to persist post %d: %w", p.ID, err)
	}
	if !ok {
		return ErrNotFound
	}
	p.UpdatedAt = updated
	return nil
}

// Create inserts or replaces p.
func (s *RedisStore) Create(ctx context.Context, p *model.Post) error {
	defer observe(DriverRedis, "create", time.Now())

	if err := validatePost(p); err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	raw, err := encodeRedisPost(p, p.UpdatedAt)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(p.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to create post %d: %w", p.ID, err)
	}
	return nil
}

// Count walks the key prefix with SCAN.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.opts.keyPrefix+"*", redisScanBatch).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// Driver returns DriverRedis.
func (s *RedisStore) Driver() string { return DriverRedis }

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeRedisPost(p *model.Post, updated time.Time) ([]byte, error) {
	raw, err := json.Marshal(redisPost{
		ID:             p.ID,
		AuthorID:       p.AuthorID,
		TagIDs:         p.TagIDs,
		ViewCount:      p.ViewCount,
		LikesCount:     p.LikesCount,
		CommentsCount:  p.CommentsCount,
		BookmarksCount: p.BookmarksCount,
		PublishedAt:    p.PublishedAt,
		UpdatedAt:      updated,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode post %d: %w", p.ID, err)
	}
	return raw, nil
}
