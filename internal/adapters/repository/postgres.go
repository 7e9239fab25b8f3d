package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS posts (
	id              INTEGER PRIMARY KEY,
	author_id       INTEGER     NOT NULL DEFAULT 0,
	tag_ids         INTEGER[]   NOT NULL DEFAULT '{}',
	view_count      BIGINT      NOT NULL DEFAULT 0,
	likes_count     BIGINT      NOT NULL DEFAULT 0,
	comments_count  BIGINT      NOT NULL DEFAULT 0,
	bookmarks_count BIGINT      NOT NULL DEFAULT 0,
	published_at    TIMESTAMPTZ,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore persists posts in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to url and migrates the schema.
func OpenPostgres(ctx context.Context, url string, opts ...Option) (*PostgresStore, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: postgres url", ErrMissingDSN)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(o.maxConns) //nolint:gosec // bounded by config validation

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	s := &PostgresStore{pool: pool, opts: o}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	o.logger.Info(ctx, "postgres store ready", logger.Int("max_conns", o.maxConns))
	return s, nil
}

// NewPostgresStore wraps an existing pool. The caller keeps ownership of
// migrations.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &PostgresStore{pool: pool, opts: o}
}

// Migrate creates the posts table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate PostgreSQL schema: %w", err)
	}
	return nil
}

// LoadPost reads one post by id.
func (s *PostgresStore) LoadPost(ctx context.Context, id int32) (*model.Post, error) {
	defer observe(DriverPostgres, "load", time.Now())

	const query = `
		SELECT id, author_id, tag_ids, view_count, likes_count, comments_count,
		       bookmarks_count, published_at, updated_at
		FROM posts
		WHERE id = $1`

	var (
		p                          model.Post
		views                      int64
		likes, comments, bookmarks int64
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.AuthorID, &p.TagIDs, &views, &likes, &comments,
		&bookmarks, &p.PublishedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load post %d: %w", id, err)
	}

	p.ViewCount = uint64(views)          //nolint:gosec // counters are never negative
	p.LikesCount = uint32(likes)         //nolint:gosec // counters are never negative
	p.CommentsCount = uint32(comments)   //nolint:gosec // counters are never negative
	p.BookmarksCount = uint32(bookmarks) //nolint:gosec // counters are never negative
	return &p, nil
}

// Persist overwrites the stored row with p.
func (s *PostgresStore) Persist(ctx context.Context, p *model.Post) error {
	defer observe(DriverPostgres, "persist", time.Now())

	if err := validatePost(p); err != nil {
		return err
	}

	const query = `
		UPDATE posts SET
			author_id = $2, tag_ids = $3, view_count = $4, likes_count = $5,
			comments_count = $6, bookmarks_count = $7, published_at = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	var updated time.Time
	err := s.pool.QueryRow(ctx, query,
		p.ID, p.AuthorID, tagsOrEmpty(p.TagIDs), int64(p.ViewCount), //nolint:gosec // counters fit in BIGINT
		int64(p.LikesCount), int64(p.CommentsCount), int64(p.BookmarksCount), p.PublishedAt,
	).Scan(&updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to persist post %d: %w", p.ID, err)
	}
	p.UpdatedAt = updated
	return nil
}

// Create inserts or replaces p.
func (s *PostgresStore) Create(ctx context.Context, p *model.Post) error {
	defer observe(DriverPostgres, "create", time.Now())

	if err := validatePost(p); err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO posts (id, author_id, tag_ids, view_count, likes_count,
		                   comments_count, bookmarks_count, published_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			author_id = EXCLUDED.author_id,
			tag_ids = EXCLUDED.tag_ids,
			view_count = EXCLUDED.view_count,
			likes_count = EXCLUDED.likes_count,
			comments_count = EXCLUDED.comments_count,
			bookmarks_count = EXCLUDED.bookmarks_count,
			published_at = EXCLUDED.published_at,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.AuthorID, tagsOrEmpty(p.TagIDs), int64(p.ViewCount), //nolint:gosec // counters fit in BIGINT
		int64(p.LikesCount), int64(p.CommentsCount), int64(p.BookmarksCount), p.PublishedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create post %d: %w", p.ID, err)
	}
	return nil
}

// Count returns the number of stored posts.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return int(n), nil
}

// Driver returns DriverPostgres.
func (s *PostgresStore) Driver() string { return DriverPostgres }

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func tagsOrEmpty(tags []int32) []int32 {
	if tags == nil {
		return []int32{}
	}
	return tags
}
