package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS posts (
	id              INTEGER PRIMARY KEY,
	author_id       INTEGER NOT NULL DEFAULT 0,
	tag_ids         TEXT    NOT NULL DEFAULT '[]',
	view_count      INTEGER NOT NULL DEFAULT 0,
	likes_count     INTEGER NOT NULL DEFAULT 0,
	comments_count  INTEGER NOT NULL DEFAULT 0,
	bookmarks_count INTEGER NOT NULL DEFAULT 0,
	published_at    TEXT,
	updated_at      TEXT    NOT NULL
)`

// SQLiteStore persists posts in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path", ErrMissingDSN)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	s := NewSQLiteStore(db, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.opts.logger.Info(ctx, "sqlite store ready", logger.String("path", path))
	return s, nil
}

// NewSQLiteStore wraps an already opened database handle.
func NewSQLiteStore(db *sql.DB, opts ...Option) *SQLiteStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SQLiteStore{db: db, opts: o}
}

// Migrate creates the posts table if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to migrate SQLite schema: %w", err)
	}
	return nil
}

// LoadPost reads one post by id.
func (s *SQLiteStore) LoadPost(ctx context.Context, id int32) (*model.Post, error) {
	defer observe(DriverSQLite, "load", time.Now())

	const query = `
		SELECT id, author_id, tag_ids, view_count, likes_count, comments_count,
		       bookmarks_count, published_at, updated_at
		FROM posts
		WHERE id = ?`

	var (
		p         model.Post
		tags      string
		views     int64
		published sql.NullString
		updated   string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.AuthorID, &tags, &views, &p.LikesCount, &p.CommentsCount,
		&p.BookmarksCount, &published, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load post %d: %w", id, err)
	}

	p.ViewCount = uint64(views)
	if err := json.Unmarshal([]byte(tags), &p.TagIDs); err != nil {
		return nil, fmt.Errorf("failed to decode tags of post %d: %w", id, err)
	}
	if published.Valid {
		t, err := time.Parse(time.RFC3339Nano, published.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse published_at of post %d: %w", id, err)
		}
		p.PublishedAt = &t
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at of post %d: %w", id, err)
	}
	return &p, nil
}

// Persist overwrites the stored row with p.
func (s *SQLiteStore) Persist(ctx context.Context, p *model.Post) error {
	defer observe(DriverSQLite, "persist", time.Now())

	if err := validatePost(p); err != nil {
		return err
	}
	tags, err := encodeTags(p.TagIDs)
	if err != nil {
		return err
	}
	updated := time.Now().UTC()

	const query = `
		UPDATE posts SET
			author_id = ?, tag_ids = ?, view_count = ?, likes_count = ?,
			comments_count = ?, bookmarks_count = ?, published_at = ?, updated_at = ?
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query,
		p.AuthorID, tags, int64(p.ViewCount), p.LikesCount,
		p.CommentsCount, p.BookmarksCount, formatTime(p.PublishedAt), updated.Format(time.RFC3339Nano),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to persist post %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to persist post %d: %w", p.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	p.UpdatedAt = updated
	return nil
}

// Create inserts or replaces p.
func (s *SQLiteStore) Create(ctx context.Context, p *model.Post) error {
	defer observe(DriverSQLite, "create", time.Now())

	if err := validatePost(p); err != nil {
		return err
	}
	tags, err := encodeTags(p.TagIDs)
	if err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO posts (id, author_id, tag_ids, view_count, likes_count,
		                   comments_count, bookmarks_count, published_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			author_id = excluded.author_id,
			tag_ids = excluded.tag_ids,
			view_count = excluded.view_count,
			likes_count = excluded.likes_count,
			comments_count = excluded.comments_count,
			bookmarks_count = excluded.bookmarks_count,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.AuthorID, tags, int64(p.ViewCount), p.LikesCount,
		p.CommentsCount, p.BookmarksCount, formatTime(p.PublishedAt), p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create post %d: %w", p.ID, err)
	}
	return nil
}

// Count returns the number of stored posts.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// Driver returns DriverSQLite.
func (s *SQLiteStore) Driver() string { return DriverSQLite }

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeTags(tags []int32) (string, error) {
	if tags == nil {
		tags = []int32{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
