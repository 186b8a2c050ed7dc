// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// HistoryStoreConfig controls the Postgres connection pool used for job history rows.
type HistoryStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// HistoryStore implements store.HistoryRepository on a job_runs table.
type HistoryStore struct {
	pool  execCloser
	table string
}

var _ store.HistoryRepository = (*HistoryStore)(nil)

// NewHistoryStore connects to Postgres using cfg.
func NewHistoryStore(ctx context.Context, cfg HistoryStoreConfig) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewHistoryStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(pool execCloser, table string) (*HistoryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "job_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &HistoryStore{pool: pool, table: table}, nil
}

// Close closes the underlying connection pool.
func (s *HistoryStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the history table when it does not exist.
func (s *HistoryStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			req_id text PRIMARY KEY,
			url text NOT NULL,
			download_video boolean NOT NULL,
			extract_audio boolean NOT NULL,
			audio_quality integer NOT NULL,
			submitted_at timestamptz NOT NULL,
			status text NOT NULL,
			finished_at timestamptz,
			artifact_key text,
			error_message text,
			bytes_downloaded bigint NOT NULL DEFAULT 0,
			files integer NOT NULL DEFAULT 0,
			deleted_at timestamptz
		);`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordSubmitted inserts a running row for req.
func (s *HistoryStore) RecordSubmitted(ctx context.Context, req archive.JobRequest) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (req_id, url, download_video, extract_audio, audio_quality, submitted_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (req_id) DO NOTHING;`, s.table)
	_, err := s.pool.Exec(ctx, query,
		req.ID,
		req.URL,
		req.DownloadVideo,
		req.ExtractAudio,
		req.AudioQuality,
		req.SubmittedAt,
		store.RunRunning,
	)
	if err != nil {
		return fmt.Errorf("insert job run %s: %w", req.ID, err)
	}
	return nil
}

// RecordFinished stores the final status of a run.
func (s *HistoryStore) RecordFinished(ctx context.Context, result store.RunResult) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, finished_at = $2, artifact_key = $3, error_message = $4,
			bytes_downloaded = $5, files = $6
		WHERE req_id = $7;`, s.table)
	_, err := s.pool.Exec(ctx, query,
		result.Status,
		result.FinishedAt,
		result.ArtifactKey,
		result.ErrorMessage,
		result.BytesDownloaded,
		result.Files,
		result.ReqID,
	)
	if err != nil {
		return fmt.Errorf("finish job run %s: %w", result.ReqID, err)
	}
	return nil
}

// RecordArtifactDeleted stamps deleted_at on the run that produced key.
func (s *HistoryStore) RecordArtifactDeleted(ctx context.Context, key string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = $1 WHERE artifact_key = $2;`, s.table)
	if _, err := s.pool.Exec(ctx, query, at, key); err != nil {
		return fmt.Errorf("mark artifact %s deleted: %w", key, err)
	}
	return nil
}
