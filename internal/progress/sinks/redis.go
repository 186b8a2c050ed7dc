package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/media-archiver/internal/progress"
)

// RedisClient is the subset of redis.Cmdable the sink needs.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

const defaultRedisTTL = 24 * time.Hour

// RedisSink mirrors job and artifact status into Redis hashes so dashboards
// can poll them. Every key expires after the configured TTL.
type RedisSink struct {
	client RedisClient
	ttl    time.Duration
	prefix string
}

// NewRedisSink builds a sink writing keys under prefix ("archiver" by default).
func NewRedisSink(client RedisClient, prefix string, ttl time.Duration) (*RedisSink, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	if prefix == "" {
		prefix = "archiver"
	}
	return &RedisSink{client: client, ttl: ttl, prefix: prefix}, nil
}

// JobKey returns the hash key holding status for reqID.
func (s *RedisSink) JobKey(reqID string) string {
	return fmt.Sprintf("%s:job:%s", s.prefix, reqID)
}

// ArtifactKey returns the hash key holding the artifact record for key.
func (s *RedisSink) ArtifactKey(key string) string {
	return fmt.Sprintf("%s:artifact:%s", s.prefix, key)
}

// Consume collapses the batch to the latest state per job and writes it.
func (s *RedisSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	latest := make(map[string]map[string]interface{})
	order := make([]string, 0)
	set := func(key string, values map[string]interface{}) {
		fields, ok := latest[key]
		if !ok {
			fields = make(map[string]interface{}, len(values))
			latest[key] = fields
			order = append(order, key)
		}
		for k, v := range values {
			fields[k] = v
		}
	}
	for _, evt := range batch {
		at := evt.Time().UTC().Format(time.RFC3339Nano)
		switch e := evt.(type) {
		case progress.Submitted:
			set(s.JobKey(e.Request.ID), map[string]interface{}{
				"req_id":     e.Request.ID,
				"url":        e.Request.URL,
				"status":     string(progress.KindDownloading),
				"updated_at": at,
			})
		case progress.Downloading:
			set(s.JobKey(e.ReqID), map[string]interface{}{
				"status":           string(e.Kind()),
				"filename":         e.Filename,
				"downloaded_bytes": e.DownloadedBytes,
				"total_bytes":      e.TotalBytes,
				"updated_at":       at,
			})
		case progress.Downloaded:
			set(s.JobKey(e.ReqID), map[string]interface{}{"filename": e.Filename, "updated_at": at})
		case progress.Completed:
			set(s.JobKey(e.ReqID), map[string]interface{}{
				"status":     string(e.Kind()),
				"key":        e.Artifact.Key,
				"updated_at": at,
			})
			set(s.ArtifactKey(e.Artifact.Key), map[string]interface{}{
				"key":         e.Artifact.Key,
				"pretty_name": e.Artifact.PrettyName,
				"path":        e.Artifact.RelativePath,
				"req_id":      e.ReqID,
				"created_at":  at,
			})
		case progress.Failed:
			set(s.JobKey(e.ReqID), map[string]interface{}{
				"status":     string(e.Kind()),
				"msg":        e.Msg,
				"updated_at": at,
			})
		case progress.Deleted:
			key := s.ArtifactKey(e.Key)
			delete(latest, key)
			if err := s.client.Del(ctx, key).Err(); err != nil {
				errs = append(errs, fmt.Errorf("del %s: %w", key, err))
			}
		}
	}
	for _, key := range order {
		fields, ok := latest[key]
		if !ok {
			continue
		}
		if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
			errs = append(errs, fmt.Errorf("hset %s: %w", key, err))
			continue
		}
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; the client is owned by the caller.
func (s *RedisSink) Close(context.Context) error {
	return nil
}
