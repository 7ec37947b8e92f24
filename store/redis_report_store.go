package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Wisny97/Projet-1/models"
)

// redisClient is the subset of *redis.Client the store needs.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// RedisReportStore stores reports in Redis as JSON. Runs live under
// <prefix><run id>, categories under <prefix><run id>:<file base>.
type RedisReportStore struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

// NewRedisReportStore initializes a Redis-backed ReportStore.
func NewRedisReportStore(addr, prefix string, ttl time.Duration) *RedisReportStore {
	return &RedisReportStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Close closes the Redis client.
func (s *RedisReportStore) Close() error {
	return s.client.Close()
}

// RunKey returns the key a run report is stored under.
func (s *RedisReportStore) RunKey(runID string) string {
	return s.prefix + runID
}

// CategoryKey returns the key a category report is stored under.
func (s *RedisReportStore) CategoryKey(runID, fileBase string) string {
	return s.prefix + runID + ":" + fileBase
}

// SaveCategory writes one category report.
func (s *RedisReportStore) SaveCategory(ctx context.Context, runID string, report models.CategoryReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal category report: %w", err)
	}
	return s.client.Set(ctx, s.CategoryKey(runID, report.FileBase), payload, s.ttl).Err()
}

// SaveRun writes the run report.
func (s *RedisReportStore) SaveRun(ctx context.Context, report models.RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	return s.client.Set(ctx, s.RunKey(report.ID), payload, s.ttl).Err()
}

// GetRun reads a run report back.
func (s *RedisReportStore) GetRun(ctx context.Context, runID string) (models.RunReport, bool, error) {
	val, err := s.client.Get(ctx, s.RunKey(runID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.RunReport{}, false, nil
		}
		return models.RunReport{}, false, err
	}

	var report models.RunReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return models.RunReport{}, false, err
	}
	return report, true, nil
}
