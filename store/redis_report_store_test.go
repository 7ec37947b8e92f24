package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Wisny97/Projet-1/models"
)

// MockRedisClient is a mock for the Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	cmd := redis.NewStringCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newTestStore(client *MockRedisClient) *RedisReportStore {
	return &RedisReportStore{client: client, prefix: "catalog:run:", ttl: time.Hour}
}

func TestRedisReportStoreSaveCategory(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	s := newTestStore(client)

	report := models.CategoryReport{
		Category: models.Category{Name: "Science Fiction", ListingURL: "http://example.test/sf"},
		FileBase: "science_fiction",
		Written:  4,
		Skipped:  []models.SkippedProduct{{URL: "http://example.test/p3", ErrorType: "parse", Reason: "bad price"}},
	}

	client.On("Set", ctx, "catalog:run:run-1:science_fiction", mock.MatchedBy(func(payload []byte) bool {
		var decoded models.CategoryReport
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return false
		}
		return decoded.Written == 4 && len(decoded.Skipped) == 1 && decoded.Category.Name == "Science Fiction"
	}), time.Hour).Return(nil).Once()

	require.NoError(t, s.SaveCategory(ctx, "run-1", report))
	client.AssertExpectations(t)
}

func TestRedisReportStoreSaveRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	s := newTestStore(client)

	run := models.RunReport{
		ID:      "run-42",
		HomeURL: "http://example.test/",
		Categories: []models.CategoryReport{
			{FileBase: "travel", Written: 2},
		},
		ErrorsByType: map[string]int{"parse": 1},
	}
	var stored []byte
	client.On("Set", ctx, "catalog:run:run-42", mock.Anything, time.Hour).
		Run(func(args mock.Arguments) { stored = args.Get(2).([]byte) }).
		Return(nil).Once()

	require.NoError(t, s.SaveRun(ctx, run))
	require.NotEmpty(t, stored)

	client.On("Get", ctx, "catalog:run:run-42").Return(string(stored), nil).Once()
	got, ok, err := s.GetRun(ctx, "run-42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "run-42", got.ID)
	assert.Equal(t, 2, got.TotalWritten())
	assert.Equal(t, 1, got.ErrorsByType["parse"])
	client.AssertExpectations(t)
}

func TestRedisReportStoreGetRunMissing(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	s := newTestStore(client)

	client.On("Get", ctx, "catalog:run:absent").Return("", redis.Nil).Once()

	_, ok, err := s.GetRun(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisReportStoreSetError(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	s := newTestStore(client)

	client.On("Set", ctx, "catalog:run:run-1", mock.Anything, time.Hour).Return(errors.New("connection refused")).Once()

	err := s.SaveRun(ctx, models.RunReport{ID: "run-1"})
	assert.EqualError(t, err, "connection refused")
}

func TestRedisReportStoreKeys(t *testing.T) {
	s := NewRedisReportStore("localhost:6379", "catalog:run:", time.Minute)
	defer s.Close()

	assert.Equal(t, "catalog:run:abc", s.RunKey("abc"))
	assert.Equal(t, "catalog:run:abc:poetry", s.CategoryKey("abc", "poetry"))
}
