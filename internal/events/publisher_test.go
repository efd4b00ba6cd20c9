package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRedisClient is a mock for Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestPublisher_ProductSaved(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	pub := NewPublisher(mockRedis, "", slog.Default())
	pub.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	price := 1299.0
	mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		if args.Stream != DefaultStream || args.Values.(map[string]interface{})["type"] != "PRODUCT_SAVED" {
			return false
		}

		var env Envelope
		if err := json.Unmarshal([]byte(args.Values.(map[string]interface{})["data"].(string)), &env); err != nil {
			return false
		}
		var payload ProductSavedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false
		}
		return env.Type == EventTypeProductSaved &&
			env.ID != "" &&
			payload.Title == "Kettle" &&
			len(payload.EntryIDs) == 2 &&
			payload.TotalRequested == 3
	})).Return(nil)

	err := pub.ProductSaved(ctx, ProductSavedPayload{
		URL:            "https://www.amazon.in/dp/B0KETTLE01",
		Site:           "Amazon",
		Title:          "Kettle",
		Price:          &price,
		WishlistIDs:    []int64{1, 2, 3},
		EntryIDs:       []int64{10, 12},
		TotalRequested: 3,
	})
	require.NoError(t, err)
	mockRedis.AssertExpectations(t)
}

func TestPublisher_SharedLinkReceived_CustomStream(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	pub := NewPublisher(mockRedis, "stream:shares", slog.Default())

	mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		values := args.Values.(map[string]interface{})
		return args.Stream == "stream:shares" &&
			values["type"] == "SHARED_LINK_RECEIVED" &&
			values["aggregate_id"] == "https://www.myntra.com/x/y/z/1/buy"
	})).Return(nil)

	err := pub.SharedLinkReceived(ctx, SharedLinkPayload{
		Raw: "Look at this https://www.myntra.com/x/y/z/1/buy",
		URL: "https://www.myntra.com/x/y/z/1/buy",
	})
	require.NoError(t, err)
	mockRedis.AssertExpectations(t)
}

func TestPublisher_RedisError(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	pub := NewPublisher(mockRedis, "", slog.Default())

	mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("connection refused"))

	err := pub.SharedLinkReceived(ctx, SharedLinkPayload{URL: "https://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish to redis")
}

func TestPublisher_Close(t *testing.T) {
	mockRedis := new(MockRedisClient)
	mockRedis.On("Close").Return(nil)

	pub := NewPublisher(mockRedis, "", slog.Default())
	assert.NoError(t, pub.Close())
	mockRedis.AssertExpectations(t)
}

func TestNop(t *testing.T) {
	var e Emitter = Nop{}
	assert.NoError(t, e.ProductSaved(context.Background(), ProductSavedPayload{}))
	assert.NoError(t, e.SharedLinkReceived(context.Background(), SharedLinkPayload{}))
}
