package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JinxX404/BookNest-fullstack/internal/events"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/models"
	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
	"github.com/JinxX404/BookNest-fullstack/pkg/retry"
)

const ratingEventChannel = "booknest:rating_events"

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func recsKey(userID int64, n int, modelID string) string {
	if modelID == "" {
		modelID = "active"
	}
	return fmt.Sprintf("recs:%d:%d:%s", userID, n, modelID)
}

func (c *Client) SetRecommendations(ctx context.Context, userID int64, n int, modelID string, recs []models.UserRecommendation) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}

	if err := c.client.Set(ctx, recsKey(userID, n, modelID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set recommendation cache: %w", err)
	}

	logger.Debug("Recommendations cached", zap.Int64("user_id", userID), zap.Int("n", n))
	return nil
}

func (c *Client) GetRecommendations(ctx context.Context, userID int64, n int, modelID string) ([]models.UserRecommendation, bool, error) {
	data, err := c.client.Get(ctx, recsKey(userID, n, modelID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get recommendation cache: %w", err)
	}

	var recs []models.UserRecommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal recommendations: %w", err)
	}

	logger.Debug("Recommendation cache hit", zap.Int64("user_id", userID))
	return recs, true, nil
}

// InvalidateUser drops every cached recommendation list for the user. Called
// on rating writes so served lists never include a freshly rated book.
func (c *Client) InvalidateUser(ctx context.Context, userID int64) error {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("recs:%d:*", userID), 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}
	return nil
}

// InvalidateActive drops every cached list keyed to the active model, for all
// users. Called when the active model changes so lists built by the previous
// model do not keep serving until their TTL runs out.
func (c *Client) InvalidateActive(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "recs:*:active", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}
	return nil
}

// PublishRatingEvent puts a rating event on the broker channel. Implements
// events.Publisher.
func (c *Client) PublishRatingEvent(ctx context.Context, ev events.RatingEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal rating event: %w", err)
	}
	if err := c.client.Publish(ctx, ratingEventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish rating event: %w", err)
	}
	return nil
}

// SubscribeRatingEvents consumes the broker channel into a local channel,
// reconnecting with backoff until the context is cancelled. Delivery is
// at-least-once; consumers are expected to be idempotent.
func (c *Client) SubscribeRatingEvents(ctx context.Context) <-chan events.RatingEvent {
	out := make(chan events.RatingEvent, 64)

	go func() {
		defer close(out)
		for ctx.Err() == nil {
			err := retry.Do(ctx, retry.Config{
				MaxAttempts:  5,
				InitialDelay: time.Second,
				MaxDelay:     30 * time.Second,
				Multiplier:   2.0,
				Logger:       logger.Log,
			}, func() error {
				return c.consume(ctx, out)
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("Rating event subscription lost, restarting", zap.Error(err))
			}
		}
	}()

	return out
}

func (c *Client) consume(ctx context.Context, out chan<- events.RatingEvent) error {
	sub := c.client.Subscribe(ctx, ratingEventChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("rating event channel closed")
			}
			var ev events.RatingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("Dropping malformed rating event", zap.Error(err))
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
