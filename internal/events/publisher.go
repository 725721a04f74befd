package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/glb-scraper/internal/models"
)

const (
	DefaultStream = "stream:asset_downloads"

	EventAssetRecorded = "ASSET_RECORDED"
	source             = "glb-scraper"
)

// RedisClient is the subset of *redis.Client the publisher uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// AssetRecorded is published once per ledger record.
type AssetRecorded struct {
	ID         uuid.UUID `json:"id"`
	VariantURL string    `json:"variant_url"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	AssetURL   string    `json:"asset_url,omitempty"`
	FilePath   string    `json:"file_path,omitempty"`
	Downloaded bool      `json:"downloaded"`
	Status     string    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
}

func NewAssetRecorded(rec *models.ProductRecord, status models.ExtractionStatus, filePath string) AssetRecorded {
	return AssetRecorded{
		ID:         uuid.New(),
		VariantURL: rec.URL,
		Name:       rec.Name,
		Color:      rec.Color,
		AssetURL:   rec.Asset(),
		FilePath:   filePath,
		Downloaded: rec.Downloaded,
		Status:     string(status),
		RecordedAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event AssetRecorded) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, AssetRecorded) error { return nil }
func (NopPublisher) Close() error                                 { return nil }

// RedisPublisher appends events to a Redis stream.
type RedisPublisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewRedisPublisher(client RedisClient, stream string, logger *slog.Logger) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "publisher"),
	}
}

// Connect builds a Redis client and checks it responds.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, event AssetRecorded) error {
	data, err := json.Marshal(map[string]interface{}{
		"id":        event.ID.String(),
		"type":      EventAssetRecorded,
		"timestamp": event.RecordedAt.Format(time.RFC3339),
		"payload":   event,
		"metadata": map[string]interface{}{
			"source": source,
			"stream": p.stream,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":        string(data),
			"type":        EventAssetRecorded,
			"event_id":    event.ID.String(),
			"variant_url": event.VariantURL,
			"downloaded":  fmt.Sprintf("%t", event.Downloaded),
			"timestamp":   fmt.Sprintf("%d", event.RecordedAt.UnixNano()),
		},
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published", "event_id", event.ID, "stream_id", id, "url", event.VariantURL)
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.redis.Close()
}
