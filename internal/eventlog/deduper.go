// Package eventlog remembers processor events that were applied successfully
// so redeliveries can be acknowledged without replaying them. Business-key
// idempotency in the stores stays the primary guarantee; this log only saves
// work.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-billing/config"
	"storefront-billing/internal/domain/billing"
)

type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string, eventType billing.EventType) error
}

const keyPrefix = "storefront-billing:webhook:"

type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, keyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, eventID string, eventType billing.EventType) error {
	if err := d.client.SetNX(ctx, keyPrefix+eventID, string(eventType), d.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

type DBDeduper struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewDBDeduper(db *gorm.DB, ttl time.Duration) *DBDeduper {
	return &DBDeduper{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Seen ignores entries older than the TTL so both backends answer alike.
func (d *DBDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	var ev billing.ProcessedEvent
	err := d.db.WithContext(ctx).
		Where("event_id = ? AND processed_at > ?", eventID, d.now().Add(-d.ttl)).
		First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DBDeduper) Mark(ctx context.Context, eventID string, eventType billing.EventType) error {
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"processed_at"}),
		}).
		Create(&billing.ProcessedEvent{EventID: eventID, Type: string(eventType), ProcessedAt: d.now()}).Error
}

// Prune deletes entries past the TTL and returns how many were removed.
func (d *DBDeduper) Prune(ctx context.Context) (int64, error) {
	res := d.db.WithContext(ctx).
		Where("processed_at <= ?", d.now().Add(-d.ttl)).
		Delete(&billing.ProcessedEvent{})
	return res.RowsAffected, res.Error
}

// NewRedisClient returns nil when REDIS_ADDR is unset.
func NewRedisClient(cfg config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewDeduper prefers Redis when a client is configured and falls back to the
// database table otherwise.
func NewDeduper(cfg config.Config, db *gorm.DB, client *redis.Client, log *zap.Logger) Deduper {
	if client != nil {
		log.Info("webhook event log backed by redis", zap.Duration("ttl", cfg.EventDedupeTTL))
		return NewRedisDeduper(client, cfg.EventDedupeTTL)
	}
	log.Info("webhook event log backed by database", zap.Duration("ttl", cfg.EventDedupeTTL))
	return NewDBDeduper(db, cfg.EventDedupeTTL)
}
