package caching

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	progressKeyPrefix = "itc:progress:"
	// a finished pass stays readable for a day
	progressTTL = 24 * time.Hour
)

// RedisProgress stores pass progress in a Redis hash per batch, so every
// instance behind the load balancer reports the same numbers.
type RedisProgress struct {
	client *redis.Client
}

// NewRedisProgress connects to addr, which may carry a redis:// scheme.
func NewRedisProgress(addr, password string, db int) *RedisProgress {
	parsedAddr := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", err, parsedAddr)
	} else {
		log.Printf("Redis progress store connected at %s", parsedAddr)
	}

	return &RedisProgress{client: client}
}

func (r *RedisProgress) Close() error {
	return r.client.Close()
}

func progressKey(batchID uuid.UUID) string {
	return progressKeyPrefix + batchID.String()
}

func (r *RedisProgress) Start(ctx context.Context, batchID uuid.UUID, total int) error {
	key := progressKey(batchID)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, startFields(total, time.Now().UTC()))
	pipe.Expire(ctx, key, progressTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisProgress) Advance(ctx context.Context, batchID uuid.UUID) error {
	key := progressKey(batchID)
	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, key, "processed", 1)
	pipe.HSet(ctx, key, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisProgress) Finish(ctx context.Context, batchID uuid.UUID, status models.ImportStatus) error {
	key := progressKey(batchID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "status", string(status), "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, progressTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns nil when the batch has no tracked pass.
func (r *RedisProgress) Get(ctx context.Context, batchID uuid.UUID) (*models.Progress, error) {
	fields, err := r.client.HGetAll(ctx, progressKey(batchID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeProgress(batchID, fields)
}

func startFields(total int, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"processed":  0,
		"total":      total,
		"status":     string(models.ImportProcessing),
		"updated_at": now.Format(time.RFC3339Nano),
	}
}

func decodeProgress(batchID uuid.UUID, fields map[string]string) (*models.Progress, error) {
	p := &models.Progress{
		ImportBatchID: batchID,
		Status:        models.ImportStatus(fields["status"]),
	}

	var err error
	if p.Processed, err = strconv.Atoi(fields["processed"]); err != nil {
		return nil, fmt.Errorf("progress %s: bad processed count: %w", batchID, err)
	}
	if p.Total, err = strconv.Atoi(fields["total"]); err != nil {
		return nil, fmt.Errorf("progress %s: bad total: %w", batchID, err)
	}
	if raw := fields["updated_at"]; raw != "" {
		if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("progress %s: bad timestamp: %w", batchID, err)
		}
	}
	return p, nil
}
