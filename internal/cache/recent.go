// Package cache keeps the newest messages of each district in Redis so board
// reads skip the database. The ledger stays the only source of order values.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hongminglow/barrio-seguro-be/internal/models"
	"github.com/hongminglow/barrio-seguro-be/internal/storage"
)

const (
	keyPrefix     = "board:district:"
	keySuffix     = ":recent"
	defaultWindow = 50
	defaultTTL    = 10 * time.Minute
	opTimeout     = 2 * time.Second
)

var _ storage.MessageLedger = (*RecentLedger)(nil)

// RecentLedger decorates a ledger with a Redis sorted set per district, scored
// by order, so concurrent writers cannot reorder the cached window.
type RecentLedger struct {
	next   storage.MessageLedger
	rdb    redis.Cmdable
	logger *slog.Logger
	window int64
	ttl    time.Duration
}

// NewRecentLedger wraps next with a Redis cache.
func NewRecentLedger(next storage.MessageLedger, rdb redis.Cmdable, logger *slog.Logger) *RecentLedger {
	return &RecentLedger{next: next, rdb: rdb, logger: logger, window: defaultWindow, ttl: defaultTTL}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Append writes through to the ledger, then adds the stored message to the window.
func (l *RecentLedger) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	stored, err := l.next.Append(ctx, msg)
	if err != nil {
		return models.Message{}, err
	}
	l.add(ctx, stored.District, []models.Message{stored})
	return stored, nil
}

// Recent serves from Redis when the cached window holds limit consecutive
// orders, otherwise reads the ledger and warms the window.
func (l *RecentLedger) Recent(ctx context.Context, district string, limit int) ([]models.Message, error) {
	if limit > 0 && int64(limit) <= l.window {
		if msgs, ok := l.cached(ctx, district, limit); ok {
			return msgs, nil
		}
	}
	msgs, err := l.next.Recent(ctx, district, limit)
	if err != nil {
		return nil, err
	}
	l.add(ctx, district, msgs)
	return msgs, nil
}

func (l *RecentLedger) cached(ctx context.Context, district string, limit int) ([]models.Message, bool) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := l.rdb.ZRevRange(opCtx, Key(district), 0, int64(limit-1)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.logger.WarnContext(ctx, "recent cache read failed", "district", district, "error", err)
		}
		return nil, false
	}
	if len(raw) < limit {
		return nil, false
	}
	msgs, ok := decodeWindow(raw)
	if !ok {
		return nil, false
	}
	return msgs, true
}

func (l *RecentLedger) add(ctx context.Context, district string, msgs []models.Message) {
	if len(msgs) == 0 {
		return
	}
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()

	key := Key(district)
	pipe := l.rdb.TxPipeline()
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		// One member per order: a re-read of a stored message replaces the
		// copy cached at append time.
		score := strconv.FormatInt(m.Order, 10)
		pipe.ZRemRangeByScore(opCtx, key, score, score)
		pipe.ZAdd(opCtx, key, redis.Z{Score: float64(m.Order), Member: data})
	}
	pipe.ZRemRangeByRank(opCtx, key, 0, -(l.window + 1))
	pipe.Expire(opCtx, key, l.ttl)
	if _, err := pipe.Exec(opCtx); err != nil {
		l.logger.WarnContext(ctx, "recent cache write failed; dropping window", "district", district, "error", err)
		// A window missing a message must not be served.
		_ = l.rdb.Del(context.WithoutCancel(ctx), key).Err()
	}
}

// Key is the Redis key holding the recent window of district.
func Key(district string) string {
	return keyPrefix + district + keySuffix
}

// decodeWindow turns newest-first members into an ascending slice and rejects
// windows whose orders are not consecutive.
func decodeWindow(raw []string) ([]models.Message, bool) {
	msgs := make([]models.Message, 0, len(raw))
	for _, r := range raw {
		var m models.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, false
		}
		msgs = append(msgs, m)
	}
	slices.Reverse(msgs)
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Order != msgs[i-1].Order+1 {
			return nil, false
		}
	}
	return msgs, true
}
