package hailerter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "hailerter:flow:"

// RedisClient is the thin wrapper the mirror dials through, grounded on the
// teacher's redis.Client (DialTimeout/ReadTimeout/WriteTimeout/PoolSize,
// startup Ping-and-log).
type RedisClient struct {
	*redis.Client
	log *zap.Logger
}

// NewRedisClient connects to addr and logs the outcome of a startup ping.
// A failed ping does not prevent construction — the mirror treats every
// subsequent Redis error as a best-effort write-through failure (§4.6).
func NewRedisClient(addr string, log *zap.Logger) *RedisClient {
	log = log.Named("redis")
	opts := &redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
	c := &RedisClient{Client: redis.NewClient(opts), log: log}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := c.Ping(ctx).Err(); err != nil {
		log.Warn("connection failed", zap.String("addr", addr), zap.Error(err), zap.Duration("ping_rtt", time.Since(start)))
	} else {
		log.Info("connection established", zap.String("addr", addr), zap.Duration("ping_rtt", time.Since(start)))
	}
	return c
}

// RedisMirror implements Mirror by best-effort write-through of flow
// snapshots to Redis. Writes run synchronously on the caller's goroutine,
// each bounded by a 2-second timeout; failures are logged at Warn and never
// fail the notification path. It never reads back — hailerter's own flow
// map is always the source of truth.
type RedisMirror struct {
	client *RedisClient
	log    *zap.Logger
}

// NewRedisMirror wraps client in a Mirror.
func NewRedisMirror(client *RedisClient, log *zap.Logger) *RedisMirror {
	return &RedisMirror{client: client, log: log.Named("mirror")}
}

// flowSnapshot is the JSON shape written to Redis for each tracked flow.
type flowSnapshot struct {
	Aspect     string          `json:"aspect"`
	Location   json.RawMessage `json:"location"`
	Status     string          `json:"status"`
	StatusTime int64           `json:"status_time"`
	StatusInfo json.RawMessage `json:"status_info,omitempty"`
	Notified   int64           `json:"notified"`
	MutedUntil int64           `json:"muted_until,omitempty"`
}

func flowKey(id FlowID) string {
	return redisKeyPrefix + id.String()
}

// Write persists flow's current snapshot under its key. Failures are
// logged at Warn and otherwise swallowed, so they never fail the caller's
// notification path; the call blocks for at most the 2-second timeout.
func (m *RedisMirror) Write(id FlowID, flow *Flow, mutedUntil int64) {
	snap := flowSnapshot{
		Aspect:     flow.Aspect,
		Location:   json.RawMessage(id.Location),
		Status:     flow.Status,
		StatusTime: flow.StatusTime,
		StatusInfo: flow.StatusInfo,
		Notified:   flow.Notified,
		MutedUntil: mutedUntil,
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		m.log.Warn("encode snapshot", zap.Stringer("flow", id), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.client.Set(ctx, flowKey(id), payload, 0).Err(); err != nil {
		m.log.Warn("write snapshot", zap.Stringer("flow", id), zap.Error(err))
	}
}

// Delete removes id's mirrored snapshot, if any.
func (m *RedisMirror) Delete(id FlowID) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.client.Del(ctx, flowKey(id)).Err(); err != nil {
		m.log.Warn("delete snapshot", zap.Stringer("flow", id), zap.Error(fmt.Errorf("del: %w", err)))
	}
}
