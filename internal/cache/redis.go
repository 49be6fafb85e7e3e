package cache

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"ems-dispatch-api/internal/model"

	"github.com/redis/go-redis/v9"
)

// MaxFlushBatch caps how many characters are flushed per cycle.
const MaxFlushBatch = 100

// popDeltaScript atomically removes one character's pending counters so a
// failed flush can re-add them without losing concurrent increments.
var popDeltaScript = redis.NewScript(`
	local e = redis.call("HGET", KEYS[1], ARGV[1])
	local c = redis.call("HGET", KEYS[2], ARGV[1])
	redis.call("HDEL", KEYS[1], ARGV[1])
	redis.call("HDEL", KEYS[2], ARGV[1])
	redis.call("SREM", KEYS[3], ARGV[1])
	return {e, c}
`)

// RedisStatBuffer uses Redis for write-behind buffering of career stat
// increments. Increments survive an API restart as long as Redis does.
type RedisStatBuffer struct {
	client      *redis.Client
	flushFunc   FlushFunc
	flushTicker *time.Ticker
	stopFlush   chan struct{}
	stopOnce    sync.Once
	keyPrefix   string
}

// RedisBufferConfig holds configuration for the Redis stat buffer.
type RedisBufferConfig struct {
	Addr          string
	Password      string
	DB            int
	FlushInterval time.Duration
	KeyPrefix     string
}

// NewRedisStatBuffer creates a Redis-backed stat buffer.
func NewRedisStatBuffer(cfg RedisBufferConfig, flushFunc FlushFunc) (*RedisStatBuffer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "ems:career"
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}

	b := &RedisStatBuffer{
		client:      client,
		flushFunc:   flushFunc,
		flushTicker: time.NewTicker(cfg.FlushInterval),
		stopFlush:   make(chan struct{}),
		keyPrefix:   keyPrefix,
	}

	go b.backgroundFlush()

	log.Printf("[RedisStatBuffer] Started - DB:%d, prefix:%s, flush:%v",
		cfg.DB, keyPrefix, cfg.FlushInterval)
	return b, nil
}

func (b *RedisStatBuffer) earningsKey() string { return b.keyPrefix + ":earnings" }
func (b *RedisStatBuffer) callsKey() string    { return b.keyPrefix + ":calls" }
func (b *RedisStatBuffer) pendingKey() string  { return b.keyPrefix + ":pending" }

// Add buffers a stat increment in Redis.
func (b *RedisStatBuffer) Add(ctx context.Context, delta model.CareerDelta) error {
	pipe := b.client.Pipeline()
	if delta.Earnings != 0 {
		pipe.HIncrBy(ctx, b.earningsKey(), delta.CharacterName, delta.Earnings)
	}
	if delta.CallsCompleted != 0 {
		pipe.HIncrBy(ctx, b.callsKey(), delta.CharacterName, delta.CallsCompleted)
	}
	pipe.SAdd(ctx, b.pendingKey(), delta.CharacterName)
	_, err := pipe.Exec(ctx)
	return err
}

// Pending returns the number of characters with unflushed increments.
func (b *RedisStatBuffer) Pending(ctx context.Context) (int64, error) {
	return b.client.SCard(ctx, b.pendingKey()).Result()
}

// Flush pops buffered increments and hands them to the flush function.
// On failure the popped increments are re-added to the buffer.
func (b *RedisStatBuffer) Flush(ctx context.Context) error {
	names, err := b.client.SRandMemberN(ctx, b.pendingKey(), MaxFlushBatch).Result()
	if err != nil || len(names) == 0 {
		return err
	}

	now := time.Now()
	batch := make([]model.CareerDelta, 0, len(names))
	for _, name := range names {
		res, err := popDeltaScript.Run(ctx, b.client,
			[]string{b.earningsKey(), b.callsKey(), b.pendingKey()}, name).Slice()
		if err != nil {
			log.Printf("[RedisStatBuffer] Failed to pop delta for %s: %v", name, err)
			continue
		}

		delta := model.CareerDelta{CharacterName: name, UpdatedAt: now}
		if len(res) == 2 {
			delta.Earnings = parseCounter(res[0])
			delta.CallsCompleted = parseCounter(res[1])
		}
		// Zero counters still carry a last-seen update
		batch = append(batch, delta)
	}

	if len(batch) == 0 || b.flushFunc == nil {
		return nil
	}

	if err := b.flushFunc(ctx, batch); err != nil {
		log.Printf("[RedisStatBuffer] Flush of %d deltas failed, re-buffering: %v", len(batch), err)
		for _, d := range batch {
			if addErr := b.Add(ctx, d); addErr != nil {
				log.Printf("[RedisStatBuffer] Re-buffer failed for %s: %v", d.CharacterName, addErr)
			}
		}
		return err
	}

	log.Printf("[RedisStatBuffer] Flushed %d career deltas", len(batch))
	return nil
}

// Close flushes remaining increments and releases the client.
func (b *RedisStatBuffer) Close() error {
	b.stopOnce.Do(func() {
		b.flushTicker.Stop()
		close(b.stopFlush)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.Flush(ctx); err != nil {
		log.Printf("[RedisStatBuffer] Final flush failed: %v", err)
	}
	return b.client.Close()
}

func (b *RedisStatBuffer) backgroundFlush() {
	for {
		select {
		case <-b.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			if err := b.Flush(ctx); err != nil {
				log.Printf("[RedisStatBuffer] Background flush failed: %v", err)
			}
			cancel()
		case <-b.stopFlush:
			return
		}
	}
}

func parseCounter(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Ensure RedisStatBuffer implements StatBuffer
var _ StatBuffer = (*RedisStatBuffer)(nil)
