package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/KirkDiggler/doodle/internal/common/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// Key suffixes for Redis
	versionKeySuffix = ":version"
	orderKeySuffix   = ":order"
	seqKeySuffix     = ":seq"
)

// putVersionedScript: KEYS = record, version; ARGV = expected, next, value
var putVersionedScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if not current then current = '0' end
if current ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[3])
redis.call('SET', KEYS[2], ARGV[2])
redis.call('PUBLISH', KEYS[1], ARGV[3])
return 1
`)

// appendScript: KEYS = collection, order, seq; ARGV = child, value, envelope
var appendScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], seq, ARGV[1])
redis.call('PUBLISH', KEYS[1], ARGV[3])
return seq
`)

// Config holds configuration for the Redis store
type Config struct {
	// Redis client
	RedisClient *redis.Client

	// UUIDGenerator names collection children, uuid.NewOrdered() when nil
	UUIDGenerator uuid.UUID
}

// redisStore implements the Store interface using Redis keys and pub/sub
type redisStore struct {
	client *redis.Client
	uuid   uuid.UUID
}

// NewRedis creates a new Redis-backed store
func NewRedis(cfg *Config) (*redisStore, error) {
	// Validate config
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.RedisClient == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	// Test connection
	if err := cfg.RedisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	gen := cfg.UUIDGenerator
	if gen == nil {
		gen = uuid.NewOrdered()
	}

	return &redisStore{
		client: cfg.RedisClient,
		uuid:   gen,
	}, nil
}

// Get retrieves the record at key
func (r *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return value, nil
}

// Put overwrites the record at key and notifies subscribers
func (r *redisStore) Put(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return ErrInvalidValue
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, value, 0) // No expiration for now
	pipe.Publish(ctx, key, value)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	return nil
}

// PutVersioned writes the record when the stored version matches expected
func (r *redisStore) PutVersioned(ctx context.Context, key string, expected int64, value []byte) (bool, error) {
	if !json.Valid(value) {
		return false, ErrInvalidValue
	}

	keys := []string{key, key + versionKeySuffix}
	written, err := putVersionedScript.Run(ctx, r.client, keys,
		strconv.FormatInt(expected, 10),
		strconv.FormatInt(expected+1, 10),
		value,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to put %s at version %d: %w", key, expected, err)
	}

	return written == 1, nil
}

// Set appends value to the collection at key
func (r *redisStore) Set(ctx context.Context, key string, value []byte) (string, error) {
	if !json.Valid(value) {
		return "", ErrInvalidValue
	}

	childID := r.uuid.NewUUID()
	envelope, err := json.Marshal(childEnvelope{Child: childID, Value: value})
	if err != nil {
		return "", fmt.Errorf("failed to marshal child: %w", err)
	}

	keys := []string{key, key + orderKeySuffix, key + seqKeySuffix}
	if err := appendScript.Run(ctx, r.client, keys, childID, value, envelope).Err(); err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", key, err)
	}

	return childID, nil
}

// Children lists a collection in insertion order
func (r *redisStore) Children(ctx context.Context, key string) ([]Child, error) {
	ids, err := r.client.ZRange(ctx, key+orderKeySuffix, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get children of %s: %w", key, err)
	}

	// If there are no children, return an empty slice
	if len(ids) == 0 {
		return []Child{}, nil
	}

	values, err := r.client.HMGet(ctx, key, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get children of %s: %w", key, err)
	}

	children := make([]Child, 0, len(ids))
	for i, id := range ids {
		value, ok := values[i].(string)
		if !ok {
			// Indexed but never written
			continue
		}
		children = append(children, Child{ID: id, Value: []byte(value)})
	}

	return children, nil
}

// On delivers every future write to the record at key
func (r *redisStore) On(ctx context.Context, key string, h Handler) (Subscription, error) {
	if h == nil {
		return nil, ErrNilHandler
	}

	return r.subscribe(ctx, key, nil, func(payload string) {
		h([]byte(payload))
	})
}

// MapOn delivers existing and future children of the collection at key
func (r *redisStore) MapOn(ctx context.Context, key string, h ChildHandler) (Subscription, error) {
	if h == nil {
		return nil, ErrNilHandler
	}

	return r.mapSubscribe(ctx, key, h)
}

// MapOnce delivers each child of the collection at key at most once
func (r *redisStore) MapOnce(ctx context.Context, key string, h ChildHandler) (Subscription, error) {
	if h == nil {
		return nil, ErrNilHandler
	}

	// Only touched from the subscription goroutine
	seen := make(map[string]struct{})
	return r.mapSubscribe(ctx, key, func(childID string, value []byte) {
		if _, ok := seen[childID]; ok {
			return
		}
		seen[childID] = struct{}{}
		h(childID, value)
	})
}

func (r *redisStore) mapSubscribe(ctx context.Context, key string, h ChildHandler) (Subscription, error) {
	replay := func() {
		children, err := r.Children(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("store: replay failed")
			return
		}
		for _, c := range children {
			h(c.ID, c.Value)
		}
	}

	return r.subscribe(ctx, key, replay, func(payload string) {
		var env childEnvelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil || env.Child == "" {
			log.Debug().Str("key", key).Msg("store: dropping malformed child notification")
			return
		}
		h(env.Child, env.Value)
	})
}

// subscribe confirms the channel subscription before any replay so that no
// write between replay and live delivery is lost.
func (r *redisStore) subscribe(ctx context.Context, key string, replay func(), deliver func(payload string)) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pubsub := r.client.Subscribe(ctx, key)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}

	sub := &subscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}
	context.AfterFunc(ctx, func() {
		_ = sub.Close()
	})

	messages := pubsub.Channel()
	go func() {
		defer close(sub.done)
		if replay != nil {
			replay()
		}
		for msg := range messages {
			deliver(msg.Payload)
		}
	}()

	return sub, nil
}

// subscription wraps one Redis pub/sub connection
type subscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	err    error
	done   chan struct{}
}

// Close stops delivery; it is safe to call more than once
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.err = s.pubsub.Close()
	})
	return s.err
}
