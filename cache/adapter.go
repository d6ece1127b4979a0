package cache

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/solotracker/cache/local"
	cacheredis "github.com/kasuganosora/solotracker/cache/redis"
	"github.com/kasuganosora/solotracker/config"
)

// ErrNotFound is returned by Get and ZScore when the key or member is absent.
var ErrNotFound = errors.New("cache: key not found")

// ZMember is a scored sorted-set member.
type ZMember = local.ZMember

// Cache defines the KV and sorted-set operations used for sessions, job
// locks and the leaderboard.
type Cache interface {
	// KV
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ZSet
	ZAdd(ctx context.Context, key string, members ...ZMember) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error)
	ZScore(ctx context.Context, key, member string) (float64, error)
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// NewCache returns a Cache backed by Redis if RedisAddr is set,
// otherwise returns an in-process LocalCache.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	if cfg.RedisAddr != "" {
		rc, err := cacheredis.NewCache(cacheredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return &redisCacheAdapter{rc}, nil
	}
	lc, err := local.NewCache(local.Config{
		GCInterval: cfg.LocalGCInterval,
	})
	if err != nil {
		return nil, err
	}
	return &localCacheAdapter{lc}, nil
}

// NewPubSub returns a PubSub backed by Redis if RedisAddr is set,
// otherwise returns an in-process LocalPubSub wrapped in an adapter.
func NewPubSub(cfg config.CacheConfig) (PubSub, error) {
	bufSize := cfg.LocalPubSubBuf
	if bufSize <= 0 {
		bufSize = 256
	}
	if cfg.RedisAddr != "" {
		rps, err := cacheredis.NewPubSub(cacheredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return &redisPubSubAdapter{ps: rps}, nil
	}
	return &localPubSubAdapter{ps: local.NewPubSub(bufSize)}, nil
}

// ---- adapters to bridge sub-package types and errors ----

func mapNotFound(err error) error {
	if errors.Is(err, local.ErrNotFound) || errors.Is(err, cacheredis.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

type localCacheAdapter struct {
	*local.LocalCache
}

func (a *localCacheAdapter) Get(ctx context.Context, key string) (string, error) {
	v, err := a.LocalCache.Get(ctx, key)
	return v, mapNotFound(err)
}

func (a *localCacheAdapter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return mapNotFound(a.LocalCache.Expire(ctx, key, ttl))
}

func (a *localCacheAdapter) ZScore(ctx context.Context, key, member string) (float64, error) {
	v, err := a.LocalCache.ZScore(ctx, key, member)
	return v, mapNotFound(err)
}

type redisCacheAdapter struct {
	*cacheredis.RedisCache
}

func (a *redisCacheAdapter) Get(ctx context.Context, key string) (string, error) {
	v, err := a.RedisCache.Get(ctx, key)
	return v, mapNotFound(err)
}

func (a *redisCacheAdapter) ZScore(ctx context.Context, key, member string) (float64, error) {
	v, err := a.RedisCache.ZScore(ctx, key, member)
	return v, mapNotFound(err)
}

func (a *redisCacheAdapter) ZAdd(ctx context.Context, key string, members ...ZMember) error {
	zs := make([]cacheredis.ZMember, len(members))
	for i, m := range members {
		zs[i] = cacheredis.ZMember{Member: m.Member, Score: m.Score}
	}
	return a.RedisCache.ZAdd(ctx, key, zs...)
}

func (a *redisCacheAdapter) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error) {
	zs, err := a.RedisCache.ZRevRangeWithScores(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	out := make([]ZMember, len(zs))
	for i, z := range zs {
		out[i] = ZMember{Member: z.Member, Score: z.Score}
	}
	return out, nil
}

type localPubSubAdapter struct {
	ps *local.LocalPubSub
}

func (a *localPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *localPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	localCh, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, 256)
	go func() {
		defer close(out)
		for msg := range localCh {
			out <- &Message{Channel: msg.Channel, Payload: msg.Payload}
		}
	}()
	return out, cancel, nil
}

type redisPubSubAdapter struct {
	ps *cacheredis.RedisPubSub
}

func (a *redisPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *redisPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	redisCh, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, 256)
	go func() {
		defer close(out)
		for msg := range redisCh {
			out <- &Message{Channel: msg.Channel, Payload: msg.Payload}
		}
	}()
	return out, cancel, nil
}
