// Package redisstore keeps cached results in Redis so that several
// scheduler processes can share them.
package redisstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ffscout/scouter"
)

// Config holds the connection settings.
type Config struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	Database     int           `yaml:"database"`
	KeyPrefix    string        `yaml:"key-prefix"`
	PoolSize     int           `yaml:"pool-size"`
	DialTimeout  time.Duration `yaml:"dial-timeout"`
	ReadTimeout  time.Duration `yaml:"read-timeout"`
	WriteTimeout time.Duration `yaml:"write-timeout"`
	EnableTLS    bool          `yaml:"enable-tls"`
}

// DefaultConfig returns the defaults for a local Redis.
func DefaultConfig() Config {
	return Config{
		Address:      "localhost:6379",
		KeyPrefix:    "scouter:",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewClient creates a go-redis client from cfg.
func NewClient(cfg Config) *redis.Client {
	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// Store keeps every result under its own key and indexes the expiries in a
// sorted set. Keys carry no Redis expiry; expired entries stay until they're
// swept, so Dump sees them like it does in the other stores.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	clock  scouter.Clock
}

type Option func(*Store)

// WithClock changes the clock used to stamp and check expiries.
func WithClock(clock scouter.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithKeyPrefix sets the prefix of every key the store writes.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func New(client redis.UniversalClient, ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		panic("ttl must be greater than 0")
	}
	s := &Store{
		client: client,
		prefix: "scouter:",
		ttl:    ttl,
		clock:  scouter.NewClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) resultKey(id scouter.ID) string {
	return s.prefix + "result:" + strconv.FormatInt(int64(id), 10)
}

func (s *Store) indexKey() string {
	return s.prefix + "expiry"
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Get(ctx context.Context, ids []scouter.ID) (map[scouter.ID]*scouter.CachedResult, error) {
	results := make(map[scouter.ID]*scouter.CachedResult, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.resultKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: mget: %w", err)
	}

	now := s.clock.Now()
	for i, id := range ids {
		results[id] = nil
		cached, ok, err := decode(values[i])
		if err != nil {
			return nil, fmt.Errorf("redisstore: decode %d: %w", id, err)
		}
		if !ok || cached.Expired(now) {
			continue
		}
		results[id] = &cached
	}
	return results, nil
}

func decode(value any) (scouter.CachedResult, bool, error) {
	if value == nil {
		return scouter.CachedResult{}, false, nil
	}
	str, ok := value.(string)
	if !ok {
		return scouter.CachedResult{}, false, errors.New("unexpected value type")
	}
	cached, err := scouter.UnmarshalCachedResult([]byte(str))
	if err != nil {
		return scouter.CachedResult{}, false, err
	}
	return cached, true, nil
}

// Update writes every result in one MULTI/EXEC transaction.
func (s *Store) Update(ctx context.Context, results []scouter.Result) error {
	if len(results) == 0 {
		return nil
	}

	expiry := s.clock.Now().Add(s.ttl)
	pipe := s.client.TxPipeline()
	for _, result := range results {
		data, err := scouter.MarshalCachedResult(scouter.CachedResult{Result: result, Expiry: expiry})
		if err != nil {
			return err
		}
		id := result.ID()
		pipe.Set(ctx, s.resultKey(id), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(expiry.UnixMilli()),
			Member: strconv.FormatInt(int64(id), 10),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: update: %w", err)
	}
	return nil
}

// sweepScript deletes the expired entries in one atomic step, so a write
// that lands while a sweep is running can't lose its fresh record.
//
// KEYS[1] is the expiry index, ARGV[1] the cutoff in unix milliseconds and
// ARGV[2] the prefix of the result keys.
var sweepScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, member in ipairs(members) do
	redis.call('DEL', ARGV[2] .. member)
	redis.call('ZREM', KEYS[1], member)
end
return #members
`)

// SweepExpired removes every entry whose indexed expiry is at or before now.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	cutoff := strconv.FormatInt(s.clock.Now().UnixMilli(), 10)
	n, err := sweepScript.Run(ctx, s.client, []string{s.indexKey()}, cutoff, s.prefix+"result:").Int()
	if err != nil {
		return 0, fmt.Errorf("redisstore: sweep: %w", err)
	}
	return n, nil
}

// Dump returns every indexed entry, expired or not.
func (s *Store) Dump(ctx context.Context) ([]scouter.CachedResult, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: scan expiry index: %w", err)
	}

	dump := make([]scouter.CachedResult, 0, len(members))
	if len(members) == 0 {
		return dump, nil
	}

	keys := make([]string, 0, len(members))
	for _, member := range members {
		keys = append(keys, s.prefix+"result:"+member)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: mget: %w", err)
	}
	for i, value := range values {
		cached, ok, err := decode(value)
		if err != nil {
			return nil, fmt.Errorf("redisstore: decode %s: %w", members[i], err)
		}
		if ok {
			dump = append(dump, cached)
		}
	}
	return dump, nil
}
