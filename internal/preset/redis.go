package preset

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	backend "github.com/redis/go-redis/v9"

	"github.com/cjeanneret/VoxArm/internal/arm"
)

// DefaultRedisPrefix namespaces preset keys.
const DefaultRedisPrefix = "voxarm:preset:"

// RedisStore keeps each preset in a hash (joint name to angle) at
// <prefix>p:<name> and tracks names in a set at <prefix>names. The two
// namespaces never overlap, whatever the preset is called.
type RedisStore struct {
	client *backend.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix for presets.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedis connects a store to the server at address.
func NewRedis(address, password string, db int, opts ...RedisOption) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisFromClient(rdb, opts...)
}

// NewRedisFromClient creates a store on an existing client.
func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(name string) string {
	return s.prefix + "p:" + name
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "names"
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Save replaces the preset hash and indexes its name in one transaction.
func (s *RedisStore) Save(ctx context.Context, name string, w arm.Waypoint) error {
	if name == "" {
		return ErrEmptyName
	}
	fields := make(map[string]any, arm.NumJoints)
	for joint, angle := range toRecord(w) {
		fields[joint] = angle
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(name))
	pipe.HSet(ctx, s.key(name), fields)
	pipe.SAdd(ctx, s.indexKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save preset %q to redis: %w", name, err)
	}
	return nil
}

// Load reads a preset hash.
func (s *RedisStore) Load(ctx context.Context, name string) (arm.Waypoint, error) {
	vals, err := s.client.HGetAll(ctx, s.key(name)).Result()
	if err != nil {
		return arm.Waypoint{}, fmt.Errorf("failed to get preset %q from redis: %w", name, err)
	}
	// HGETALL on a missing key is an empty map, not backend.Nil.
	if len(vals) == 0 {
		return arm.Waypoint{}, &NotFoundError{Name: name}
	}

	r := make(record, len(vals))
	for joint, raw := range vals {
		angle, err := strconv.Atoi(raw)
		if err != nil {
			return arm.Waypoint{}, fmt.Errorf("preset %q: bad angle %q for %s: %w", name, raw, joint, err)
		}
		r[joint] = angle
	}
	return r.waypoint(), nil
}

// List returns the indexed preset names in lexical order.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
