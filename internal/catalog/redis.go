package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig configures a Redis-backed catalog.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string // default "phymv:"
	DialTimeout time.Duration
	Logger      zerolog.Logger
}

// Redis is a Catalog kept in Redis. Every read-modify-write runs inside
// WATCH/MULTI so the intermediate-status lock holds across independent
// server processes sharing the same Redis.
//
// Keys:
//
//	{prefix}object:{path}    string, Object JSON
//	{prefix}replicas:{path}  hash, replNum -> Replica JSON
//	{prefix}objects          set of object paths
type Redis struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// OpenRedis connects to Redis and verifies the connection with PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %v: %w", cfg.Addr, err, ErrUnavailable)
	}
	return NewRedis(client, cfg.KeyPrefix, cfg.Logger), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, keyPrefix string, logger zerolog.Logger) *Redis {
	if keyPrefix == "" {
		keyPrefix = "phymv:"
	}
	return &Redis{
		client: client,
		prefix: keyPrefix,
		logger: logger.With().Str("component", "catalog-redis").Logger(),
	}
}

func (c *Redis) objectKey(objectPath string) string {
	return c.prefix + "object:" + objectPath
}

func (c *Redis) replicasKey(objectPath string) string {
	return c.prefix + "replicas:" + objectPath
}

func (c *Redis) indexKey() string {
	return c.prefix + "objects"
}

func (c *Redis) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionMismatch), errors.Is(err, ErrExists):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%s: %w", op, ErrTxConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %v: %w", op, err, ErrUnavailable)
	}
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func (c *Redis) getObject(ctx context.Context, g redisGetter, objectPath string) (*Object, error) {
	data, err := g.Get(ctx, c.objectKey(objectPath)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("object %s: %w", objectPath, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode object %s: %w", objectPath, err)
	}
	return &obj, nil
}

func (c *Redis) getReplica(ctx context.Context, g redisGetter, objectPath string, replNum int) (*Replica, error) {
	data, err := g.HGet(ctx, c.replicasKey(objectPath), strconv.Itoa(replNum)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("replica %s#%d: %w", objectPath, replNum, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var r Replica
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode replica %s#%d: %w", objectPath, replNum, err)
	}
	return &r, nil
}

// Object implements Catalog.
func (c *Redis) Object(ctx context.Context, objectPath string) (*Object, error) {
	obj, err := c.getObject(ctx, c.client, objectPath)
	if err != nil {
		return nil, c.classify("read object", err)
	}
	return obj, nil
}

// Replicas implements Catalog.
func (c *Redis) Replicas(ctx context.Context, objectPath string) ([]Replica, error) {
	var out []Replica
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		if _, err := c.getObject(ctx, tx, objectPath); err != nil {
			return err
		}
		fields, err := tx.HGetAll(ctx, c.replicasKey(objectPath)).Result()
		if err != nil {
			return err
		}
		out = make([]Replica, 0, len(fields))
		for field, data := range fields {
			var r Replica
			if err := json.Unmarshal([]byte(data), &r); err != nil {
				return fmt.Errorf("decode replica %s#%s: %w", objectPath, field, err)
			}
			out = append(out, r)
		}
		return nil
	}, c.objectKey(objectPath), c.replicasKey(objectPath))
	if err != nil {
		return nil, c.classify("list replicas", err)
	}
	sortReplicas(out)
	return out, nil
}

// ReadReplica implements Catalog.
func (c *Redis) ReadReplica(ctx context.Context, objectPath string, replNum int) (*Replica, error) {
	r, err := c.getReplica(ctx, c.client, objectPath, replNum)
	if err != nil {
		return nil, c.classify("read replica", err)
	}
	return r, nil
}

// WriteReplica implements Catalog.
func (c *Redis) WriteReplica(ctx context.Context, expected uint64, next Replica) error {
	key := c.replicasKey(next.ObjectPath)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := c.getReplica(ctx, tx, next.ObjectPath, next.ReplNum)
		if err != nil {
			return err
		}
		if cur.Version != expected {
			return fmt.Errorf("replica %s#%d at version %d, expected %d: %w",
				next.ObjectPath, next.ReplNum, cur.Version, expected, ErrVersionMismatch)
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode replica: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, strconv.Itoa(next.ReplNum), data)
			return nil
		})
		return err
	}, key)
	return c.classify("write replica", err)
}

// InsertReplica implements Catalog.
func (c *Redis) InsertReplica(ctx context.Context, owner string, r Replica) (*Replica, error) {
	if err := ValidateObjectPath(r.ObjectPath); err != nil {
		return nil, err
	}

	objKey := c.objectKey(r.ObjectPath)
	replKey := c.replicasKey(r.ObjectPath)
	var stored Replica
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		now := time.Now().UTC()
		obj, err := c.getObject(ctx, tx, r.ObjectPath)
		switch {
		case errors.Is(err, ErrNotFound):
			obj = &Object{
				Path:      r.ObjectPath,
				DataID:    uuid.NewString(),
				Owner:     owner,
				CreatedAt: now,
			}
		case err != nil:
			return err
		}

		stored = r
		stored.DataID = obj.DataID
		stored.ReplNum = obj.NextReplNum
		stored.Version = 1
		stored.LockToken = ""
		stored.HeldStatus = ""
		stored.CreatedAt = now
		stored.ModifiedAt = now
		obj.NextReplNum++

		objData, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("encode object: %w", err)
		}
		replData, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("encode replica: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, objKey, objData, 0)
			pipe.HSet(ctx, replKey, strconv.Itoa(stored.ReplNum), replData)
			pipe.SAdd(ctx, c.indexKey(), r.ObjectPath)
			return nil
		})
		return err
	}, objKey, replKey)
	if err != nil {
		return nil, c.classify("insert replica", err)
	}
	return &stored, nil
}

// DeleteReplica implements Catalog.
func (c *Redis) DeleteReplica(ctx context.Context, objectPath string, replNum int) error {
	key := c.replicasKey(objectPath)
	n, err := c.client.HDel(ctx, key, strconv.Itoa(replNum)).Result()
	if err != nil {
		return c.classify("delete replica", err)
	}
	if n == 0 {
		return fmt.Errorf("replica %s#%d: %w", objectPath, replNum, ErrNotFound)
	}
	return nil
}

// Objects implements Catalog.
func (c *Redis) Objects(ctx context.Context, prefix string) ([]string, error) {
	members, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return nil, c.classify("list objects", err)
	}
	out := make([]string, 0, len(members))
	for _, p := range members {
		if UnderPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close implements Catalog.
func (c *Redis) Close() error {
	return c.client.Close()
}
