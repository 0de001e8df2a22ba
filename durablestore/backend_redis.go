package durablestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisBackend is an optional, non-default Backend for a shared or
// development environment where the "local" store is actually a shared
// cache. It is not wired into NewStore's default construction path — the
// system is offline-first by design — but satisfies Backend identically to
// the disk-backed implementations.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisBackend wraps an already-connected redis.Client. keyPrefix
// namespaces every key this backend touches.
func NewRedisBackend(client *redis.Client, keyPrefix string) *RedisBackend {
	return &RedisBackend{client: client, keyPrefix: keyPrefix}
}

func (b *RedisBackend) key(storeName, id string) string {
	return fmt.Sprintf("%s:%s:%s", b.keyPrefix, storeName, id)
}

func (b *RedisBackend) setKey(storeName string) string {
	return fmt.Sprintf("%s:%s:ids", b.keyPrefix, storeName)
}

func (b *RedisBackend) Initialize(ctx context.Context) (*Inventory, error) {
	inv := NewInventory()
	raw, err := b.client.Get(ctx, b.key("meta", "inventory")).Bytes()
	if err == redis.Nil {
		return inv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	if err := json.Unmarshal(raw, inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return inv, nil
}

// WriteRecords uses a transactional pipeline so every SET in ws becomes
// visible atomically.
func (b *RedisBackend) WriteRecords(ctx context.Context, ws WriteSet) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range ws.Meta {
			pipe.Set(ctx, b.key(ws.MetaStore, r.ID), r.Payload, 0)
			pipe.SAdd(ctx, b.setKey(ws.MetaStore), r.ID)
		}
		for _, r := range ws.Docs {
			pipe.Set(ctx, b.key(ws.DocsStore, r.ID), r.Payload, 0)
			pipe.SAdd(ctx, b.setKey(ws.DocsStore), r.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *RedisBackend) ReadRecord(ctx context.Context, storeName, id string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key(storeName, id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return data, nil
}

func (b *RedisBackend) ReadRecordsBulk(ctx context.Context, storeName string, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.key(storeName, id)
	}
	vals, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	out := make([]Record, 0, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, Record{ID: ids[i], Payload: []byte(s)})
	}
	return out, nil
}

func (b *RedisBackend) ReadAllRecords(ctx context.Context, storeName string) ([]Record, error) {
	ids, err := b.client.SMembers(ctx, b.setKey(storeName)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return b.ReadRecordsBulk(ctx, storeName, ids)
}

func (b *RedisBackend) DeleteRecord(ctx context.Context, storeName, id string) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.key(storeName, id))
	pipe.SRem(ctx, b.setKey(storeName), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *RedisBackend) ClearStore(ctx context.Context, storeName string) error {
	ids, err := b.client.SMembers(ctx, b.setKey(storeName)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	pipe := b.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, b.key(storeName, id))
	}
	pipe.Del(ctx, b.setKey(storeName))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *RedisBackend) ClearAll(ctx context.Context) error {
	var keys []string
	iter := b.client.Scan(ctx, 0, b.keyPrefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	return nil
}

func (b *RedisBackend) IsReady() bool {
	return b.client != nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
