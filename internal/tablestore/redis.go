package tablestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTable implements Table on Redis.
// A partition is a hash under "<table>:<partitionKey>" whose fields are row
// keys and whose values are the JSON-encoded row properties. The partition
// version lives at "<table>:<partitionKey>:etag" and is bumped by every batch.
type RedisTable struct {
	client *redis.Client
	table  string
}

// NewRedisTable creates a Redis-backed table. table defaults to "Highscores".
func NewRedisTable(client *redis.Client, table string) *RedisTable {
	if table == "" {
		table = "Highscores"
	}
	return &RedisTable{client: client, table: table}
}

func (r *RedisTable) key(partitionKey string) string {
	return r.table + ":" + partitionKey
}

func (r *RedisTable) etagKey(partitionKey string) string {
	return r.key(partitionKey) + ":etag"
}

func (r *RedisTable) Query(ctx context.Context, partitionKey string) (Page, error) {
	var rows *redis.MapStringStringCmd
	var etag *redis.StringCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		rows = p.HGetAll(ctx, r.key(partitionKey))
		etag = p.Get(ctx, r.etagKey(partitionKey))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Page{}, fmt.Errorf("query partition %q: %w", partitionKey, err)
	}

	page := Page{}
	if v, err := etag.Result(); err == nil {
		page.ETag = v
	}
	for rk, raw := range rows.Val() {
		props, err := decodeProperties([]byte(raw))
		if err != nil {
			// keep the row visible with no columns; the reader decides what to skip
			props = map[string]any{}
		}
		page.Entities = append(page.Entities, Entity{PartitionKey: partitionKey, RowKey: rk, Properties: props})
	}
	return page, nil
}

func (r *RedisTable) SubmitTransaction(ctx context.Context, partitionKey string, entities []Entity, ifMatch string) error {
	if err := validateBatch(partitionKey, entities); err != nil {
		return err
	}
	fields := make([]interface{}, 0, 2*len(entities))
	for _, e := range entities {
		b, err := encodeProperties(e.Properties)
		if err != nil {
			return err
		}
		fields = append(fields, e.RowKey, string(b))
	}

	write := func(p redis.Pipeliner) error {
		if len(fields) > 0 {
			p.HSet(ctx, r.key(partitionKey), fields...)
		}
		p.Incr(ctx, r.etagKey(partitionKey))
		return nil
	}

	if ifMatch == ETagAny {
		if _, err := r.client.TxPipelined(ctx, write); err != nil {
			return fmt.Errorf("submit batch for %q: %w", partitionKey, err)
		}
		return nil
	}

	etagKey := r.etagKey(partitionKey)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, etagKey).Result()
		if errors.Is(err, redis.Nil) {
			current = ""
		} else if err != nil {
			return err
		}
		if current != ifMatch {
			return ErrPreconditionFailed
		}
		_, err = tx.TxPipelined(ctx, write)
		return err
	}, etagKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrPreconditionFailed):
		return ErrPreconditionFailed
	default:
		return fmt.Errorf("submit batch for %q: %w", partitionKey, err)
	}
}
