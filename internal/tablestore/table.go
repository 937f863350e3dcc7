// Package tablestore is a partitioned key-value table: rows are addressed by a
// partition key and a row key, and all rows of one partition can be written
// together in a single atomic batch.
package tablestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrPreconditionFailed is returned by a conditional batch whose ETag no
	// longer matches the partition.
	ErrPreconditionFailed = errors.New("tablestore: partition changed since it was read")
	ErrPartitionMismatch  = errors.New("tablestore: batch spans more than one partition")
	ErrInvalidKey         = errors.New("tablestore: invalid key")
)

// ETagAny makes a batch unconditional.
const ETagAny = "*"

// Entity is one row. Properties hold the row's columns.
type Entity struct {
	PartitionKey string
	RowKey       string
	Properties   map[string]any
}

// Page is the result of a partition query. ETag identifies the partition
// version the rows were read at; it is empty when the partition has never
// been written.
type Page struct {
	Entities []Entity
	ETag     string
}

// Table is the store contract the leaderboard consumes.
type Table interface {
	// Query returns every row of the partition, in no particular order.
	Query(ctx context.Context, partitionKey string) (Page, error)
	// SubmitTransaction upserts (replaces) every entity in one atomic batch.
	// ifMatch is ETagAny for an unconditional write, or an ETag from Query;
	// a stale ETag yields ErrPreconditionFailed and nothing is written.
	SubmitTransaction(ctx context.Context, partitionKey string, entities []Entity, ifMatch string) error
}

// GetInt32 returns a 32-bit integer property. Strings are not coerced.
func (e Entity) GetInt32(name string) (int32, bool) {
	v, ok := e.Properties[name]
	if !ok || v == nil {
		return 0, false
	}
	var n int64
	switch x := v.(type) {
	case int32:
		return x, true
	case int:
		n = int64(x)
	case int64:
		n = x
	case float64:
		if x != float64(int64(x)) {
			return 0, false
		}
		n = int64(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	if n < -1<<31 || n > 1<<31-1 {
		return 0, false
	}
	return int32(n), true
}

// GetTime returns a timestamp property in UTC.
func (e Entity) GetTime(name string) (time.Time, bool) {
	v, ok := e.Properties[name]
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}

func validateBatch(partitionKey string, entities []Entity) error {
	if partitionKey == "" {
		return fmt.Errorf("%w: empty partition key", ErrInvalidKey)
	}
	for _, e := range entities {
		if e.PartitionKey != partitionKey {
			return ErrPartitionMismatch
		}
		if e.RowKey == "" || strings.ContainsAny(e.RowKey, ".$") {
			return fmt.Errorf("%w: row key %q", ErrInvalidKey, e.RowKey)
		}
	}
	return nil
}

// encodeProperties renders a row for the JSON-backed stores. Times are
// written as RFC3339 with nanoseconds so tie-breaks survive a round trip.
func encodeProperties(props map[string]any) ([]byte, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if t, ok := v.(time.Time); ok {
			out[k] = t.UTC().Format(time.RFC3339Nano)
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

func decodeProperties(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var props map[string]any
	if err := dec.Decode(&props); err != nil {
		return nil, err
	}
	return props, nil
}
