package tablestore

import (
	"context"
	"strconv"
	"sync"
)

// MemoryTable keeps rows in process. Rows are stored encoded so readers never
// share maps with writers.
type MemoryTable struct {
	mu         sync.RWMutex
	partitions map[string]*memoryPartition
}

type memoryPartition struct {
	rows    map[string][]byte
	version int64
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{partitions: map[string]*memoryPartition{}}
}

func (m *MemoryTable) Query(ctx context.Context, partitionKey string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.partitions[partitionKey]
	if !ok {
		return Page{}, nil
	}
	page := Page{ETag: strconv.FormatInt(p.version, 10)}
	for rk, raw := range p.rows {
		props, err := decodeProperties(raw)
		if err != nil {
			props = map[string]any{}
		}
		page.Entities = append(page.Entities, Entity{PartitionKey: partitionKey, RowKey: rk, Properties: props})
	}
	return page, nil
}

func (m *MemoryTable) SubmitTransaction(ctx context.Context, partitionKey string, entities []Entity, ifMatch string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateBatch(partitionKey, entities); err != nil {
		return err
	}
	encoded := make(map[string][]byte, len(entities))
	for _, e := range entities {
		b, err := encodeProperties(e.Properties)
		if err != nil {
			return err
		}
		encoded[e.RowKey] = b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[partitionKey]
	if ifMatch != ETagAny {
		current := ""
		if ok {
			current = strconv.FormatInt(p.version, 10)
		}
		if current != ifMatch {
			return ErrPreconditionFailed
		}
	}
	if !ok {
		p = &memoryPartition{rows: map[string][]byte{}}
		m.partitions[partitionKey] = p
	}
	for rk, b := range encoded {
		p.rows[rk] = b
	}
	p.version++
	return nil
}

// PutRaw stores an already-encoded row without bumping the partition version.
// Tests use it to plant rows the service itself would never write.
func (m *MemoryTable) PutRaw(partitionKey, rowKey string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[partitionKey]
	if !ok {
		p = &memoryPartition{rows: map[string][]byte{}}
		m.partitions[partitionKey] = p
	}
	p.rows[rowKey] = raw
}
