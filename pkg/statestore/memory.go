package statestore

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It is safe for concurrent use and keeps
// per-operation call counts for tests.
type Memory struct {
	mu      sync.Mutex
	tables  map[string][]Record
	queries int
	puts    int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Record)}
}

// QueryByKind implements Store.
func (m *Memory) QueryByKind(ctx context.Context, table, partitionKey string, kind Kind, opts ...QueryOption) (QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return QueryResult{}, err
	}
	o := ApplyQueryOptions(opts...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++

	var res QueryResult
	for _, rec := range m.tables[table] {
		if rec.PartitionKey != partitionKey || rec.Kind != kind {
			continue
		}
		res.Count++
		if !o.CountOnly {
			res.Messages = append(res.Messages, rec.Message)
		}
	}
	return res, nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, table string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.tables[table] = append(m.tables[table], rec)
	return nil
}

// Records returns a copy of every record in table, in write order.
func (m *Memory) Records(table string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.tables[table]...)
}

// Calls returns how many queries and puts have been served.
func (m *Memory) Calls() (queries, puts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries, m.puts
}
