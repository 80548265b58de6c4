package store

import (
	"bytes"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process KV for tests and ephemeral nodes.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]map[string][]byte)}
}

// memWriter stages writes until the update commits.
type memWriter struct {
	ops []memOp
}

type memOp struct {
	bucket, key string
	value       []byte
	del         bool
}

func (w *memWriter) Put(bucket, key, value []byte) error {
	w.ops = append(w.ops, memOp{
		bucket: string(bucket),
		key:    string(key),
		value:  append([]byte(nil), value...),
	})
	return nil
}

func (w *memWriter) Delete(bucket, key []byte) error {
	w.ops = append(w.ops, memOp{bucket: string(bucket), key: string(key), del: true})
	return nil
}

func (m *Memory) Update(fn func(w Writer) error) error {
	w := &memWriter{}
	if err := fn(w); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range w.ops {
		b, ok := m.buckets[op.bucket]
		if op.del {
			if ok {
				delete(b, op.key)
			}
			continue
		}
		if !ok {
			b = make(map[string][]byte)
			m.buckets[op.bucket] = b
		}
		b[op.key] = op.value
	}
	return nil
}

func (m *Memory) Put(bucket, key, value []byte) error {
	return m.Update(func(w Writer) error { return w.Put(bucket, key, value) })
}

func (m *Memory) Delete(bucket, key []byte) error {
	return m.Update(func(w Writer) error { return w.Delete(bucket, key) })
}

func (m *Memory) Get(bucket, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.buckets[string(bucket)][string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) List(bucket, prefix []byte, fn func(key, value []byte) error) error {
	type kv struct {
		k string
		v []byte
	}
	m.mu.RLock()
	var items []kv
	for k, v := range m.buckets[string(bucket)] {
		if strings.HasPrefix(k, string(prefix)) {
			items = append(items, kv{k, append([]byte(nil), v...)})
		}
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare([]byte(items[i].k), []byte(items[j].k)) < 0
	})
	for _, it := range items {
		if err := fn([]byte(it.k), it.v); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
