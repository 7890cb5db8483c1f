package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

type entry struct {
	data    []byte
	expires time.Time
}

// Memory is a process-local Store.
type Memory struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, kind Kind, params []string, out any) error {
	m.mu.Lock()
	e, ok := m.data[key(kind, params)]
	if ok && !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.data, key(kind, params))
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(e.data, out)
}

func (m *Memory) Set(_ context.Context, kind Kind, params []string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e := entry{data: data}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.data[key(kind, params)] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, kind Kind, params ...string) error {
	prefix := key(kind, params)
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if k == prefix || strings.HasPrefix(k, prefix+sep) {
			delete(m.data, k)
		}
	}
	return nil
}
