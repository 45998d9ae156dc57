package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// In-process implementation of [MemoryStore], for dry runs and tests.
type MemStore struct {
	data *xsync.MapOf[string, Memory]
}

var _ MemoryStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{data: xsync.NewMapOf[string, Memory]()}
}

func (s *MemStore) CreateMemory(ctx context.Context, m *Memory) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if _, loaded := s.data.LoadOrStore(m.ID, *m); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicate, m.ID)
	}
	return nil
}

func (s *MemStore) GetMemoryByID(ctx context.Context, id string) (*Memory, error) {
	m, ok := s.data.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemStore) RecentMemories(ctx context.Context, agentID, kind string, limit int) ([]Memory, error) {
	var out []Memory
	s.data.Range(func(_ string, m Memory) bool {
		if m.AgentID == agentID && m.Kind == kind {
			out = append(out, m)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
