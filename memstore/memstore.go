// Durable record of what an agent has seen and done.
//
// Memories are small JSON documents with a caller-chosen ID. IDs are deterministic (see the dedupe package), so "have I processed this?" is a primary key lookup, and recording the same thing twice is detected as [ErrDuplicate].
package memstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("memory not found")
	ErrDuplicate = errors.New("memory already exists")
)

const (
	// An external item (post) which was evaluated for engagement.
	KindProcessed = "processed"
	// Content the agent published.
	KindPost = "post"
)

type Memory struct {
	ID        string `gorm:"primarykey"`
	AgentID   string `gorm:"index:idx_memory_agent_kind"`
	Kind      string `gorm:"index:idx_memory_agent_kind"`
	ContentID string
	// JSON document
	Body      string
	CreatedAt time.Time `gorm:"index"`
}

type MemoryStore interface {
	CreateMemory(ctx context.Context, m *Memory) error
	GetMemoryByID(ctx context.Context, id string) (*Memory, error)
	// Newest first.
	RecentMemories(ctx context.Context, agentID, kind string, limit int) ([]Memory, error)
}
