package memstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

var _ MemoryStore = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Memory{}); err != nil {
		return nil, fmt.Errorf("migrating memory table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateMemory(ctx context.Context, m *Memory) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Create(m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicate, m.ID)
	}
	return err
}

func (s *GormStore) GetMemoryByID(ctx context.Context, id string) (*Memory, error) {
	var m Memory
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) RecentMemories(ctx context.Context, agentID, kind string, limit int) ([]Memory, error) {
	var out []Memory
	err := s.db.WithContext(ctx).
		Where("agent_id = ? AND kind = ?", agentID, kind).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
