// Package store persists the engine's observation feed to a relational
// database for audit. It is optional: the engine runs fully in memory
// without it.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EventRecord is one persisted feed event.
type EventRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventType string    `gorm:"index;size:64" json:"event_type"`
	TaskID    string    `gorm:"index;size:64" json:"task_id"`
	AgentID   string    `gorm:"index;size:64" json:"agent_id"`
	Payload   string    `gorm:"type:text" json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// EventStore is the persistence surface the recorder writes through.
type EventStore interface {
	Append(ctx context.Context, rec *EventRecord) error
	ByTask(ctx context.Context, taskID string) ([]EventRecord, error)
	Recent(ctx context.Context, limit int) ([]EventRecord, error)
	Close() error
}

// GormStore is an EventStore on any gorm-supported database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an existing connection and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// OpenSQLite opens (or creates) a SQLite event store at path. Use
// ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	return NewGormStore(db)
}

func (s *GormStore) Append(ctx context.Context, rec *EventRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to append event record: %w", err)
	}
	return nil
}

// ByTask returns a task's events in insertion order.
func (s *GormStore) ByTask(ctx context.Context, taskID string) ([]EventRecord, error) {
	var recs []EventRecord
	err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("id asc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query events for task %s: %w", taskID, err)
	}
	return recs, nil
}

// Recent returns the newest events, newest first.
func (s *GormStore) Recent(ctx context.Context, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []EventRecord
	err := s.db.WithContext(ctx).
		Order("id desc").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	return recs, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
