package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository stores notification history with gorm.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repository and migrates its table.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate notifications: %w", err)
	}
	return &Repository{db: db}, nil
}

// Name implements Sink.
func (r *Repository) Name() string { return "history" }

// Deliver implements Sink by storing n.
func (r *Repository) Deliver(ctx context.Context, n *Notification) error {
	return r.Save(ctx, n)
}

// Save stores n.
func (r *Repository) Save(ctx context.Context, n *Notification) error {
	record, err := toRecord(n)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// List returns the newest stored notifications, optionally for one operation.
func (r *Repository) List(ctx context.Context, operation string, limit int) ([]Record, error) {
	var records []Record
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if operation != "" {
		query = query.Where("operation = ?", operation)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return records, nil
}

func toRecord(n *Notification) (*Record, error) {
	record := &Record{
		ID:        n.ID,
		Level:     string(n.Level),
		Operation: n.Operation,
		Category:  n.Category,
		Message:   n.Message,
		Actor:     n.Actor,
		CreatedAt: n.CreatedAt,
	}
	if len(n.Metadata) > 0 {
		raw, err := json.Marshal(n.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode notification metadata: %w", err)
		}
		record.Metadata = datatypes.JSON(raw)
	}
	return record, nil
}
