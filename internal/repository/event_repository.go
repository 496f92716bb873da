package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"collicasa-bot/internal/model"
)

// EventRepository stores the access audit trail.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *model.AccessEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create access event: %w", err)
	}
	return nil
}

// ListRecent returns the newest events of a user first.
func (r *EventRepository) ListRecent(ctx context.Context, telegramID int64, limit int) ([]model.AccessEvent, error) {
	var events []model.AccessEvent
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteOlderThan removes events created before cutoff and returns the count.
func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.AccessEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune access events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
