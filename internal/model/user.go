package model

import "time"

// User stores Telegram user metadata and the last known backend identity.
type User struct {
	ID          uint  `gorm:"primaryKey"`
	TelegramID  int64 `gorm:"uniqueIndex"`
	FirstName   string
	LastName    string
	Username    string
	ResidentID  string
	Registered  bool `gorm:"default:false"`
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
