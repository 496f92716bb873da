package model

import "time"

// Outcome classifies how an access request ended.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeDenied          Outcome = "denied"
	OutcomeFailed          Outcome = "failed"
	OutcomeUnauthenticated Outcome = "unauthenticated"
)

// AccessEvent is one audited gate or camera request.
type AccessEvent struct {
	ID         uint   `gorm:"primaryKey"`
	TelegramID int64  `gorm:"index"`
	Action     string `gorm:"index"`
	Outcome    Outcome
	Detail     string
	CreatedAt  time.Time `gorm:"index"`
}
