package billing

import "time"

// ProcessedEvent records a processor event id that was handled successfully.
type ProcessedEvent struct {
	EventID     string    `gorm:"primaryKey;size:255"`
	Type        string    `gorm:"size:128;not null"`
	ProcessedAt time.Time `gorm:"not null;index"`
}

func (ProcessedEvent) TableName() string { return "processed_webhook_events" }
