package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Level is the presentation variant of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a transient, user-facing message about an action.
type Notification struct {
	ID        uuid.UUID              `json:"id"`
	Level     Level                  `json:"level"`
	Operation string                 `json:"operation"`
	Category  string                 `json:"category,omitempty"`
	Message   string                 `json:"message"`
	Actor     string                 `json:"actor,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Record is the stored form of a notification.
type Record struct {
	ID        uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	Level     string         `json:"level" gorm:"not null;index"`
	Operation string         `json:"operation" gorm:"not null;index"`
	Category  string         `json:"category"`
	Message   string         `json:"message" gorm:"not null"`
	Actor     string         `json:"actor" gorm:"index"`
	Metadata  datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null;index"`
}

// TableName overrides the gorm table name.
func (Record) TableName() string {
	return "portal_notifications"
}
