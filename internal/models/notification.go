// internal/models/notification.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	BaseModel
	RecipientID        uuid.UUID  `json:"recipient_id" gorm:"type:uuid;not null;index"`
	Category           string     `json:"category" gorm:"size:40"`
	Pattern            string     `json:"pattern" gorm:"size:40"`
	Message            string     `json:"message" gorm:"type:text"`
	Metadata           JSONB      `json:"metadata" gorm:"type:jsonb"`
	SenderProfileImage string     `json:"sender_profile_image" gorm:"size:512"`
	ReadAt             *time.Time `json:"read_at"`
}
