// internal/models/dispute.go
package models

import (
	"github.com/google/uuid"
)

type Dispute struct {
	BaseModel
	ProjectID   uuid.UUID     `json:"project_id" gorm:"type:uuid;not null;index"`
	MilestoneID *uuid.UUID    `json:"milestone_id" gorm:"type:uuid;index"`
	RaisedByID  uuid.UUID     `json:"raised_by_id" gorm:"type:uuid;not null"`
	RaisedToID  uuid.UUID     `json:"raised_to_id" gorm:"type:uuid;not null"`
	Title       string        `json:"title" gorm:"size:255"`
	Description string        `json:"description" gorm:"type:text"`
	Status      DisputeStatus `json:"status" gorm:"type:varchar(10);default:'INREVIEW';index"`

	// Platform ruling. IsMoAgree records that the platform has ruled; the
	// party flags record each side's answer to that ruling.
	ResolutionType  *ResolutionType `json:"resolution_type" gorm:"type:varchar(10)"`
	Resolution      string          `json:"resolution" gorm:"type:text"`
	InFavourOfID    *uuid.UUID      `json:"in_favour_of_id" gorm:"type:uuid"`
	IsMoAgree       *bool           `json:"is_mo_agree"`
	IsRaisedByAgree *bool           `json:"is_raised_by_agree"`
	IsRaisedToAgree *bool           `json:"is_raised_to_agree"`

	ClosedByID    *uuid.UUID `json:"closed_by_id" gorm:"type:uuid"`
	ClosedComment string     `json:"closed_comment" gorm:"type:text"`

	RaisedBy User `json:"raised_by,omitempty" gorm:"foreignKey:RaisedByID"`
	RaisedTo User `json:"raised_to,omitempty" gorm:"foreignKey:RaisedToID"`
}

func (d *Dispute) Terminal() bool {
	return d.Status == DisputeStatusClosed || d.Status == DisputeStatusResolved
}

// Party reports whether the user is one of the two dispute parties.
func (d *Dispute) Party(userID uuid.UUID) bool {
	return d.RaisedByID == userID || d.RaisedToID == userID
}
