// internal/models/milestone.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Milestone struct {
	BaseModel
	ProjectID      uuid.UUID       `json:"project_id" gorm:"type:uuid;not null;index"`
	ParentID       *uuid.UUID      `json:"parent_id" gorm:"type:uuid;index"`
	Kind           MilestoneKind   `json:"milestone_type" gorm:"column:milestone_type;type:varchar(20);default:'milestone'"`
	Name           string          `json:"name" gorm:"size:255;not null"`
	Description    string          `json:"description" gorm:"type:text"`
	Status         MilestoneStatus `json:"status" gorm:"type:varchar(20);default:'INIT';index"`
	SequenceNumber int             `json:"sequence_number"`
	AssigneeID     *uuid.UUID      `json:"assignee_id" gorm:"type:uuid"`

	// StatusBeforeHold remembers where a held milestone resumes. Set on
	// hold, cleared on release.
	StatusBeforeHold *MilestoneStatus `json:"status_before_hold,omitempty" gorm:"type:varchar(20)"`

	StartDate     time.Time  `json:"start_date"`
	EndDate       time.Time  `json:"end_date"`
	ActualEndDate *time.Time `json:"actual_end_date"`

	// Funds. Monetary values are decimal strings in whole currency units.
	FundAllocation string `json:"fund_allocation" gorm:"type:varchar(40);default:'0'"`
	MilestoneFund  string `json:"milestone_fund" gorm:"type:varchar(40);default:'0'"`

	// Rework bookkeeping
	Revisions        int         `json:"revisions" gorm:"default:0"`
	RevisionsCounter int         `json:"revisions_counter" gorm:"default:0"`
	ReworkComment    string      `json:"rework_comment" gorm:"type:text"`
	ReworkDocs       StringArray `json:"rework_docs" gorm:"type:jsonb"`
	DeliverablesLink StringArray `json:"deliverables_link" gorm:"type:jsonb"`

	// Royalty terms
	RoyaltyType    RoyaltyType `json:"royalty_type" gorm:"type:varchar(30);default:'PRE_PAYMENT_ROYALTY'"`
	RoyaltyValueIn ValueKind   `json:"royalty_value_in" gorm:"type:varchar(10);default:'AMOUNT'"`
	RoyaltyAmount  string      `json:"royalty_amount" gorm:"type:varchar(40);default:'0'"`

	// On-chain bookkeeping, flipped by the reconciler.
	EnableFundTransfer    bool       `json:"enable_fund_transfer" gorm:"default:false"`
	FundTransferred       bool       `json:"fund_transferred" gorm:"default:false"`
	EnableRoyaltyTransfer bool       `json:"enable_royalty_transfer" gorm:"default:false"`
	RoyaltyTransferred    bool       `json:"royalty_transferred" gorm:"default:false"`
	RoyaltyTransactionID  *uuid.UUID `json:"royalty_transaction_id" gorm:"type:uuid"`
	IsDeployedOnContract  *uuid.UUID `json:"is_deployed_on_contract" gorm:"type:uuid"`
	LastTransactionDate   *time.Time `json:"last_transaction_date"`

	// Relationships
	Penalties []PenaltyBreach `json:"penalties,omitempty" gorm:"foreignKey:MilestoneID"`
	Children  []Milestone     `json:"sub_milestones,omitempty" gorm:"foreignKey:ParentID"`
}

func (m *Milestone) Terminal() bool {
	return m.Status == MilestoneStatusCompleted || m.Status == MilestoneStatusForceClosed
}

// milestoneStatusNames are the human readable labels used in notifications.
var milestoneStatusNames = map[MilestoneStatus]string{
	MilestoneStatusInit:        "Ready",
	MilestoneStatusFunded:      "Funded",
	MilestoneStatusInProgress:  "In Progress",
	MilestoneStatusInReview:    "In Review",
	MilestoneStatusRework:      "Rework",
	MilestoneStatusCompleted:   "Completed",
	MilestoneStatusStop:        "Stopped",
	MilestoneStatusForceClosed: "Force Closed",
	MilestoneStatusHold:        "Hold",
}

func (s MilestoneStatus) DisplayName() string {
	if name, ok := milestoneStatusNames[s]; ok {
		return name
	}
	return string(s)
}

// PenaltyBreach is a late-delivery penalty attached to a milestone: after
// TimePeriod days past the end date, Penalty (an amount or a percentage of
// the milestone fund) is withheld.
type PenaltyBreach struct {
	BaseModel
	MilestoneID uuid.UUID `json:"milestone_id" gorm:"type:uuid;not null;index"`
	ValueIn     ValueKind `json:"value_in" gorm:"type:varchar(10);default:'AMOUNT'"`
	Penalty     string    `json:"penalty" gorm:"type:varchar(40);default:'0'"`
	TimePeriod  int       `json:"time_period" gorm:"default:0"`
}
