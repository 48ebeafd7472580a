// internal/models/project.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Project struct {
	BaseModel
	Name             string           `json:"name" gorm:"size:255;not null"`
	Description      string           `json:"description" gorm:"type:text"`
	State            ProjectState     `json:"state" gorm:"type:varchar(30);default:'INITILIZED';index"`
	Status           ProjectStatus    `json:"status" gorm:"type:varchar(20);default:'UNASSIGNED'"`
	CurrentEditor    *uuid.UUID       `json:"current_editor" gorm:"type:uuid"`
	Currency         CurrencyType     `json:"currency" gorm:"type:varchar(10);default:'HBAR'"`
	TotalProjectFund string           `json:"total_project_fund" gorm:"type:varchar(40);default:'0'"`
	LeftProjectFund  string           `json:"left_project_fund" gorm:"type:varchar(40);default:'0'"`
	AssignedFundTo   FundingType      `json:"assigned_fund_to" gorm:"type:varchar(20);default:'MILESTONE'"`
	FundTransferType FundTransferType `json:"fund_transfer_type" gorm:"type:varchar(20);default:'MANUAL'"`

	// On-chain bookkeeping
	FundTransferred       bool       `json:"fund_transferred" gorm:"default:false"`
	FreeBalanceReleased   bool       `json:"free_balance_released" gorm:"default:false"`
	EnableFreeFundRelease bool       `json:"enable_free_fund_release" gorm:"default:false"`
	HCSTopicID            string     `json:"hcs_topic_id" gorm:"size:32"`
	LastTransactionDate   *time.Time `json:"last_transaction_date"`

	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
	ActualEndDate *time.Time `json:"actual_end_date"`

	// Relationships
	Members    []ProjectMember `json:"members,omitempty" gorm:"foreignKey:ProjectID"`
	Milestones []Milestone     `json:"milestones,omitempty" gorm:"foreignKey:ProjectID"`
	Funds      []Fund          `json:"funds,omitempty" gorm:"foreignKey:ProjectID"`
	Documents  []Document      `json:"documents,omitempty" gorm:"foreignKey:ProjectID"`
	Drafts     []ProjectDraft  `json:"drafts,omitempty" gorm:"foreignKey:ProjectID"`
	Escrow     *Escrow         `json:"escrow,omitempty" gorm:"foreignKey:ProjectID"`
}

// Member returns the membership row for a user, if any.
func (p *Project) Member(userID uuid.UUID) *ProjectMember {
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			return &p.Members[i]
		}
	}
	return nil
}

func (p *Project) MemberWithRole(role ProjectUserRole) *ProjectMember {
	for i := range p.Members {
		if p.Members[i].ProjectRole == role {
			return &p.Members[i]
		}
	}
	return nil
}

// Editable reports whether project content may still be changed. Once the
// escrow phase starts the project is frozen.
func (p *Project) Editable() bool {
	switch p.State {
	case ProjectStateAddEscrow, ProjectStateContractDeployed, ProjectStateComplete:
		return false
	}
	return true
}

type ProjectMember struct {
	BaseModel
	ProjectID   uuid.UUID       `json:"project_id" gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index"`
	ProjectRole ProjectUserRole `json:"project_role" gorm:"type:varchar(20);not null"`
	Permissions JSONB           `json:"permissions" gorm:"type:jsonb"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// ProjectDraft is a section-keyed snapshot of unsaved edits. One draft row
// exists per (project, section, author).
type ProjectDraft struct {
	BaseModel
	ProjectID uuid.UUID `json:"project_id" gorm:"type:uuid;not null;index"`
	DraftType DraftType `json:"draft_type" gorm:"type:varchar(30);not null"`
	Payload   JSONB     `json:"payload" gorm:"type:jsonb"`
	CreatedBy uuid.UUID `json:"created_by" gorm:"type:uuid;not null"`
}

type Document struct {
	BaseModel
	ProjectID   *uuid.UUID `json:"project_id" gorm:"type:uuid;index"`
	MilestoneID *uuid.UUID `json:"milestone_id" gorm:"type:uuid;index"`
	Category    string     `json:"category" gorm:"size:30"` // project, deliverable, rework
	FileName    string     `json:"file_name" gorm:"size:255"`
	StorageKey  string     `json:"storage_key" gorm:"size:512"`
	URL         string     `json:"url" gorm:"size:1024"`
	MimeType    string     `json:"mime_type" gorm:"size:100"`
	Size        int64      `json:"size"`
	Checksum    string     `json:"checksum" gorm:"size:64"`
	UploadedBy  uuid.UUID  `json:"uploaded_by" gorm:"type:uuid"`
}
