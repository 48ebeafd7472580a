// internal/models/fund.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Fund is one escrow ledger row. A row is materialized per top-level
// milestone when the provider accepts the project, and per sub-milestone
// when sub-milestones are added after deployment.
type Fund struct {
	BaseModel
	ProjectID   uuid.UUID     `json:"project_id" gorm:"type:uuid;not null;index"`
	MilestoneID uuid.UUID     `json:"milestone_id" gorm:"type:uuid;not null;index"`
	FundType    MilestoneKind `json:"fund_type" gorm:"type:varchar(20);default:'milestone'"`
	Amount      string        `json:"amount" gorm:"type:varchar(40);default:'0'"`

	// Transaction ids recorded when money moves into and out of escrow.
	FundTxToEscrow      string     `json:"fund_tx_to_escrow" gorm:"size:128"`
	FundTxFromEscrow    string     `json:"fund_tx_from_escrow" gorm:"size:128"`
	LastTransactionDate *time.Time `json:"last_transaction_date"`
}

// Escrow tracks the deployment of a project's escrow contract. The three
// status columns are the resume checkpoints of the deployment flow.
type Escrow struct {
	BaseModel
	ProjectID        uuid.UUID `json:"project_id" gorm:"type:uuid;not null;uniqueIndex"`
	EscrowContractID string    `json:"escrow_contract_id" gorm:"size:32"`
	EscrowAddress    string    `json:"escrow_address" gorm:"size:64"`

	EscrowDeployedStatus    DeployStatus `json:"escrow_deployed_status" gorm:"type:varchar(10);default:'PENDING'"`
	AddMilestoneStatus      DeployStatus `json:"add_milestone_status" gorm:"type:varchar(10);default:'PENDING'"`
	TransferOwnershipStatus DeployStatus `json:"transfer_ownership_status" gorm:"type:varchar(10);default:'PENDING'"`
}

func (e *Escrow) Deployed() bool {
	return e.EscrowDeployedStatus == DeployStatusSuccess &&
		e.AddMilestoneStatus == DeployStatusSuccess &&
		e.TransferOwnershipStatus == DeployStatusSuccess
}
