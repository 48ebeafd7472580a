// internal/models/transaction.go
package models

import (
	"github.com/google/uuid"
)

// Transaction is the audit row written for every reconciled contract log.
type Transaction struct {
	BaseModel
	TxHash      string            `json:"tx_hash" gorm:"size:128;not null;index"`
	FromAccount string            `json:"from_account" gorm:"size:32"`
	ToAccount   string            `json:"to_account" gorm:"size:32"`
	Amount      string            `json:"amount" gorm:"type:varchar(40);default:'0'"`
	Status      TransactionStatus `json:"status" gorm:"type:varchar(10);not null"`
	Type        string            `json:"type" gorm:"size:40"` // emitting event family
	Value       string            `json:"value" gorm:"type:varchar(40);default:'0'"`

	ProjectID   uuid.UUID  `json:"project_id" gorm:"type:uuid;not null;index"`
	MilestoneID *uuid.UUID `json:"milestone_id" gorm:"type:uuid;index"`
	UserID      uuid.UUID  `json:"user_id" gorm:"type:uuid"`
}

// ChainError records a failed interaction with the mirror node or the
// contract relay so operators can replay it later.
type ChainError struct {
	BaseModel
	ErrorType ChainErrorType `json:"error_type" gorm:"type:varchar(20);not null"`
	Message   string         `json:"message" gorm:"type:text"`
	Body      JSONB          `json:"body" gorm:"type:jsonb"`
	Metadata  string         `json:"metadata" gorm:"size:255"`
}
