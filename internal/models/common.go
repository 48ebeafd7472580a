// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// StringArray stores a list of strings as a jsonb column
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, a)
}

// Enums
type UserRole string

const (
	UserRolePurchaser UserRole = "PURCHASER"
	UserRoleProvider  UserRole = "PROVIDER"
	UserRoleAdmin     UserRole = "ADMIN"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// ProjectUserRole is the role a member plays inside one project:
// the purchaser, the contract personnel (CP) managing delivery, or an
// individual provider (IP) assigned to sub-milestones.
type ProjectUserRole string

const (
	ProjectUserPurchaser ProjectUserRole = "PURCHASER"
	ProjectUserCP        ProjectUserRole = "CP"
	ProjectUserIP        ProjectUserRole = "IP"
)

type SaveType string

const (
	SaveTypeDraft    SaveType = "DRAFT"
	SaveTypeComplete SaveType = "COMPLETE"
)

type ProjectState string

const (
	ProjectStateInitialized      ProjectState = "INITILIZED"
	ProjectStateNewProject       ProjectState = "NEW_PROJECT"
	ProjectStateAddMilestones    ProjectState = "ADD_MILESTONES"
	ProjectStateAddEscrow        ProjectState = "ADD_ESCROW"
	ProjectStateContractDeployed ProjectState = "CONTRACT_DEPLOYED"
	ProjectStateComplete         ProjectState = "COMPLETE"
)

type ProjectStatus string

const (
	ProjectStatusUnassigned ProjectStatus = "UNASSIGNED"
	ProjectStatusAssigned   ProjectStatus = "ASSIGNED"
	ProjectStatusInProgress ProjectStatus = "IN_PROGRESS"
	ProjectStatusComplete   ProjectStatus = "COMPLETE"
)

type MilestoneKind string

const (
	MilestoneKindMilestone    MilestoneKind = "milestone"
	MilestoneKindSubMilestone MilestoneKind = "submilestone"
)

type MilestoneStatus string

const (
	MilestoneStatusInit        MilestoneStatus = "INIT"
	MilestoneStatusFunded      MilestoneStatus = "FUNDED"
	MilestoneStatusInProgress  MilestoneStatus = "IN_PROGRESS"
	MilestoneStatusInReview    MilestoneStatus = "IN_REVIEW"
	MilestoneStatusRework      MilestoneStatus = "REWORK"
	MilestoneStatusCompleted   MilestoneStatus = "COMPLETED"
	MilestoneStatusStop        MilestoneStatus = "STOP"
	MilestoneStatusForceClosed MilestoneStatus = "FORCE_CLOSED"
	MilestoneStatusHold        MilestoneStatus = "HOLD"
)

// contractMilestoneStatuses maps the uint8 state emitted by the escrow
// contract back to a milestone status. The order is fixed by the contract.
var contractMilestoneStatuses = []MilestoneStatus{
	MilestoneStatusInit,
	MilestoneStatusFunded,
	MilestoneStatusInProgress,
	MilestoneStatusInReview,
	MilestoneStatusRework,
	MilestoneStatusCompleted,
	MilestoneStatusStop,
	MilestoneStatusForceClosed,
}

func MilestoneStatusFromOrdinal(state uint8) (MilestoneStatus, bool) {
	if int(state) >= len(contractMilestoneStatuses) {
		return "", false
	}
	return contractMilestoneStatuses[state], true
}

type DeployStatus string

const (
	DeployStatusPending DeployStatus = "PENDING"
	DeployStatusSuccess DeployStatus = "SUCCESS"
	DeployStatusFailed  DeployStatus = "FAILED"
)

type DraftType string

const (
	DraftTypeProjectDetails DraftType = "PROJECT_DETAILS"
	DraftTypeDocument       DraftType = "DOCUMENT"
	DraftTypeMilestones     DraftType = "MILESTONES"
	DraftTypeAddProvider    DraftType = "ADD_PROVIDER"
	DraftTypeAddIP          DraftType = "ADD_IP"
)

type DisputeStatus string

const (
	DisputeStatusInReview DisputeStatus = "INREVIEW"
	DisputeStatusResolved DisputeStatus = "RESOLVED"
	DisputeStatusClosed   DisputeStatus = "CLOSED"
	DisputeStatusLegalWay DisputeStatus = "LEGALWAY"
)

type ResolutionType string

const (
	ResolutionTypeFAQ     ResolutionType = "FAQ"
	ResolutionTypeWritten ResolutionType = "WRITTEN"
)

type CurrencyType string

const (
	CurrencyHBAR CurrencyType = "HBAR"
	CurrencyUSDC CurrencyType = "USDC"
)

// FundingType says whether escrowed funds are assigned at the project level
// or per milestone; FundTransferType says whether payouts leave the escrow
// automatically or on explicit release. Their order matches the uint8
// constructor arguments of the escrow contract.
type FundingType string

const (
	FundingTypeProject   FundingType = "PROJECT"
	FundingTypeMilestone FundingType = "MILESTONE"
)

var fundingTypes = []FundingType{FundingTypeProject, FundingTypeMilestone}

func (f FundingType) Ordinal() uint8 {
	for i, v := range fundingTypes {
		if v == f {
			return uint8(i)
		}
	}
	return 0
}

type FundTransferType string

const (
	FundTransferAutomatic FundTransferType = "AUTOMATIC"
	FundTransferManual    FundTransferType = "MANUAL"
)

var fundTransferTypes = []FundTransferType{FundTransferAutomatic, FundTransferManual}

func (f FundTransferType) Ordinal() uint8 {
	for i, v := range fundTransferTypes {
		if v == f {
			return uint8(i)
		}
	}
	return 0
}

type RoyaltyType string

const (
	RoyaltyTypePrePayment RoyaltyType = "PRE_PAYMENT_ROYALTY"
	RoyaltyTypePostKPI    RoyaltyType = "POST_KPI_ROYALTY"
)

var royaltyTypes = []RoyaltyType{RoyaltyTypePrePayment, RoyaltyTypePostKPI}

func (r RoyaltyType) Ordinal() uint8 {
	for i, v := range royaltyTypes {
		if v == r {
			return uint8(i)
		}
	}
	return 0
}

// ValueKind distinguishes absolute amounts from percentages for royalties
// and penalties.
type ValueKind string

const (
	ValueKindAmount  ValueKind = "AMOUNT"
	ValueKindPercent ValueKind = "PERCENT"
)

type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

type ChainErrorType string

const (
	ChainErrorTypeHedera ChainErrorType = "HEDERA"
)
