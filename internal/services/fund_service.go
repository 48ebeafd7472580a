// internal/services/fund_service.go
package services

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/escrowflow-backend/internal/apperrors"
	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/models"
	"github.com/javajoker/escrowflow-backend/internal/utils"
)

// BurnRate compares time spent against time planned. Percentages are decimal
// strings; "0" stands in whenever a denominator would be zero.
type BurnRate struct {
	ActualPercentage    string `json:"actual_percentage"`
	PredictedPercentage string `json:"predicted_percentage"`
}

var zeroBurnRate = BurnRate{ActualPercentage: "0", PredictedPercentage: "0"}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ProjectBurnRate aggregates the burn rate over a project's top-level
// milestones. It is only meaningful once work has started, so anything
// other than an in-progress or complete project reports zero.
func ProjectBurnRate(status models.ProjectStatus, milestones []models.Milestone, now time.Time) BurnRate {
	if status != models.ProjectStatusInProgress && status != models.ProjectStatusComplete {
		return zeroBurnRate
	}

	var totalTime, completedTime, projectedTime float64
	for _, m := range milestones {
		thisTime := m.EndDate.Sub(m.StartDate).Seconds()
		totalTime += thisTime

		if m.Status == models.MilestoneStatusCompleted && thisTime != 0 {
			projectedTime += thisTime
			end := now
			if m.ActualEndDate != nil {
				end = *m.ActualEndDate
			}
			completedTime += end.Sub(m.StartDate).Seconds()
		}
	}

	if totalTime <= 0 {
		return zeroBurnRate
	}

	return BurnRate{
		ActualPercentage:    formatPercent(math.Abs(completedTime) / totalTime * 100),
		PredictedPercentage: formatPercent(math.Abs(projectedTime) / totalTime * 100),
	}
}

// MilestoneBurnRate reports progress for a single milestone. A parent
// milestone aggregates its children; a leaf compares actual elapsed time
// against its planned window. Completed leaves pin to 100, untouched or
// parked leaves to 0.
func MilestoneBurnRate(m *models.Milestone, now time.Time) BurnRate {
	if len(m.Children) > 0 {
		var totalTime, completedTime, projectedTime float64
		for _, child := range m.Children {
			thisTime := child.EndDate.Sub(child.StartDate).Seconds()
			totalTime += thisTime
			projectedTime += thisTime

			end := now
			if child.ActualEndDate != nil {
				end = *child.ActualEndDate
			}
			completedTime += end.Sub(child.StartDate).Seconds()
		}
		if totalTime <= 0 {
			return zeroBurnRate
		}
		return BurnRate{
			ActualPercentage:    formatPercent(math.Abs(completedTime) / totalTime * 100),
			PredictedPercentage: formatPercent(math.Abs(projectedTime) / totalTime * 100),
		}
	}

	switch m.Status {
	case models.MilestoneStatusCompleted:
		return BurnRate{ActualPercentage: "100", PredictedPercentage: "100"}
	case models.MilestoneStatusInit, models.MilestoneStatusHold,
		models.MilestoneStatusStop, models.MilestoneStatusForceClosed:
		return zeroBurnRate
	}

	end := now
	if m.ActualEndDate != nil {
		end = *m.ActualEndDate
	}
	completed := end.Sub(m.StartDate).Seconds()
	projected := m.EndDate.Sub(m.StartDate).Seconds()
	if projected == 0 {
		return zeroBurnRate
	}

	deviation := formatPercent(math.Abs((completed - projected) / projected * 100))
	return BurnRate{ActualPercentage: deviation, PredictedPercentage: deviation}
}

// UpcomingMilestone picks the milestone a member should look at next: the
// one after the current in-progress milestone, or the first untouched one.
func UpcomingMilestone(milestones []models.Milestone) *models.Milestone {
	var current, next *models.Milestone
	for i := range milestones {
		m := &milestones[i]
		switch {
		case m.Status == models.MilestoneStatusInProgress && current == nil:
			current = m
		case m.Status == models.MilestoneStatusInProgress && current != nil:
			return m
		case m.Status == models.MilestoneStatusInit && next == nil:
			next = m
		}
	}
	return next
}

type FundService struct {
	db     *gorm.DB
	config *config.Config
	logger *logrus.Entry
}

func NewFundService(db *gorm.DB, config *config.Config) *FundService {
	return &FundService{
		db:     db,
		config: config,
		logger: logrus.WithField("service", "fund"),
	}
}

// MilestoneFunds is one row of the funds tab.
type MilestoneFunds struct {
	MilestoneID       uuid.UUID          `json:"milestone_id"`
	Title             string             `json:"title"`
	Recipient         *models.User       `json:"recipient,omitempty"`
	FundAllocation    string             `json:"fund_allocation"`
	RoyaltyType       models.RoyaltyType `json:"royalty_type"`
	RoyaltyValue      string             `json:"royalty_value"`
	PenaltyTotal      string             `json:"penalty_total,omitempty"`
	PenaltyValueIn    models.ValueKind   `json:"penalty_value_in,omitempty"`
	ReleaseEscrowFund bool               `json:"release_escrow_fund"`
	ReleaseRoyalty    bool               `json:"release_royalty"`
	FundTransferred   bool               `json:"fund_transferred"`
	TransactionDate   *time.Time         `json:"transaction_date,omitempty"`
	BurnRate          BurnRate           `json:"burn_rate"`
	Fund              *models.Fund       `json:"fund,omitempty"`
}

// FundSummary is the project funds view. WalletToEscrow describes the
// purchaser side, EscrowToProvider the payout side.
type FundSummary struct {
	TotalFund           string           `json:"total_fund"`
	FundRemaining       string           `json:"fund_remaining"`
	TotalTransferred    string           `json:"total_transferred"`
	FundTransferred     bool             `json:"fund_transferred"`
	FreeBalanceReleased bool             `json:"free_balance_released"`
	PayoutEnabled       bool             `json:"payout_enabled"`
	PayoutDone          bool             `json:"payout_done"`
	LastTransactionDate *time.Time       `json:"last_transaction_date,omitempty"`
	Milestones          []MilestoneFunds `json:"milestones"`
}

// GetFundSummary assembles the funds tab for a project. Only members may
// read it. The payout flags start optimistic and are cleared by any
// milestone that has not reached a payable state yet.
func (s *FundService) GetFundSummary(actorID, projectID uuid.UUID) (*FundSummary, error) {
	var project models.Project
	err := s.db.Preload("Members.User").
		Preload("Funds").
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Where("parent_id IS NULL").Order("sequence_number ASC")
		}).
		Preload("Milestones.Children").
		Preload("Milestones.Penalties").
		First(&project, "id = ?", projectID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("project")
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project.Member(actorID) == nil {
		return nil, apperrors.Authorization("not a member of this project")
	}

	fundsByMilestone := make(map[uuid.UUID]*models.Fund)
	for i := range project.Funds {
		fundsByMilestone[project.Funds[i].MilestoneID] = &project.Funds[i]
	}

	summary := &FundSummary{
		TotalFund:           project.TotalProjectFund,
		FundRemaining:       project.LeftProjectFund,
		TotalTransferred:    subtractAmounts(project.TotalProjectFund, project.LeftProjectFund),
		FundTransferred:     project.FundTransferred,
		FreeBalanceReleased: project.FreeBalanceReleased,
		PayoutEnabled:       true,
		PayoutDone:          true,
		LastTransactionDate: project.LastTransactionDate,
	}

	now := time.Now()
	cp := project.MemberWithRole(models.ProjectUserCP)

	for i := range project.Milestones {
		m := &project.Milestones[i]
		fund := fundsByMilestone[m.ID]

		if m.Status != models.MilestoneStatusCompleted && m.Status != models.MilestoneStatusStop {
			summary.PayoutEnabled = false
		}
		if fund == nil || !m.FundTransferred {
			summary.PayoutDone = false
		}

		row := MilestoneFunds{
			MilestoneID:       m.ID,
			Title:             m.Name,
			FundAllocation:    m.FundAllocation,
			RoyaltyType:       m.RoyaltyType,
			RoyaltyValue:      m.RoyaltyAmount,
			ReleaseEscrowFund: m.EnableFundTransfer,
			ReleaseRoyalty:    m.EnableRoyaltyTransfer,
			FundTransferred:   m.FundTransferred,
			TransactionDate:   m.LastTransactionDate,
			BurnRate:          MilestoneBurnRate(m, now),
			Fund:              fund,
		}

		if len(m.Penalties) > 0 {
			total := 0.0
			for _, p := range m.Penalties {
				if v, err := strconv.ParseFloat(p.Penalty, 64); err == nil {
					total += v
				}
			}
			row.PenaltyTotal = strconv.FormatFloat(total, 'f', -1, 64)
			row.PenaltyValueIn = m.Penalties[0].ValueIn
		}

		if m.AssigneeID != nil {
			if member := project.Member(*m.AssigneeID); member != nil {
				row.Recipient = &member.User
			}
		} else if cp != nil {
			row.Recipient = &cp.User
		}

		summary.Milestones = append(summary.Milestones, row)
	}

	return summary, nil
}

// subtractAmounts computes a-b over decimal string amounts, falling back to
// "0" when either side fails to parse.
func subtractAmounts(a, b string) string {
	av, errA := strconv.ParseFloat(a, 64)
	bv, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return "0"
	}
	return strconv.FormatFloat(av-bv, 'f', -1, 64)
}

// ListTransactions returns the on-chain audit trail for a project, newest
// first. Only members may read it.
func (s *FundService) ListTransactions(actorID, projectID uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	var project models.Project
	if err := s.db.Preload("Members").First(&project, "id = ?", projectID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("project")
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project.Member(actorID) == nil {
		return nil, apperrors.Authorization("not a member of this project")
	}

	query := s.db.Model(&models.Transaction{}).Where("project_id = ?", projectID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var transactions []models.Transaction
	err := utils.ApplyPagination(query.Order("created_at DESC"), params).
		Find(&transactions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	result := utils.CreatePaginationResult(transactions, total, params)
	return &result, nil
}
