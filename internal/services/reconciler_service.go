// internal/services/reconciler_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/escrowflow-backend/internal/apperrors"
	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/hedera"
	"github.com/javajoker/escrowflow-backend/internal/models"
	"github.com/javajoker/escrowflow-backend/internal/utils"
)

// processedHashTTL bounds how long a reconciled hash blocks resubmission.
// Mirror node history is immutable, so replays after expiry are harmless.
const processedHashTTL = 24 * time.Hour

// ReconcilerService maps a submitted transaction hash back to the domain
// mutations its contract logs imply. The chain is the source of truth; this
// service only catches the database up.
type ReconcilerService struct {
	db            *gorm.DB
	config        *config.Config
	gateway       hedera.Gateway
	redis         *redis.Client
	milestones    *MilestoneService
	notifications *NotificationService
	logger        *logrus.Entry
}

func NewReconcilerService(db *gorm.DB, config *config.Config, gateway hedera.Gateway, redisClient *redis.Client, milestones *MilestoneService, notifications *NotificationService) *ReconcilerService {
	return &ReconcilerService{
		db:            db,
		config:        config,
		gateway:       gateway,
		redis:         redisClient,
		milestones:    milestones,
		notifications: notifications,
		logger:        logrus.WithField("service", "reconciler"),
	}
}

type ReconcileRequest struct {
	TxHash        string   `json:"tx_hash" validate:"required"`
	Event         string   `json:"event" validate:"required"`
	Function      string   `json:"function" validate:"required"`
	ReworkComment string   `json:"rework_comment,omitempty"`
	ReworkDocs    []string `json:"rework_docs,omitempty"`
}

// Reconcile fetches the mirror-node result for a submitted hash and applies
// the domain mutations for every log that matches the (event, function)
// selection. Logs are handled sequentially and independently; one bad log is
// logged and skipped so the rest still land.
func (s *ReconcilerService) Reconcile(ctx context.Context, actorID uuid.UUID, req *ReconcileRequest) (*hedera.MirrorContractResult, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
	}
	if !hedera.KnownSelection(req.Event, req.Function) {
		return nil, apperrors.Validation(fmt.Sprintf("unknown event/function pair %s/%s", req.Event, req.Function))
	}

	if !s.claimTransaction(ctx, req.TxHash) {
		return nil, nil
	}

	// Mirror nodes lag consensus by a few seconds; querying immediately
	// after submission returns 404.
	delay := time.Duration(s.config.Platform.ReconcileDelaySec) * time.Second
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result, err := s.gateway.ContractResult(ctx, req.TxHash)
	if err != nil {
		chainErr := &models.ChainError{
			ErrorType: models.ChainErrorTypeHedera,
			Message:   err.Error(),
			Body: models.JSONB{
				"tx_hash":  req.TxHash,
				"event":    req.Event,
				"function": req.Function,
			},
			Metadata: "/project/transaction",
		}
		if dbErr := s.db.Create(chainErr).Error; dbErr != nil {
			s.logger.WithError(dbErr).Error("failed to persist chain error")
		}
		return nil, apperrors.External("mirror node lookup failed", err)
	}

	logs := hedera.SelectLogs(req.Event, req.Function, result.Logs)
	for _, log := range logs {
		if err := s.applyLog(ctx, actorID, req, result, log); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"tx_hash": req.TxHash,
				"event":   req.Event,
				"index":   log.Index,
			}).Error("failed to apply contract log")
		}
	}

	return result, nil
}

// claimTransaction takes the dedupe guard for a hash. False means another
// submission already reconciled it. A broken redis degrades to processing
// without dedupe rather than rejecting the submission.
func (s *ReconcilerService) claimTransaction(ctx context.Context, txHash string) bool {
	if s.redis == nil {
		return true
	}
	fresh, err := s.redis.SetNX(ctx, "reconcile:"+txHash, "1", processedHashTTL).Result()
	if err != nil {
		s.logger.WithError(err).Warn("redis guard unavailable, continuing without dedupe")
		return true
	}
	if !fresh {
		s.logger.WithField("tx_hash", txHash).Info("transaction already reconciled")
	}
	return fresh
}

// applyLog decodes one selected log and applies its mutations.
func (s *ReconcilerService) applyLog(ctx context.Context, actorID uuid.UUID, req *ReconcileRequest, result *hedera.MirrorContractResult, log hedera.MirrorLog) error {
	decoded, err := hedera.DecodeLog(req.Event, log)
	if err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}

	now := time.Now()

	if req.Event == hedera.EventFreeBalanceReleased {
		projectID, err := uuid.Parse(decoded.String("projectId"))
		if err != nil {
			return fmt.Errorf("invalid project id in log: %w", err)
		}
		return s.db.Model(&models.Project{}).Where("id = ?", projectID).Updates(map[string]interface{}{
			"free_balance_released":    true,
			"enable_free_fund_release": true,
			"last_transaction_date":    &now,
		}).Error
	}

	milestoneKey := decoded.String("milestoneId")
	if milestoneKey == "" {
		milestoneKey = decoded.String("subMilestoneId")
	}
	milestoneID, err := uuid.Parse(milestoneKey)
	if err != nil {
		return fmt.Errorf("invalid milestone id in log: %w", err)
	}

	var milestone models.Milestone
	err = s.db.Preload("Children").First(&milestone, "id = ?", milestoneID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("milestone")
		}
		return fmt.Errorf("failed to load milestone: %w", err)
	}

	var project models.Project
	if err := s.db.Preload("Members.User").First(&project, "id = ?", milestone.ProjectID).Error; err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	transaction := &models.Transaction{
		TxHash:      result.Hash,
		FromAccount: hedera.AccountFromEVMAddress(result.From),
		ToAccount:   hedera.AccountFromEVMAddress(result.To),
		Amount:      strconv.FormatInt(result.Amount, 10),
		Status:      models.TransactionStatusFailed,
		Type:        req.Event,
		Value:       milestoneKey,
		ProjectID:   project.ID,
		MilestoneID: &milestone.ID,
		UserID:      actorID,
	}
	if result.Success() {
		transaction.Status = models.TransactionStatusSuccess
	}
	if err := s.db.Create(transaction).Error; err != nil {
		return fmt.Errorf("failed to create transaction row: %w", err)
	}

	switch req.Event {
	case hedera.EventMilestoneFunded:
		return s.applyMilestoneFunded(ctx, req.Function, &project, &milestone, transaction, now)
	case hedera.EventMilestoneForceClosed:
		return s.applyForceClosed(ctx, &project, &milestone, now)
	case hedera.EventMilestonePayout:
		return s.applyPayout(ctx, &project, &milestone, transaction, now)
	case hedera.EventMilestoneStateChanged, hedera.EventSubMilestoneStateChanged:
		return s.applyStateChanged(ctx, req, &project, &milestone, decoded, now)
	case hedera.EventRoyaltyPaid:
		return s.applyRoyaltyPaid(&milestone, transaction, now)
	case hedera.EventSubMilestoneAdded:
		return s.applySubMilestoneAdded(&project, &milestone, transaction, now)
	case hedera.EventMilestoneRoyaltyFunded:
		// Royalty top-ups only need the audit row and the stamps.
		return s.stampTouched(&project, &milestone, now)
	default:
		return apperrors.Validation(fmt.Sprintf("unsupported event %s", req.Event))
	}
}

// applyMilestoneFunded runs the funding math. The milestone's on-chain cost
// is its allocation plus the royalty (PERCENT royalties computed from the
// allocation); a whole-project funding call always drains the remaining
// project fund to zero.
func (s *ReconcilerService) applyMilestoneFunded(ctx context.Context, function string, project *models.Project, milestone *models.Milestone, transaction *models.Transaction, now time.Time) error {
	milestoneFund, err := strconv.ParseFloat(milestone.FundAllocation, 64)
	if err != nil {
		return fmt.Errorf("invalid fund allocation %q", milestone.FundAllocation)
	}
	if milestone.RoyaltyAmount != "" && milestone.RoyaltyAmount != "0" {
		royalty, err := RoyaltyAmountValue(milestone)
		if err != nil {
			return err
		}
		milestoneFund += royalty
	}

	left, transferred, err := remainingProjectFund(function, project.LeftProjectFund, milestoneFund)
	if err != nil {
		return err
	}
	projectUpdates := map[string]interface{}{
		"last_transaction_date": &now,
		"left_project_fund":     left,
		"fund_transferred":      transferred,
	}
	if err := s.db.Model(&models.Project{}).Where("id = ?", project.ID).Updates(projectUpdates).Error; err != nil {
		return fmt.Errorf("failed to update project funds: %w", err)
	}

	err = s.db.Model(&models.Fund{}).Where("milestone_id = ?", milestone.ID).Updates(map[string]interface{}{
		"fund_tx_to_escrow":     transaction.ID.String(),
		"last_transaction_date": &now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to record escrow-in transaction: %w", err)
	}

	intents := make([]NotificationIntent, 0, len(project.Members))
	for _, member := range project.Members {
		if member.ProjectRole == models.ProjectUserIP {
			continue
		}
		intents = append(intents, NotificationIntent{
			RecipientID: member.UserID,
			Category:    CategoryFund,
			Pattern:     "MILESTONE_FUNDED",
			Message:     fmt.Sprintf("Fund transferred to escrow for milestone %q in project %q", milestone.Name, project.Name),
			Metadata: models.JSONB{
				"project_id":   project.ID.String(),
				"milestone_id": milestone.ID.String(),
			},
		})
	}
	s.notifications.Dispatch(ctx, intents...)

	return s.stampMilestone(milestone.ID, now)
}

// remainingProjectFund computes the project fund left after one funding
// call. A whole-project call always drains the fund to exactly "0"; a
// per-milestone call subtracts the milestone's cost and flips the
// transferred flag once nothing is left.
func remainingProjectFund(function, leftProjectFund string, milestoneCost float64) (string, bool, error) {
	if function == hedera.FuncFundProject || function == hedera.FuncFundUsdcToProject {
		return "0", true, nil
	}
	projectFund, err := strconv.ParseFloat(leftProjectFund, 64)
	if err != nil {
		return "", false, fmt.Errorf("invalid left project fund %q", leftProjectFund)
	}
	left := projectFund - milestoneCost
	return strconv.FormatFloat(left, 'f', -1, 64), left <= 0, nil
}

func (s *ReconcilerService) applyForceClosed(ctx context.Context, project *models.Project, milestone *models.Milestone, now time.Time) error {
	ids := milestoneFamilyIDs(milestone)
	err := s.db.Model(&models.Milestone{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"enable_fund_transfer":    false,
		"enable_royalty_transfer": false,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to disable transfers: %w", err)
	}

	if err := s.milestones.ApplyChainStatus(ctx, milestone.ID, models.MilestoneStatusForceClosed, "", nil); err != nil {
		return err
	}
	return s.stampTouched(project, milestone, now)
}

func (s *ReconcilerService) applyPayout(ctx context.Context, project *models.Project, milestone *models.Milestone, transaction *models.Transaction, now time.Time) error {
	ids := milestoneFamilyIDs(milestone)

	err := s.db.Model(&models.Milestone{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"enable_fund_transfer":    false,
		"fund_transferred":        true,
		"enable_royalty_transfer": true,
		"last_transaction_date":   &now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark payout: %w", err)
	}

	err = s.db.Model(&models.Fund{}).Where("milestone_id IN ?", ids).Updates(map[string]interface{}{
		"fund_tx_from_escrow":   transaction.ID.String(),
		"last_transaction_date": &now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to record escrow-out transaction: %w", err)
	}

	intents := make([]NotificationIntent, 0, len(project.Members))
	for _, member := range project.Members {
		assigned := milestone.AssigneeID != nil && member.UserID == *milestone.AssigneeID
		if !assigned && member.ProjectRole != models.ProjectUserCP && member.ProjectRole != models.ProjectUserPurchaser {
			continue
		}
		intents = append(intents, NotificationIntent{
			RecipientID: member.UserID,
			Category:    CategoryFund,
			Pattern:     "MILESTONE_PAID",
			Message:     fmt.Sprintf("%q is paid", milestone.Name),
			Metadata: models.JSONB{
				"project_id":   project.ID.String(),
				"milestone_id": milestone.ID.String(),
			},
		})
	}
	s.notifications.Dispatch(ctx, intents...)

	return s.stampProject(project.ID, now)
}

func (s *ReconcilerService) applyStateChanged(ctx context.Context, req *ReconcileRequest, project *models.Project, milestone *models.Milestone, decoded *hedera.DecodedEvent, now time.Time) error {
	status, ok := models.MilestoneStatusFromOrdinal(decoded.Uint8("state"))
	if !ok {
		return apperrors.Validation(fmt.Sprintf("unknown contract state %d", decoded.Uint8("state")))
	}

	switch status {
	case models.MilestoneStatusRework:
		if req.ReworkComment == "" || len(req.ReworkDocs) == 0 {
			return apperrors.StateConflict("rework requires a comment and rework documents")
		}
		if err := s.milestones.ApplyChainStatus(ctx, milestone.ID, status, req.ReworkComment, req.ReworkDocs); err != nil {
			return err
		}
	case models.MilestoneStatusFunded:
		// The contract reports FUNDED; off chain the milestone stays in
		// its pre-work state.
		if err := s.milestones.ApplyChainStatus(ctx, milestone.ID, models.MilestoneStatusInit, "", nil); err != nil {
			return err
		}
	default:
		if err := s.milestones.ApplyChainStatus(ctx, milestone.ID, status, "", nil); err != nil {
			return err
		}
	}

	if req.Event == hedera.EventMilestoneStateChanged && status == models.MilestoneStatusCompleted {
		err := s.db.Model(&models.Milestone{}).Where("id = ?", milestone.ID).
			Update("enable_fund_transfer", true).Error
		if err != nil {
			return fmt.Errorf("failed to enable fund transfer: %w", err)
		}
	}

	return s.stampTouched(project, milestone, now)
}

func (s *ReconcilerService) applyRoyaltyPaid(milestone *models.Milestone, transaction *models.Transaction, now time.Time) error {
	err := s.db.Model(&models.Milestone{}).Where("id = ?", milestone.ID).Updates(map[string]interface{}{
		"enable_royalty_transfer": false,
		"royalty_transferred":     true,
		"royalty_transaction_id":  transaction.ID,
		"last_transaction_date":   &now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark royalty paid: %w", err)
	}
	return s.stampProject(milestone.ProjectID, now)
}

func (s *ReconcilerService) applySubMilestoneAdded(project *models.Project, milestone *models.Milestone, transaction *models.Transaction, now time.Time) error {
	err := s.db.Model(&models.Milestone{}).Where("id = ?", milestone.ID).
		Update("is_deployed_on_contract", transaction.ID).Error
	if err != nil {
		return fmt.Errorf("failed to mark sub-milestone deployed: %w", err)
	}
	return s.stampTouched(project, milestone, now)
}

func (s *ReconcilerService) stampTouched(project *models.Project, milestone *models.Milestone, now time.Time) error {
	if err := s.stampMilestone(milestone.ID, now); err != nil {
		return err
	}
	return s.stampProject(project.ID, now)
}

func (s *ReconcilerService) stampMilestone(id uuid.UUID, now time.Time) error {
	return s.db.Model(&models.Milestone{}).Where("id = ?", id).
		Update("last_transaction_date", &now).Error
}

func (s *ReconcilerService) stampProject(id uuid.UUID, now time.Time) error {
	return s.db.Model(&models.Project{}).Where("id = ?", id).
		Update("last_transaction_date", &now).Error
}

// milestoneFamilyIDs returns the milestone and its loaded children.
func milestoneFamilyIDs(m *models.Milestone) []uuid.UUID {
	ids := []uuid.UUID{m.ID}
	for _, child := range m.Children {
		ids = append(ids, child.ID)
	}
	return ids
}

// ListChainErrors returns recorded mirror-node failures, newest first.
func (s *ReconcilerService) ListChainErrors(params utils.PaginationParams) (*utils.PaginationResult, error) {
	var chainErrors []models.ChainError
	var total int64

	query := s.db.Model(&models.ChainError{})
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count chain errors: %w", err)
	}

	err := utils.ApplyPagination(query.Order("created_at DESC"), params).Find(&chainErrors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain errors: %w", err)
	}

	result := utils.CreatePaginationResult(chainErrors, total, params)
	return &result, nil
}
