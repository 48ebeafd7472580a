// internal/services/dispute_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/escrowflow-backend/internal/apperrors"
	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/models"
	"github.com/javajoker/escrowflow-backend/internal/utils"
)

type DisputeService struct {
	db            *gorm.DB
	config        *config.Config
	notifications *NotificationService
	milestones    *MilestoneService
	logger        *logrus.Entry
}

func NewDisputeService(db *gorm.DB, config *config.Config, notifications *NotificationService, milestones *MilestoneService) *DisputeService {
	return &DisputeService{
		db:            db,
		config:        config,
		notifications: notifications,
		milestones:    milestones,
		logger:        logrus.WithField("service", "dispute"),
	}
}

type RaiseDisputeRequest struct {
	ProjectID   uuid.UUID  `json:"project_id" validate:"required"`
	MilestoneID *uuid.UUID `json:"milestone_id,omitempty"`
	RaisedToID  uuid.UUID  `json:"raised_to_id" validate:"required"`
	Title       string     `json:"title" validate:"required,min=3,max=255"`
	Description string     `json:"description" validate:"required"`
}

// Raise opens a dispute between two members of a project.
func (s *DisputeService) Raise(ctx context.Context, actorID uuid.UUID, req *RaiseDisputeRequest) (*models.Dispute, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
	}
	if req.RaisedToID == actorID {
		return nil, apperrors.Validation("cannot raise a dispute against yourself")
	}

	var project models.Project
	if err := s.db.Preload("Members").First(&project, "id = ?", req.ProjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("project")
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project.Member(actorID) == nil || project.Member(req.RaisedToID) == nil {
		return nil, apperrors.Authorization("both parties must be project members")
	}

	if req.MilestoneID != nil {
		var milestone models.Milestone
		if err := s.db.First(&milestone, "id = ? AND project_id = ?", req.MilestoneID, project.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.NotFound("milestone")
			}
			return nil, fmt.Errorf("failed to load milestone: %w", err)
		}
	}

	dispute := &models.Dispute{
		ProjectID:   req.ProjectID,
		MilestoneID: req.MilestoneID,
		RaisedByID:  actorID,
		RaisedToID:  req.RaisedToID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.DisputeStatusInReview,
	}
	if err := s.db.Create(dispute).Error; err != nil {
		return nil, fmt.Errorf("failed to create dispute: %w", err)
	}

	// A dispute over a milestone parks it until the dispute settles.
	if req.MilestoneID != nil {
		if _, err := s.milestones.Hold(ctx, actorID, *req.MilestoneID); err != nil {
			s.logger.WithError(err).WithField("milestone_id", req.MilestoneID).Warn("could not hold disputed milestone")
		}
	}

	s.notifyParties(ctx, dispute, "DISPUTE_RAISED",
		fmt.Sprintf("A dispute %q was raised on project %q", dispute.Title, project.Name))
	return dispute, nil
}

type RuleDisputeRequest struct {
	ResolutionType models.ResolutionType `json:"resolution_type" validate:"required,oneof=FAQ WRITTEN"`
	Resolution     string                `json:"resolution" validate:"required"`
	InFavourOfID   *uuid.UUID            `json:"in_favour_of_id,omitempty"`
}

// Rule records the platform's ruling. An FAQ pointer settles the dispute
// outright; a written ruling waits for both parties to answer.
func (s *DisputeService) Rule(ctx context.Context, actorID uuid.UUID, disputeID uuid.UUID, req *RuleDisputeRequest) (*models.Dispute, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
	}

	dispute, actor, err := s.loadForActor(actorID, disputeID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.UserRoleAdmin {
		return nil, apperrors.Authorization("only the platform may rule on a dispute")
	}
	if dispute.Terminal() {
		return nil, apperrors.StateConflict("dispute is already settled")
	}

	updates, err := ruleUpdates(dispute, req)
	if err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.Dispute{}).Where("id = ?", dispute.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to store ruling: %w", err)
	}

	pattern := "DISPUTE_RULED"
	message := fmt.Sprintf("The platform ruled on dispute %q", dispute.Title)
	if req.ResolutionType == models.ResolutionTypeFAQ {
		pattern = "DISPUTE_RESOLVED"
		message = fmt.Sprintf("Dispute %q was resolved", dispute.Title)
		s.releaseDisputedMilestone(ctx, dispute)
	}
	s.notifyParties(ctx, dispute, pattern, message)

	return s.reload(dispute.ID)
}

// ruleUpdates validates a ruling against the dispute's current state and
// builds the column updates it implies. An FAQ pointer settles the dispute;
// a written ruling names the favoured party and opens the agreement round.
func ruleUpdates(dispute *models.Dispute, req *RuleDisputeRequest) (map[string]interface{}, error) {
	agree := true
	updates := map[string]interface{}{
		"resolution_type": req.ResolutionType,
		"resolution":      req.Resolution,
		"is_mo_agree":     &agree,
	}

	if req.ResolutionType == models.ResolutionTypeFAQ {
		updates["status"] = models.DisputeStatusResolved
		return updates, nil
	}

	if req.InFavourOfID == nil || !dispute.Party(*req.InFavourOfID) {
		return nil, apperrors.Validation("a written ruling must favour one of the dispute parties")
	}
	if dispute.Resolution != "" && dispute.Status != models.DisputeStatusLegalWay {
		return nil, apperrors.StateConflict("dispute already has a ruling")
	}
	updates["in_favour_of_id"] = req.InFavourOfID
	updates["status"] = models.DisputeStatusInReview
	if dispute.Status == models.DisputeStatusLegalWay {
		// Re-ruling after escalation restarts the agreement round.
		updates["is_raised_by_agree"] = gorm.Expr("NULL")
		updates["is_raised_to_agree"] = gorm.Expr("NULL")
	}
	return updates, nil
}

// Answer records one party's response to a written ruling.
func (s *DisputeService) Answer(ctx context.Context, actorID, disputeID uuid.UUID, agrees bool) (*models.Dispute, error) {
	dispute, actor, err := s.loadForActor(actorID, disputeID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.UserRoleAdmin || !dispute.Party(actorID) {
		return nil, apperrors.Authorization("only a dispute party may answer the ruling")
	}
	if dispute.Terminal() {
		return nil, apperrors.StateConflict("dispute is already settled")
	}
	if dispute.IsMoAgree == nil {
		return nil, apperrors.StateConflict("the platform has not ruled yet")
	}

	updates, resolved, err := answerUpdates(dispute, actorID, agrees)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Dispute{}).Where("id = ?", dispute.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to record answer: %w", err)
	}

	if resolved {
		s.releaseDisputedMilestone(ctx, dispute)
		s.notifyParties(ctx, dispute, "DISPUTE_RESOLVED",
			fmt.Sprintf("Dispute %q was resolved", dispute.Title))
	} else {
		s.notifyParties(ctx, dispute, "DISPUTE_ANSWERED",
			fmt.Sprintf("A party answered the ruling on dispute %q", dispute.Title))
	}

	return s.reload(dispute.ID)
}

// answerUpdates records one party's agreement flag. The second answer, in
// either direction, resolves the dispute; answering twice conflicts.
func answerUpdates(dispute *models.Dispute, actorID uuid.UUID, agrees bool) (map[string]interface{}, bool, error) {
	column := "is_raised_by_agree"
	answered := dispute.IsRaisedByAgree
	other := dispute.IsRaisedToAgree
	if actorID == dispute.RaisedToID {
		column = "is_raised_to_agree"
		answered = dispute.IsRaisedToAgree
		other = dispute.IsRaisedByAgree
	}
	if answered != nil {
		return nil, false, apperrors.StateConflict("you already answered this ruling")
	}

	updates := map[string]interface{}{column: &agrees}
	if other != nil {
		updates["status"] = models.DisputeStatusResolved
	}
	return updates, other != nil, nil
}

// Close withdraws a dispute. Only the raiser may close.
func (s *DisputeService) Close(ctx context.Context, actorID, disputeID uuid.UUID, comment string) (*models.Dispute, error) {
	dispute, _, err := s.loadForActor(actorID, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.RaisedByID != actorID {
		return nil, apperrors.Authorization("only the raiser may close a dispute")
	}
	if dispute.Terminal() {
		return nil, apperrors.StateConflict("dispute is already settled")
	}

	err = s.db.Model(&models.Dispute{}).Where("id = ?", dispute.ID).Updates(map[string]interface{}{
		"status":         models.DisputeStatusClosed,
		"closed_by_id":   actorID,
		"closed_comment": comment,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to close dispute: %w", err)
	}

	s.releaseDisputedMilestone(ctx, dispute)
	s.notifyParties(ctx, dispute, "DISPUTE_CLOSED",
		fmt.Sprintf("Dispute %q was closed by the raiser", dispute.Title))
	return s.reload(dispute.ID)
}

// releaseDisputedMilestone lifts the hold a dispute placed on its milestone
// once the dispute settles. The release never fails the settlement itself.
func (s *DisputeService) releaseDisputedMilestone(ctx context.Context, dispute *models.Dispute) {
	if dispute.MilestoneID == nil {
		return
	}
	if _, err := s.milestones.Release(ctx, *dispute.MilestoneID); err != nil {
		s.logger.WithError(err).WithField("milestone_id", dispute.MilestoneID).Warn("could not release disputed milestone")
	}
}

// Escalate rejects the ruling and moves the dispute onto the legal track.
// The agreement flags are wiped so a later re-ruling starts clean.
func (s *DisputeService) Escalate(ctx context.Context, actorID, disputeID uuid.UUID) (*models.Dispute, error) {
	dispute, actor, err := s.loadForActor(actorID, disputeID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.UserRoleAdmin || !dispute.Party(actorID) {
		return nil, apperrors.Authorization("only a dispute party may escalate")
	}
	if dispute.Terminal() {
		return nil, apperrors.StateConflict("dispute is already settled")
	}
	if dispute.IsMoAgree == nil {
		return nil, apperrors.StateConflict("the platform has not ruled yet")
	}

	err = s.db.Model(&models.Dispute{}).Where("id = ?", dispute.ID).Updates(map[string]interface{}{
		"status":             models.DisputeStatusLegalWay,
		"is_raised_by_agree": gorm.Expr("NULL"),
		"is_raised_to_agree": gorm.Expr("NULL"),
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to escalate dispute: %w", err)
	}

	s.notifyParties(ctx, dispute, "DISPUTE_ESCALATED",
		fmt.Sprintf("Dispute %q was escalated to the legal track", dispute.Title))
	return s.reload(dispute.ID)
}

// ListDisputes returns disputes visible to the caller: all of them for an
// admin, otherwise the ones they are party to.
func (s *DisputeService) ListDisputes(actorID uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	var actor models.User
	if err := s.db.First(&actor, "id = ?", actorID).Error; err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	query := s.db.Model(&models.Dispute{})
	if actor.Role != models.UserRoleAdmin {
		query = query.Where("raised_by_id = ? OR raised_to_id = ?", actorID, actorID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count disputes: %w", err)
	}

	var disputes []models.Dispute
	err := utils.ApplyPagination(query.Order("created_at DESC"), params).
		Preload("RaisedBy").
		Preload("RaisedTo").
		Find(&disputes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch disputes: %w", err)
	}

	result := utils.CreatePaginationResult(disputes, total, params)
	return &result, nil
}

// GetDispute returns one dispute if the caller may see it.
func (s *DisputeService) GetDispute(actorID, disputeID uuid.UUID) (*models.Dispute, error) {
	dispute, _, err := s.loadForActor(actorID, disputeID)
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

func (s *DisputeService) loadForActor(actorID, disputeID uuid.UUID) (*models.Dispute, *models.User, error) {
	var dispute models.Dispute
	err := s.db.Preload("RaisedBy").Preload("RaisedTo").First(&dispute, "id = ?", disputeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NotFound("dispute")
		}
		return nil, nil, fmt.Errorf("failed to load dispute: %w", err)
	}

	var actor models.User
	if err := s.db.First(&actor, "id = ?", actorID).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}

	if actor.Role != models.UserRoleAdmin && !dispute.Party(actorID) {
		return nil, nil, apperrors.Authorization("not a party to this dispute")
	}
	return &dispute, &actor, nil
}

func (s *DisputeService) reload(disputeID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := s.db.Preload("RaisedBy").Preload("RaisedTo").First(&dispute, "id = ?", disputeID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to reload dispute: %w", err)
	}
	return &dispute, nil
}

func (s *DisputeService) notifyParties(ctx context.Context, dispute *models.Dispute, pattern, message string) {
	metadata := models.JSONB{
		"dispute_id": dispute.ID.String(),
		"project_id": dispute.ProjectID.String(),
	}
	s.notifications.Dispatch(ctx,
		NotificationIntent{
			RecipientID: dispute.RaisedByID,
			Category:    CategoryDispute,
			Pattern:     pattern,
			Message:     message,
			Metadata:    metadata,
		},
		NotificationIntent{
			RecipientID: dispute.RaisedToID,
			Category:    CategoryDispute,
			Pattern:     pattern,
			Message:     message,
			Metadata:    metadata,
		},
	)
}
