// internal/services/milestone_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/escrowflow-backend/internal/apperrors"
	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/database"
	"github.com/javajoker/escrowflow-backend/internal/models"
)

// milestoneTransitions is the adjacency table of the off-chain milestone
// state machine. It mirrors the escrow contract's transitions so that a
// state accepted here is always accepted on chain.
var milestoneTransitions = map[models.MilestoneStatus][]models.MilestoneStatus{
	models.MilestoneStatusInit: {
		models.MilestoneStatusInProgress,
		models.MilestoneStatusCompleted,
		models.MilestoneStatusStop,
		models.MilestoneStatusForceClosed,
	},
	models.MilestoneStatusInProgress: {
		models.MilestoneStatusInReview,
		models.MilestoneStatusCompleted,
		models.MilestoneStatusForceClosed,
	},
	models.MilestoneStatusInReview: {
		models.MilestoneStatusRework,
		models.MilestoneStatusCompleted,
		models.MilestoneStatusForceClosed,
	},
	models.MilestoneStatusRework: {
		models.MilestoneStatusInProgress,
		models.MilestoneStatusCompleted,
		models.MilestoneStatusForceClosed,
	},
	models.MilestoneStatusStop: {
		models.MilestoneStatusInit,
	},
}

// subMilestoneRoleGates and topMilestoneRoleGates list which target states a
// project role may request. The purchaser drives top-level milestones, the
// contract personnel drive sub-milestones, and providers only move their own
// assignments forward.
var subMilestoneRoleGates = map[models.ProjectUserRole][]models.MilestoneStatus{
	models.ProjectUserIP: {
		models.MilestoneStatusInProgress,
		models.MilestoneStatusInReview,
	},
	models.ProjectUserCP: {
		models.MilestoneStatusInit,
		models.MilestoneStatusInProgress,
		models.MilestoneStatusCompleted,
		models.MilestoneStatusStop,
		models.MilestoneStatusRework,
		models.MilestoneStatusForceClosed,
	},
}

var topMilestoneRoleGates = map[models.ProjectUserRole][]models.MilestoneStatus{
	models.ProjectUserCP: {
		models.MilestoneStatusInProgress,
		models.MilestoneStatusInReview,
	},
	models.ProjectUserPurchaser: {
		models.MilestoneStatusInit,
		models.MilestoneStatusCompleted,
		models.MilestoneStatusRework,
		models.MilestoneStatusStop,
		models.MilestoneStatusForceClosed,
	},
}

// TransitionAllowed reports whether the state machine permits from→to.
func TransitionAllowed(from, to models.MilestoneStatus) bool {
	for _, next := range milestoneTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RoleMaySet reports whether the given project role may request the target
// state on a milestone of the given kind.
func RoleMaySet(role models.ProjectUserRole, kind models.MilestoneKind, to models.MilestoneStatus) bool {
	gates := topMilestoneRoleGates
	if kind == models.MilestoneKindSubMilestone {
		gates = subMilestoneRoleGates
	}
	for _, allowed := range gates[role] {
		if allowed == to {
			return true
		}
	}
	return false
}

type MilestoneService struct {
	db            *gorm.DB
	config        *config.Config
	notifications *NotificationService
	logger        *logrus.Entry
}

func NewMilestoneService(db *gorm.DB, config *config.Config, notifications *NotificationService) *MilestoneService {
	return &MilestoneService{
		db:            db,
		config:        config,
		notifications: notifications,
		logger:        logrus.WithField("service", "milestone"),
	}
}

type TransitionRequest struct {
	Status        models.MilestoneStatus `json:"status" validate:"required"`
	ReworkComment string                 `json:"rework_comment,omitempty"`
	ReworkDocs    []string               `json:"rework_docs,omitempty"`
}

// Transition moves a milestone to a new state on behalf of a project member,
// enforcing the state machine, the role gate, and the rework budget. On
// success the project status is recomputed and the affected members are
// notified.
func (s *MilestoneService) Transition(ctx context.Context, actorID, milestoneID uuid.UUID, req *TransitionRequest) (*models.Milestone, error) {
	var milestone models.Milestone
	if err := s.db.Preload("Children").First(&milestone, "id = ?", milestoneID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("milestone")
		}
		return nil, fmt.Errorf("failed to load milestone: %w", err)
	}

	var project models.Project
	if err := s.db.Preload("Members.User").First(&project, "id = ?", milestone.ProjectID).Error; err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	member := project.Member(actorID)
	if member == nil {
		return nil, apperrors.Authorization("not a member of this project")
	}

	from := milestone.Status
	to := req.Status

	if !TransitionAllowed(from, to) {
		return nil, apperrors.StateConflict(fmt.Sprintf("cannot move milestone from %s to %s", from, to))
	}
	if !RoleMaySet(member.ProjectRole, milestone.Kind, to) {
		return nil, apperrors.Authorization(fmt.Sprintf("role %s may not set state %s", member.ProjectRole, to))
	}
	if milestone.Kind == models.MilestoneKindSubMilestone &&
		member.ProjectRole == models.ProjectUserIP &&
		(milestone.AssigneeID == nil || *milestone.AssigneeID != actorID) {
		return nil, apperrors.Authorization("milestone is assigned to another provider")
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := s.applyStatus(tx, &milestone, to, req.ReworkComment, req.ReworkDocs); err != nil {
			return err
		}
		return s.recomputeProjectStatus(tx, &project)
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Dispatch(ctx, s.transitionIntents(&project, &milestone, member, from, to)...)

	if err := s.db.Preload("Children").First(&milestone, "id = ?", milestone.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload milestone: %w", err)
	}
	return &milestone, nil
}

// applyStatus writes the status change and its side effects. The caller has
// already validated the transition.
func (s *MilestoneService) applyStatus(tx *gorm.DB, milestone *models.Milestone, to models.MilestoneStatus, reworkComment string, reworkDocs []string) error {
	updates := map[string]interface{}{"status": to}

	switch to {
	case models.MilestoneStatusRework:
		if milestone.RevisionsCounter >= milestone.Revisions {
			return apperrors.StateConflict("no revisions left for this milestone")
		}
		updates["revisions_counter"] = milestone.RevisionsCounter + 1
		updates["rework_comment"] = reworkComment
		updates["rework_docs"] = models.StringArray(reworkDocs)
	case models.MilestoneStatusCompleted:
		now := time.Now()
		updates["actual_end_date"] = &now
	}

	if err := tx.Model(&models.Milestone{}).Where("id = ?", milestone.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update milestone: %w", err)
	}

	// Completing a milestone completes everything under it.
	if to == models.MilestoneStatusCompleted {
		now := time.Now()
		err := tx.Model(&models.Milestone{}).
			Where("parent_id = ? AND status NOT IN ?", milestone.ID,
				[]models.MilestoneStatus{models.MilestoneStatusCompleted, models.MilestoneStatusForceClosed}).
			Updates(map[string]interface{}{
				"status":          models.MilestoneStatusCompleted,
				"actual_end_date": &now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to cascade completion: %w", err)
		}
	}
	return nil
}

// ApplyChainStatus drives the state machine from a decoded contract event.
// The contract already enforced who may move the milestone, so no role gate
// applies here; the adjacency and rework rules still do.
func (s *MilestoneService) ApplyChainStatus(ctx context.Context, milestoneID uuid.UUID, to models.MilestoneStatus, reworkComment string, reworkDocs []string) error {
	var milestone models.Milestone
	if err := s.db.First(&milestone, "id = ?", milestoneID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NotFound("milestone")
		}
		return fmt.Errorf("failed to load milestone: %w", err)
	}
	if milestone.Status == to {
		return nil
	}
	if !TransitionAllowed(milestone.Status, to) {
		return apperrors.StateConflict(fmt.Sprintf("cannot move milestone from %s to %s", milestone.Status, to))
	}

	var project models.Project
	if err := s.db.First(&project, "id = ?", milestone.ProjectID).Error; err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := s.applyStatus(tx, &milestone, to, reworkComment, reworkDocs); err != nil {
			return err
		}
		return s.recomputeProjectStatus(tx, &project)
	})
}

// recomputeProjectStatus derives the project status from its top-level
// milestones. Called inside the transition transaction.
func (s *MilestoneService) recomputeProjectStatus(tx *gorm.DB, project *models.Project) error {
	var milestones []models.Milestone
	err := tx.Where("project_id = ? AND parent_id IS NULL", project.ID).Find(&milestones).Error
	if err != nil {
		return fmt.Errorf("failed to load milestones: %w", err)
	}
	if len(milestones) == 0 {
		return nil
	}

	open := 0
	active := false
	for _, m := range milestones {
		if !m.Terminal() {
			open++
		}
		switch m.Status {
		case models.MilestoneStatusInProgress, models.MilestoneStatusInReview, models.MilestoneStatusRework:
			active = true
		}
	}

	status := project.Status
	switch {
	case open == 0:
		status = models.ProjectStatusComplete
	case active:
		status = models.ProjectStatusInProgress
	}

	if status == project.Status {
		return nil
	}

	updates := map[string]interface{}{"status": status}
	if status == models.ProjectStatusComplete {
		now := time.Now()
		updates["state"] = models.ProjectStateComplete
		updates["actual_end_date"] = &now
	}

	if err := tx.Model(&models.Project{}).Where("id = ?", project.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	project.Status = status
	return nil
}

// transitionIntents builds the notification fan-out for a state change.
// Sub-milestone changes reach the contract personnel and the assignee;
// top-level changes reach every member except the provider team.
func (s *MilestoneService) transitionIntents(project *models.Project, milestone *models.Milestone, actor *models.ProjectMember, from, to models.MilestoneStatus) []NotificationIntent {
	message := fmt.Sprintf("Milestone %q moved from %s to %s", milestone.Name, from.DisplayName(), to.DisplayName())
	metadata := models.JSONB{
		"project_id":   project.ID.String(),
		"milestone_id": milestone.ID.String(),
		"from":         string(from),
		"to":           string(to),
	}

	var recipients []uuid.UUID
	if milestone.Kind == models.MilestoneKindSubMilestone {
		if cp := project.MemberWithRole(models.ProjectUserCP); cp != nil {
			recipients = append(recipients, cp.UserID)
		}
		if milestone.AssigneeID != nil {
			recipients = append(recipients, *milestone.AssigneeID)
		}
	} else {
		for _, m := range project.Members {
			if m.ProjectRole == models.ProjectUserIP {
				continue
			}
			recipients = append(recipients, m.UserID)
		}
	}

	seen := make(map[uuid.UUID]bool)
	intents := make([]NotificationIntent, 0, len(recipients))
	for _, recipient := range recipients {
		if recipient == actor.UserID || seen[recipient] {
			continue
		}
		seen[recipient] = true
		intents = append(intents, NotificationIntent{
			RecipientID:        recipient,
			Category:           CategoryMilestone,
			Pattern:            "MILESTONE_STATE_CHANGED",
			Message:            message,
			Metadata:           metadata,
			SenderProfileImage: actor.User.ProfileImage,
		})
	}
	return intents
}

// Hold parks a milestone off chain without running the state machine. Used
// while a dispute is open on it.
func (s *MilestoneService) Hold(ctx context.Context, actorID, milestoneID uuid.UUID) (*models.Milestone, error) {
	var milestone models.Milestone
	if err := s.db.First(&milestone, "id = ?", milestoneID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("milestone")
		}
		return nil, fmt.Errorf("failed to load milestone: %w", err)
	}
	if milestone.Terminal() {
		return nil, apperrors.StateConflict("milestone already closed")
	}

	var project models.Project
	if err := s.db.Preload("Members").First(&project, "id = ?", milestone.ProjectID).Error; err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project.Member(actorID) == nil {
		return nil, apperrors.Authorization("not a member of this project")
	}

	prior := milestone.Status
	err := s.db.Model(&milestone).Updates(map[string]interface{}{
		"status":             models.MilestoneStatusHold,
		"status_before_hold": prior,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to hold milestone: %w", err)
	}
	milestone.Status = models.MilestoneStatusHold
	milestone.StatusBeforeHold = &prior
	return &milestone, nil
}

// Release takes a milestone off hold, restoring the status it held before.
// A milestone held by a dispute comes back through here once the dispute
// settles. Releasing a milestone that is not on hold is a no-op.
func (s *MilestoneService) Release(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, error) {
	var milestone models.Milestone
	if err := s.db.First(&milestone, "id = ?", milestoneID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("milestone")
		}
		return nil, fmt.Errorf("failed to load milestone: %w", err)
	}
	if milestone.Status != models.MilestoneStatusHold {
		return &milestone, nil
	}

	restored := ReleaseTarget(&milestone)
	err := s.db.Model(&milestone).Updates(map[string]interface{}{
		"status":             restored,
		"status_before_hold": nil,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to release milestone: %w", err)
	}
	milestone.Status = restored
	milestone.StatusBeforeHold = nil
	return &milestone, nil
}

// ReleaseTarget resolves the status a held milestone returns to. Rows held
// before the resume status was recorded fall back to INIT.
func ReleaseTarget(m *models.Milestone) models.MilestoneStatus {
	if m.StatusBeforeHold != nil && *m.StatusBeforeHold != models.MilestoneStatusHold {
		return *m.StatusBeforeHold
	}
	return models.MilestoneStatusInit
}

// SubmitDeliverables records the provider's deliverable links on a
// sub-milestone and moves it into review in the same call.
func (s *MilestoneService) SubmitDeliverables(ctx context.Context, actorID, milestoneID uuid.UUID, links []string) (*models.Milestone, error) {
	if len(links) == 0 {
		return nil, apperrors.Validation("at least one deliverable link is required")
	}

	var milestone models.Milestone
	if err := s.db.First(&milestone, "id = ?", milestoneID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("milestone")
		}
		return nil, fmt.Errorf("failed to load milestone: %w", err)
	}

	err := s.db.Model(&milestone).Update("deliverables_link", models.StringArray(links)).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store deliverables: %w", err)
	}

	return s.Transition(ctx, actorID, milestoneID, &TransitionRequest{Status: models.MilestoneStatusInReview})
}

// GetMilestone returns a milestone with its children and penalties. Only
// members of the owning project may read it.
func (s *MilestoneService) GetMilestone(actorID, milestoneID uuid.UUID) (*models.Milestone, error) {
	var milestone models.Milestone
	err := s.db.Preload("Children").Preload("Penalties").First(&milestone, "id = ?", milestoneID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("milestone")
		}
		return nil, fmt.Errorf("failed to load milestone: %w", err)
	}

	var project models.Project
	if err := s.db.Preload("Members").First(&project, "id = ?", milestone.ProjectID).Error; err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project.Member(actorID) == nil {
		return nil, apperrors.Authorization("not a member of this project")
	}
	return &milestone, nil
}
