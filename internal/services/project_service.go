// internal/services/project_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/escrowflow-backend/internal/apperrors"
	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/database"
	"github.com/javajoker/escrowflow-backend/internal/models"
	"github.com/javajoker/escrowflow-backend/internal/utils"
)

type ProjectService struct {
	db            *gorm.DB
	config        *config.Config
	notifications *NotificationService
	logger        *logrus.Entry
}

func NewProjectService(db *gorm.DB, config *config.Config, notifications *NotificationService) *ProjectService {
	return &ProjectService{
		db:            db,
		config:        config,
		notifications: notifications,
		logger:        logrus.WithField("service", "project"),
	}
}

type CreateProjectRequest struct {
	Name        string              `json:"name" validate:"required,min=3,max=255"`
	Description string              `json:"description,omitempty"`
	Currency    models.CurrencyType `json:"currency" validate:"required,oneof=HBAR USDC"`
	ProviderID  uuid.UUID           `json:"provider_id" validate:"required"`
}

// CreateProject opens a new project between a purchaser and the contract
// personnel they invited. The purchaser holds the editor token first.
func (s *ProjectService) CreateProject(ctx context.Context, purchaserID uuid.UUID, req *CreateProjectRequest) (*models.Project, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
	}

	var provider models.User
	if err := s.db.First(&provider, "id = ?", req.ProviderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("provider")
		}
		return nil, fmt.Errorf("failed to load provider: %w", err)
	}
	if provider.Role != models.UserRoleProvider {
		return nil, apperrors.Validation("invited user is not a provider")
	}

	project := &models.Project{
		Name:          req.Name,
		Description:   req.Description,
		State:         models.ProjectStateInitialized,
		Status:        models.ProjectStatusUnassigned,
		Currency:      req.Currency,
		CurrentEditor: &purchaserID,
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}
		members := []models.ProjectMember{
			{ProjectID: project.ID, UserID: purchaserID, ProjectRole: models.ProjectUserPurchaser},
			{ProjectID: project.ID, UserID: req.ProviderID, ProjectRole: models.ProjectUserCP},
		}
		if err := tx.Create(&members).Error; err != nil {
			return fmt.Errorf("failed to create members: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Dispatch(ctx, NotificationIntent{
		RecipientID: req.ProviderID,
		Category:    CategoryProject,
		Pattern:     "PROJECT_INVITED",
		Message:     fmt.Sprintf("You were invited to project %q", project.Name),
		Metadata:    models.JSONB{"project_id": project.ID.String()},
	})
	return project, nil
}

type MilestoneInput struct {
	Name           string             `json:"name" validate:"required"`
	Description    string             `json:"description,omitempty"`
	StartDate      time.Time          `json:"start_date" validate:"required"`
	EndDate        time.Time          `json:"end_date" validate:"required"`
	FundAllocation string             `json:"fund_allocation" validate:"required,amount"`
	Revisions      int                `json:"revisions" validate:"min=0"`
	RoyaltyType    models.RoyaltyType `json:"royalty_type,omitempty"`
	RoyaltyValueIn models.ValueKind   `json:"royalty_value_in,omitempty"`
	RoyaltyAmount  string             `json:"royalty_amount,omitempty" validate:"omitempty,amount"`
	Penalties      []PenaltyInput     `json:"penalties,omitempty"`
}

type PenaltyInput struct {
	ValueIn    models.ValueKind `json:"value_in" validate:"required,oneof=AMOUNT PERCENT"`
	Penalty    string           `json:"penalty" validate:"required,amount"`
	TimePeriod int              `json:"time_period" validate:"min=1"`
}

type SaveProjectRequest struct {
	SaveType         models.SaveType         `json:"save_type" validate:"required,oneof=DRAFT COMPLETE"`
	DraftType        models.DraftType        `json:"draft_type,omitempty"`
	DraftPayload     models.JSONB            `json:"draft_payload,omitempty"`
	Name             string                  `json:"name,omitempty"`
	Description      string                  `json:"description,omitempty"`
	TotalProjectFund string                  `json:"total_project_fund,omitempty" validate:"omitempty,amount"`
	AssignedFundTo   models.FundingType      `json:"assigned_fund_to,omitempty"`
	FundTransferType models.FundTransferType `json:"fund_transfer_type,omitempty"`
	StartDate        *time.Time              `json:"start_date,omitempty"`
	EndDate          *time.Time              `json:"end_date,omitempty"`
	Milestones       []MilestoneInput        `json:"milestones,omitempty"`
}

// SaveProject applies one round of project editing. A DRAFT save upserts the
// section draft for the current editor; a COMPLETE save replaces the project
// content in one serializable transaction and hands the editor token to the
// counterparty.
func (s *ProjectService) SaveProject(ctx context.Context, actorID, projectID uuid.UUID, req *SaveProjectRequest) (*models.Project, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
	}

	var project models.Project
	if err := s.db.Preload("Members.User").First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("project")
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	if !project.Editable() {
		return nil, apperrors.StateConflict("project can no longer be edited")
	}
	if project.CurrentEditor == nil || *project.CurrentEditor != actorID {
		return nil, apperrors.Authorization("it is not your turn to edit this project")
	}

	if req.SaveType == models.SaveTypeDraft {
		if req.DraftType == "" {
			return nil, apperrors.Validation("draft_type is required for a draft save")
		}
		if err := s.saveDraft(&project, actorID, req.DraftType, req.DraftPayload); err != nil {
			return nil, err
		}
		return &project, nil
	}

	if err := s.saveComplete(&project, actorID, req); err != nil {
		return nil, err
	}

	if next := s.counterparty(&project, actorID); next != nil {
		s.notifications.Dispatch(ctx, NotificationIntent{
			RecipientID: next.UserID,
			Category:    CategoryProject,
			Pattern:     "PROJECT_HANDED_OVER",
			Message:     fmt.Sprintf("Project %q is ready for your review", project.Name),
			Metadata:    models.JSONB{"project_id": project.ID.String()},
		})
	}

	if err := s.db.Preload("Members.User").Preload("Milestones").First(&project, "id = ?", project.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload project: %w", err)
	}
	return &project, nil
}

func (s *ProjectService) saveDraft(project *models.Project, actorID uuid.UUID, draftType models.DraftType, payload models.JSONB) error {
	var draft models.ProjectDraft
	err := s.db.Where("project_id = ? AND draft_type = ? AND created_by = ?", project.ID, draftType, actorID).
		First(&draft).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		draft = models.ProjectDraft{
			ProjectID: project.ID,
			DraftType: draftType,
			Payload:   payload,
			CreatedBy: actorID,
		}
		if err := s.db.Create(&draft).Error; err != nil {
			return fmt.Errorf("failed to create draft: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to load draft: %w", err)
	default:
		if err := s.db.Model(&draft).Update("payload", payload).Error; err != nil {
			return fmt.Errorf("failed to update draft: %w", err)
		}
	}
	return nil
}

// saveComplete replaces the project content. Concurrent completes from both
// parties must not interleave, so the whole replacement runs serializable.
func (s *ProjectService) saveComplete(project *models.Project, actorID uuid.UUID, req *SaveProjectRequest) error {
	next := s.counterparty(project, actorID)
	if next == nil {
		return apperrors.StateConflict("project has no counterparty to hand over to")
	}

	return database.WithSerializableTransaction(s.db, func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"state":          nextEditingState(project.State),
			"current_editor": next.UserID,
		}
		if req.Name != "" {
			updates["name"] = req.Name
		}
		if req.Description != "" {
			updates["description"] = req.Description
		}
		if req.TotalProjectFund != "" {
			updates["total_project_fund"] = req.TotalProjectFund
			updates["left_project_fund"] = req.TotalProjectFund
		}
		if req.AssignedFundTo != "" {
			updates["assigned_fund_to"] = req.AssignedFundTo
		}
		if req.FundTransferType != "" {
			updates["fund_transfer_type"] = req.FundTransferType
		}
		if req.StartDate != nil {
			updates["start_date"] = req.StartDate
		}
		if req.EndDate != nil {
			updates["end_date"] = req.EndDate
		}

		result := tx.Model(&models.Project{}).
			Where("id = ? AND current_editor = ?", project.ID, actorID).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to update project: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.StateConflict("project was modified concurrently")
		}

		if req.Milestones != nil {
			if err := replaceMilestones(tx, project.ID, req.Milestones); err != nil {
				return err
			}
		}

		// The editor's drafts are superseded by the completed save.
		err := tx.Where("project_id = ? AND created_by = ?", project.ID, actorID).
			Delete(&models.ProjectDraft{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear drafts: %w", err)
		}
		return nil
	})
}

// replaceMilestones swaps the full top-level milestone set. Sub-milestones
// only exist after deployment, when editing is frozen, so a wholesale
// replace is safe here.
func replaceMilestones(tx *gorm.DB, projectID uuid.UUID, inputs []MilestoneInput) error {
	var old []models.Milestone
	if err := tx.Where("project_id = ?", projectID).Find(&old).Error; err != nil {
		return fmt.Errorf("failed to load milestones: %w", err)
	}
	for _, m := range old {
		if err := tx.Where("milestone_id = ?", m.ID).Delete(&models.PenaltyBreach{}).Error; err != nil {
			return fmt.Errorf("failed to delete penalties: %w", err)
		}
	}
	if err := tx.Where("project_id = ?", projectID).Delete(&models.Milestone{}).Error; err != nil {
		return fmt.Errorf("failed to delete milestones: %w", err)
	}

	for i, input := range inputs {
		milestone := models.Milestone{
			ProjectID:      projectID,
			Kind:           models.MilestoneKindMilestone,
			Name:           input.Name,
			Description:    input.Description,
			Status:         models.MilestoneStatusInit,
			SequenceNumber: i + 1,
			StartDate:      input.StartDate,
			EndDate:        input.EndDate,
			FundAllocation: input.FundAllocation,
			MilestoneFund:  input.FundAllocation,
			Revisions:      input.Revisions,
		}
		if input.RoyaltyType != "" {
			milestone.RoyaltyType = input.RoyaltyType
			milestone.RoyaltyValueIn = input.RoyaltyValueIn
			milestone.RoyaltyAmount = input.RoyaltyAmount
		}
		if err := tx.Create(&milestone).Error; err != nil {
			return fmt.Errorf("failed to create milestone: %w", err)
		}

		for _, p := range input.Penalties {
			penalty := models.PenaltyBreach{
				MilestoneID: milestone.ID,
				ValueIn:     p.ValueIn,
				Penalty:     p.Penalty,
				TimePeriod:  p.TimePeriod,
			}
			if err := tx.Create(&penalty).Error; err != nil {
				return fmt.Errorf("failed to create penalty: %w", err)
			}
		}
	}
	return nil
}

// nextEditingState advances the negotiation ladder. Once both parties are in
// the milestone round the state parks at ADD_MILESTONES until acceptance.
func nextEditingState(current models.ProjectState) models.ProjectState {
	switch current {
	case models.ProjectStateInitialized:
		return models.ProjectStateNewProject
	case models.ProjectStateNewProject:
		return models.ProjectStateAddMilestones
	default:
		return models.ProjectStateAddMilestones
	}
}

func (s *ProjectService) counterparty(project *models.Project, actorID uuid.UUID) *models.ProjectMember {
	actor := project.Member(actorID)
	if actor == nil {
		return nil
	}
	switch actor.ProjectRole {
	case models.ProjectUserPurchaser:
		return project.MemberWithRole(models.ProjectUserCP)
	case models.ProjectUserCP:
		return project.MemberWithRole(models.ProjectUserPurchaser)
	}
	return nil
}

// AcceptProject locks the negotiated content and opens the escrow phase.
// The guarded update only fires when the caller still holds the editor
// token and the project sits in the milestone round, which makes a double
// accept a no-op conflict instead of a duplicate escrow.
func (s *ProjectService) AcceptProject(ctx context.Context, actorID, projectID uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := s.db.Preload("Members.User").
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Where("parent_id IS NULL").Order("sequence_number ASC")
		}).
		First(&project, "id = ?", projectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("project")
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	if project.Member(actorID) == nil {
		return nil, apperrors.Authorization("not a member of this project")
	}
	if len(project.Milestones) == 0 {
		return nil, apperrors.StateConflict("project has no milestones to fund")
	}

	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		result := tx.Model(&models.Project{}).
			Where("id = ? AND current_editor = ? AND state = ?", project.ID, actorID, models.ProjectStateAddMilestones).
			Updates(map[string]interface{}{
				"state":  models.ProjectStateAddEscrow,
				"status": models.ProjectStatusAssigned,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to accept project: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.StateConflict("project is not waiting for acceptance by you")
		}

		funds := make([]models.Fund, 0, len(project.Milestones))
		for _, m := range project.Milestones {
			funds = append(funds, models.Fund{
				ProjectID:   project.ID,
				MilestoneID: m.ID,
				FundType:    models.MilestoneKindMilestone,
				Amount:      m.FundAllocation,
			})
		}
		if err := tx.Create(&funds).Error; err != nil {
			return fmt.Errorf("failed to create fund rows: %w", err)
		}

		escrow := models.Escrow{ProjectID: project.ID}
		if err := tx.Create(&escrow).Error; err != nil {
			return fmt.Errorf("failed to create escrow row: %w", err)
		}

		if err := tx.Where("project_id = ?", project.ID).Delete(&models.ProjectDraft{}).Error; err != nil {
			return fmt.Errorf("failed to clear drafts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	intents := make([]NotificationIntent, 0, 2)
	for _, role := range []models.ProjectUserRole{models.ProjectUserPurchaser, models.ProjectUserCP} {
		if member := project.MemberWithRole(role); member != nil {
			intents = append(intents, NotificationIntent{
				RecipientID: member.UserID,
				Category:    CategoryProject,
				Pattern:     "PROJECT_ACCEPTED",
				Message:     fmt.Sprintf("Project %q was accepted and is ready for escrow", project.Name),
				Metadata:    models.JSONB{"project_id": project.ID.String()},
			})
		}
	}
	s.notifications.Dispatch(ctx, intents...)

	project.State = models.ProjectStateAddEscrow
	project.Status = models.ProjectStatusAssigned
	return &project, nil
}

// DeleteProject removes a project that never reached the chain.
func (s *ProjectService) DeleteProject(ctx context.Context, actorID, projectID uuid.UUID) error {
	var project models.Project
	if err := s.db.Preload("Members").First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("project")
		}
		return fmt.Errorf("failed to load project: %w", err)
	}

	member := project.Member(actorID)
	if member == nil || member.ProjectRole != models.ProjectUserPurchaser {
		return apperrors.Authorization("only the purchaser may delete a project")
	}
	switch project.State {
	case models.ProjectStateContractDeployed, models.ProjectStateComplete:
		return apperrors.StateConflict("a deployed project cannot be deleted")
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&models.ProjectDraft{}, &models.Fund{}, &models.Escrow{},
			&models.Document{}, &models.ProjectMember{},
		} {
			if err := tx.Where("project_id = ?", project.ID).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to delete project children: %w", err)
			}
		}

		var milestoneIDs []uuid.UUID
		err := tx.Model(&models.Milestone{}).Where("project_id = ?", project.ID).Pluck("id", &milestoneIDs).Error
		if err != nil {
			return fmt.Errorf("failed to list milestones: %w", err)
		}
		if len(milestoneIDs) > 0 {
			if err := tx.Where("milestone_id IN ?", milestoneIDs).Delete(&models.PenaltyBreach{}).Error; err != nil {
				return fmt.Errorf("failed to delete penalties: %w", err)
			}
			if err := tx.Where("project_id = ?", project.ID).Delete(&models.Milestone{}).Error; err != nil {
				return fmt.Errorf("failed to delete milestones: %w", err)
			}
		}

		if err := tx.Delete(&project).Error; err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return nil
	})
}

type MemberPermissions struct {
	UserID      uuid.UUID    `json:"user_id" validate:"required"`
	Permissions models.JSONB `json:"permissions" validate:"required"`
}

// UpdatePermissions lets the contract personnel rewrite what each member may
// see on the project. All rows change together or not at all.
func (s *ProjectService) UpdatePermissions(ctx context.Context, actorID, projectID uuid.UUID, updates []MemberPermissions) error {
	var project models.Project
	if err := s.db.Preload("Members").First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("project")
		}
		return fmt.Errorf("failed to load project: %w", err)
	}

	actor := project.Member(actorID)
	if actor == nil || actor.ProjectRole != models.ProjectUserCP {
		return apperrors.Authorization("only the contract personnel may change permissions")
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		for _, update := range updates {
			if project.Member(update.UserID) == nil {
				return apperrors.Validation("permissions target is not a project member")
			}
			result := tx.Model(&models.ProjectMember{}).
				Where("project_id = ? AND user_id = ?", project.ID, update.UserID).
				Update("permissions", update.Permissions)
			if result.Error != nil {
				return fmt.Errorf("failed to update permissions: %w", result.Error)
			}
		}
		return nil
	})
}

type SubMilestoneInput struct {
	Name           string         `json:"name" validate:"required"`
	Description    string         `json:"description,omitempty"`
	StartDate      time.Time      `json:"start_date" validate:"required"`
	EndDate        time.Time      `json:"end_date" validate:"required"`
	FundAllocation string         `json:"fund_allocation" validate:"required,amount"`
	Revisions      int            `json:"revisions" validate:"min=0"`
	AssigneeID     uuid.UUID      `json:"assignee_id" validate:"required"`
	Penalties      []PenaltyInput `json:"penalties,omitempty"`
}

// AddSubMilestones splits an untouched top-level milestone into assigned
// sub-milestones after deployment. The on-chain registration follows
// asynchronously; the reconciler stamps is_deployed_on_contract once the
// contract confirms.
func (s *ProjectService) AddSubMilestones(ctx context.Context, actorID, parentID uuid.UUID, inputs []SubMilestoneInput) ([]models.Milestone, error) {
	if len(inputs) == 0 {
		return nil, apperrors.Validation("at least one sub-milestone is required")
	}
	for i := range inputs {
		if err := utils.ValidateStruct(&inputs[i]); err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
		}
	}

	var parent models.Milestone
	if err := s.db.First(&parent, "id = ?", parentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("milestone")
		}
		return nil, fmt.Errorf("failed to load milestone: %w", err)
	}
	if parent.ParentID != nil {
		return nil, apperrors.Validation("sub-milestones cannot be nested")
	}
	if parent.Status != models.MilestoneStatusInit {
		return nil, apperrors.StateConflict("only an untouched milestone can be split")
	}

	var project models.Project
	if err := s.db.Preload("Members").First(&project, "id = ?", parent.ProjectID).Error; err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project.State != models.ProjectStateContractDeployed {
		return nil, apperrors.StateConflict("sub-milestones require a deployed project")
	}

	actor := project.Member(actorID)
	if actor == nil || actor.ProjectRole != models.ProjectUserCP {
		return nil, apperrors.Authorization("only the contract personnel may add sub-milestones")
	}
	for _, input := range inputs {
		if project.Member(input.AssigneeID) == nil {
			return nil, apperrors.Validation("assignee is not a project member")
		}
	}

	var lastSeq int
	err := s.db.Model(&models.Milestone{}).
		Where("parent_id = ?", parent.ID).
		Select("COALESCE(MAX(sequence_number), 0)").
		Scan(&lastSeq).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence numbers: %w", err)
	}

	var created []models.Milestone
	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		for i, input := range inputs {
			assigneeID := input.AssigneeID
			milestone := models.Milestone{
				ProjectID:      project.ID,
				ParentID:       &parent.ID,
				Kind:           models.MilestoneKindSubMilestone,
				Name:           input.Name,
				Description:    input.Description,
				Status:         models.MilestoneStatusInit,
				SequenceNumber: lastSeq + i + 1,
				AssigneeID:     &assigneeID,
				StartDate:      input.StartDate,
				EndDate:        input.EndDate,
				FundAllocation: input.FundAllocation,
				MilestoneFund:  input.FundAllocation,
				Revisions:      input.Revisions,
			}
			if err := tx.Create(&milestone).Error; err != nil {
				return fmt.Errorf("failed to create sub-milestone: %w", err)
			}

			for _, p := range input.Penalties {
				penalty := models.PenaltyBreach{
					MilestoneID: milestone.ID,
					ValueIn:     p.ValueIn,
					Penalty:     p.Penalty,
					TimePeriod:  p.TimePeriod,
				}
				if err := tx.Create(&penalty).Error; err != nil {
					return fmt.Errorf("failed to create penalty: %w", err)
				}
			}

			fund := models.Fund{
				ProjectID:   project.ID,
				MilestoneID: milestone.ID,
				FundType:    models.MilestoneKindSubMilestone,
				Amount:      milestone.FundAllocation,
			}
			if err := tx.Create(&fund).Error; err != nil {
				return fmt.Errorf("failed to create fund row: %w", err)
			}

			created = append(created, milestone)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	intents := make([]NotificationIntent, 0, len(created))
	for _, m := range created {
		intents = append(intents, NotificationIntent{
			RecipientID: *m.AssigneeID,
			Category:    CategoryMilestone,
			Pattern:     "SUB_MILESTONE_ASSIGNED",
			Message:     fmt.Sprintf("You were assigned %q on project %q", m.Name, project.Name),
			Metadata: models.JSONB{
				"project_id":   project.ID.String(),
				"milestone_id": m.ID.String(),
			},
		})
	}
	s.notifications.Dispatch(ctx, intents...)

	return created, nil
}

// ProjectSummary is one row of the project list.
type ProjectSummary struct {
	ID                uuid.UUID              `json:"id"`
	Name              string                 `json:"name"`
	State             models.ProjectState    `json:"state"`
	Status            models.ProjectStatus   `json:"status"`
	Currency          models.CurrencyType    `json:"currency"`
	TotalProjectFund  string                 `json:"total_project_fund"`
	HCSTopicID        string                 `json:"hcs_topic_id,omitempty"`
	Role              models.ProjectUserRole `json:"role"`
	Counterparty      string                 `json:"counterparty,omitempty"`
	MilestonesDone    int                    `json:"milestones_done"`
	MilestonesTotal   int                    `json:"milestones_total"`
	UpcomingMilestone *models.Milestone      `json:"upcoming_milestone,omitempty"`
	BurnRate          BurnRate               `json:"burn_rate"`
}

// ListProjects returns the caller's projects with list-view aggregates.
func (s *ProjectService) ListProjects(userID uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	var memberships []models.ProjectMember
	err := s.db.Where("user_id = ?", userID).Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}

	projectIDs := make([]uuid.UUID, 0, len(memberships))
	roleByProject := make(map[uuid.UUID]models.ProjectUserRole, len(memberships))
	for _, m := range memberships {
		projectIDs = append(projectIDs, m.ProjectID)
		roleByProject[m.ProjectID] = m.ProjectRole
	}
	if len(projectIDs) == 0 {
		result := utils.CreatePaginationResult([]ProjectSummary{}, 0, params)
		return &result, nil
	}

	query := s.db.Model(&models.Project{}).Where("id IN ?", projectIDs)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Search != "" {
		query = query.Where("name ILIKE ?", "%"+params.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}

	var projects []models.Project
	err = utils.ApplyPagination(query.Order("updated_at DESC"), params).
		Preload("Members.User").
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Where("parent_id IS NULL").Order("sequence_number ASC")
		}).
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}

	now := time.Now()
	summaries := make([]ProjectSummary, 0, len(projects))
	for i := range projects {
		p := &projects[i]
		summary := ProjectSummary{
			ID:               p.ID,
			Name:             p.Name,
			State:            p.State,
			Status:           p.Status,
			Currency:         p.Currency,
			TotalProjectFund: p.TotalProjectFund,
			HCSTopicID:       p.HCSTopicID,
			Role:             roleByProject[p.ID],
			MilestonesTotal:  len(p.Milestones),
			BurnRate:         ProjectBurnRate(p.Status, p.Milestones, now),
		}
		for _, m := range p.Milestones {
			if m.Status == models.MilestoneStatusCompleted {
				summary.MilestonesDone++
			}
		}
		summary.UpcomingMilestone = UpcomingMilestone(p.Milestones)
		if other := s.counterparty(p, userID); other != nil {
			summary.Counterparty = other.User.Name
		}
		summaries = append(summaries, summary)
	}

	result := utils.CreatePaginationResult(summaries, total, params)
	return &result, nil
}

// GetProject returns the full project view for a member, including drafts
// flattened in while the project is still unassigned.
func (s *ProjectService) GetProject(userID, projectID uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := s.db.Preload("Members.User").
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Where("parent_id IS NULL").Order("sequence_number ASC")
		}).
		Preload("Milestones.Children").
		Preload("Milestones.Penalties").
		Preload("Funds").
		Preload("Documents").
		Preload("Drafts").
		Preload("Escrow").
		First(&project, "id = ?", projectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("project")
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	if project.Member(userID) == nil {
		return nil, apperrors.Authorization("not a member of this project")
	}
	return &project, nil
}

// GetProjectWithDrafts restores the caller's unsaved edits: the saved
// project view with the caller's section drafts flattened over it.
func (s *ProjectService) GetProjectWithDrafts(userID, projectID uuid.UUID) (models.JSONB, error) {
	project, err := s.GetProject(userID, projectID)
	if err != nil {
		return nil, err
	}
	drafts, err := s.ListDrafts(userID, projectID)
	if err != nil {
		return nil, err
	}
	return FlattenDrafts(project, drafts)
}

// FlattenDrafts overlays section drafts onto the saved project view. Drafts
// come newest first; on a key collision the newest draft wins.
func FlattenDrafts(project *models.Project, drafts []models.ProjectDraft) (models.JSONB, error) {
	raw, err := json.Marshal(project)
	if err != nil {
		return nil, fmt.Errorf("failed to encode project view: %w", err)
	}
	view := models.JSONB{}
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("failed to decode project view: %w", err)
	}

	for i := len(drafts) - 1; i >= 0; i-- {
		for key, value := range drafts[i].Payload {
			view[key] = value
		}
	}
	return view, nil
}

// ListDrafts returns the caller's drafts on a project.
func (s *ProjectService) ListDrafts(userID, projectID uuid.UUID) ([]models.ProjectDraft, error) {
	var drafts []models.ProjectDraft
	err := s.db.Where("project_id = ? AND created_by = ?", projectID, userID).
		Order("updated_at DESC").
		Find(&drafts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load drafts: %w", err)
	}
	return drafts, nil
}

// DeleteDraft discards one of the caller's drafts.
func (s *ProjectService) DeleteDraft(userID, draftID uuid.UUID) error {
	result := s.db.Where("id = ? AND created_by = ?", draftID, userID).Delete(&models.ProjectDraft{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete draft: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("draft")
	}
	return nil
}
