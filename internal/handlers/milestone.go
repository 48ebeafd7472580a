// internal/handlers/milestone.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/escrowflow-backend/internal/i18n"
	"github.com/javajoker/escrowflow-backend/internal/services"
	"github.com/javajoker/escrowflow-backend/internal/utils"
)

type MilestoneHandler struct {
	milestoneService *services.MilestoneService
}

func NewMilestoneHandler(milestoneService *services.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{milestoneService: milestoneService}
}

// PUT /milestones/:id/status
func (h *MilestoneHandler) UpdateStatus(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	milestoneID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req services.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	milestone, err := h.milestoneService.Transition(c.Request.Context(), userID, milestoneID, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, milestone)
}

// POST /milestones/:id/hold
func (h *MilestoneHandler) Hold(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	milestoneID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	milestone, err := h.milestoneService.Hold(c.Request.Context(), userID, milestoneID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, milestone)
}

// POST /milestones/:id/deliverables
func (h *MilestoneHandler) SubmitDeliverables(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	milestoneID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Links []string `json:"links" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	milestone, err := h.milestoneService.SubmitDeliverables(c.Request.Context(), userID, milestoneID, req.Links)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, milestone)
}

// GET /milestones/:id
func (h *MilestoneHandler) GetMilestone(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	milestoneID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	milestone, err := h.milestoneService.GetMilestone(userID, milestoneID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, milestone)
}
