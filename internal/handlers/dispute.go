// internal/handlers/dispute.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/escrowflow-backend/internal/i18n"
	"github.com/javajoker/escrowflow-backend/internal/services"
	"github.com/javajoker/escrowflow-backend/internal/utils"
)

type DisputeHandler struct {
	disputeService *services.DisputeService
}

func NewDisputeHandler(disputeService *services.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputeService: disputeService}
}

// POST /disputes
func (h *DisputeHandler) RaiseDispute(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.RaiseDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	dispute, err := h.disputeService.Raise(c.Request.Context(), userID, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, dispute)
}

// PUT /admin/disputes/:id/ruling
func (h *DisputeHandler) RuleDispute(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	disputeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req services.RuleDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	dispute, err := h.disputeService.Rule(c.Request.Context(), userID, disputeID, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, dispute)
}

// POST /disputes/:id/answer
func (h *DisputeHandler) AnswerRuling(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	disputeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Agrees *bool `json:"agrees" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	dispute, err := h.disputeService.Answer(c.Request.Context(), userID, disputeID, *req.Agrees)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, dispute)
}

// POST /disputes/:id/close
func (h *DisputeHandler) CloseDispute(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	disputeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	dispute, err := h.disputeService.Close(c.Request.Context(), userID, disputeID, req.Comment)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, dispute)
}

// POST /disputes/:id/escalate
func (h *DisputeHandler) EscalateDispute(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	disputeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	dispute, err := h.disputeService.Escalate(c.Request.Context(), userID, disputeID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, dispute)
}

// GET /disputes
func (h *DisputeHandler) ListDisputes(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	result, err := h.disputeService.ListDisputes(userID, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// GET /disputes/:id
func (h *DisputeHandler) GetDispute(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	disputeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	dispute, err := h.disputeService.GetDispute(userID, disputeID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, dispute)
}
