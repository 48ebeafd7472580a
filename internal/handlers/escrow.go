// internal/handlers/escrow.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/escrowflow-backend/internal/i18n"
	"github.com/javajoker/escrowflow-backend/internal/services"
	"github.com/javajoker/escrowflow-backend/internal/utils"
)

// EscrowHandler serves the escrow deployment flow, project notes and the
// post-transaction reconciliation endpoint the frontend calls after every
// contract execution.
type EscrowHandler struct {
	escrowService     *services.EscrowService
	reconcilerService *services.ReconcilerService
	fundService       *services.FundService
}

func NewEscrowHandler(escrowService *services.EscrowService, reconcilerService *services.ReconcilerService, fundService *services.FundService) *EscrowHandler {
	return &EscrowHandler{
		escrowService:     escrowService,
		reconcilerService: reconcilerService,
		fundService:       fundService,
	}
}

// POST /projects/:id/escrow/deploy
func (h *EscrowHandler) Deploy(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	escrow, err := h.escrowService.Deploy(c.Request.Context(), userID, projectID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, escrow)
}

// POST /projects/:id/notes
func (h *EscrowHandler) SubmitNote(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Note string `json:"note" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	sequence, err := h.escrowService.SubmitNote(c.Request.Context(), userID, projectID, req.Note)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"sequence_number": sequence})
}

// POST /project/transaction
func (h *EscrowHandler) ReconcileTransaction(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	result, err := h.reconcilerService.Reconcile(c.Request.Context(), userID, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	if result == nil {
		// Duplicate submission, already processed.
		utils.SuccessResponse(c, gin.H{"processed": false})
		return
	}

	utils.SuccessResponse(c, gin.H{"processed": true, "status": result.Status})
}

// GET /projects/:id/funds
func (h *EscrowHandler) GetFundSummary(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	summary, err := h.fundService.GetFundSummary(userID, projectID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, summary)
}

// GET /projects/:id/transactions
func (h *EscrowHandler) ListTransactions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	result, err := h.fundService.ListTransactions(userID, projectID, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// GET /admin/chain-errors
func (h *EscrowHandler) ListChainErrors(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	result, err := h.reconcilerService.ListChainErrors(params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}
