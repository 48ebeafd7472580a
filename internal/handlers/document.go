// internal/handlers/document.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/escrowflow-backend/internal/i18n"
	"github.com/javajoker/escrowflow-backend/internal/services"
	"github.com/javajoker/escrowflow-backend/internal/utils"
)

type DocumentHandler struct {
	storageService *services.StorageService
}

func NewDocumentHandler(storageService *services.StorageService) *DocumentHandler {
	return &DocumentHandler{storageService: storageService}
}

// POST /projects/:id/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), err.Error())
		return
	}
	defer file.Close()

	category := c.PostForm("category")
	if category == "" {
		category = services.DocCategoryProject
	}

	var milestoneID *uuid.UUID
	if raw := c.PostForm("milestone_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "milestone_id"), nil)
			return
		}
		milestoneID = &id
	}

	document, err := h.storageService.UploadDocument(userID, projectID, milestoneID, category, file, header)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, document)
}

// GET /documents/:id/download
func (h *DocumentHandler) GetDownloadURL(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	documentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	url, err := h.storageService.DownloadURL(userID, documentID, 15*time.Minute)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"download_url": url})
}

// DELETE /documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	documentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.storageService.DeleteDocument(userID, documentID); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"deleted": true})
}
