// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/handlers"
	"github.com/javajoker/escrowflow-backend/internal/hedera"
	"github.com/javajoker/escrowflow-backend/internal/middleware"
	"github.com/javajoker/escrowflow-backend/internal/services"
	"github.com/javajoker/escrowflow-backend/internal/utils"
)

// Dependencies carries the external connections main wires up before the
// HTTP layer starts.
type Dependencies struct {
	Gateway   hedera.Gateway
	Publisher services.AMQPPublisher
	Redis     *redis.Client
}

func Initialize(db *gorm.DB, cfg *config.Config, deps Dependencies) *gin.Engine {
	// Initialize services
	notificationService := services.NewNotificationService(db, cfg, deps.Publisher)
	milestoneService := services.NewMilestoneService(db, cfg, notificationService)
	projectService := services.NewProjectService(db, cfg, notificationService)
	escrowService := services.NewEscrowService(db, cfg, deps.Gateway, notificationService)
	reconcilerService := services.NewReconcilerService(db, cfg, deps.Gateway, deps.Redis, milestoneService, notificationService)
	fundService := services.NewFundService(db, cfg)
	disputeService := services.NewDisputeService(db, cfg, notificationService, milestoneService)
	storageService, _ := services.NewStorageService(db, cfg)
	authService := services.NewAuthService(db, cfg)
	userService := services.NewUserService(db)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	projectHandler := handlers.NewProjectHandler(projectService)
	milestoneHandler := handlers.NewMilestoneHandler(milestoneService)
	escrowHandler := handlers.NewEscrowHandler(escrowService, reconcilerService, fundService)
	disputeHandler := handlers.NewDisputeHandler(disputeService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	documentHandler := handlers.NewDocumentHandler(storageService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS([]string{cfg.Frontend.BaseURL}))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", middleware.AuthRequired(), authHandler.Me)
		}

		// User routes
		users := v1.Group("/users")
		users.Use(middleware.AuthRequired())
		{
			users.GET("/profile", userHandler.GetProfile)
			users.PUT("/profile", userHandler.UpdateProfile)
			users.GET("/providers", userHandler.SearchProviders)
		}

		// Project routes
		projects := v1.Group("/projects")
		projects.Use(middleware.AuthRequired())
		{
			projects.GET("", projectHandler.ListProjects)
			projects.POST("", projectHandler.CreateProject)
			projects.GET("/:id", projectHandler.GetProject)
			projects.GET("/:id/draft-view", projectHandler.GetDraftView)
			projects.PUT("/:id", projectHandler.SaveProject)
			projects.DELETE("/:id", projectHandler.DeleteProject)
			projects.POST("/:id/accept", projectHandler.AcceptProject)
			projects.PUT("/:id/permissions", projectHandler.UpdatePermissions)
			projects.GET("/:id/drafts", projectHandler.ListDrafts)

			projects.POST("/:id/escrow/deploy", middleware.ChainRateLimit(), escrowHandler.Deploy)
			projects.POST("/:id/notes", middleware.ChainRateLimit(), escrowHandler.SubmitNote)
			projects.GET("/:id/funds", escrowHandler.GetFundSummary)
			projects.GET("/:id/transactions", escrowHandler.ListTransactions)

			projects.POST("/:id/documents", middleware.UploadRateLimit(), documentHandler.UploadDocument)
		}

		// Chain reconciliation, called by the frontend after every
		// contract execution it signs.
		v1.POST("/project/transaction", middleware.AuthRequired(), middleware.ChainRateLimit(), escrowHandler.ReconcileTransaction)

		// Draft routes
		drafts := v1.Group("/drafts")
		drafts.Use(middleware.AuthRequired())
		{
			drafts.DELETE("/:id", projectHandler.DeleteDraft)
		}

		// Milestone routes
		milestones := v1.Group("/milestones")
		milestones.Use(middleware.AuthRequired())
		{
			milestones.GET("/:id", milestoneHandler.GetMilestone)
			milestones.PUT("/:id/status", milestoneHandler.UpdateStatus)
			milestones.POST("/:id/hold", milestoneHandler.Hold)
			milestones.POST("/:id/deliverables", milestoneHandler.SubmitDeliverables)
			milestones.POST("/:id/sub-milestones", projectHandler.AddSubMilestones)
		}

		// Dispute routes
		disputes := v1.Group("/disputes")
		disputes.Use(middleware.AuthRequired())
		{
			disputes.GET("", disputeHandler.ListDisputes)
			disputes.POST("", disputeHandler.RaiseDispute)
			disputes.GET("/:id", disputeHandler.GetDispute)
			disputes.POST("/:id/answer", disputeHandler.AnswerRuling)
			disputes.POST("/:id/close", disputeHandler.CloseDispute)
			disputes.POST("/:id/escalate", disputeHandler.EscalateDispute)
		}

		// Notification routes
		notifications := v1.Group("/notifications")
		notifications.Use(middleware.AuthRequired())
		{
			notifications.GET("", notificationHandler.ListNotifications)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.PUT("/read-all", notificationHandler.MarkAllRead)
			notifications.PUT("/:id/read", notificationHandler.MarkRead)
		}

		// Document routes
		documents := v1.Group("/documents")
		documents.Use(middleware.AuthRequired())
		{
			documents.GET("/:id/download", documentHandler.GetDownloadURL)
			documents.DELETE("/:id", documentHandler.DeleteDocument)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.PUT("/disputes/:id/ruling", disputeHandler.RuleDispute)
			admin.GET("/chain-errors", escrowHandler.ListChainErrors)
		}
	}

	return r
}
