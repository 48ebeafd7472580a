// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAdminAccessDenied      = "auth.admin_access_denied"

	// Projects
	KeyProjectCreated    = "project.created"
	KeyProjectUpdated    = "project.updated"
	KeyProjectDeleted    = "project.deleted"
	KeyProjectNotFound   = "project.not_found"
	KeyProjectAccepted   = "project.accepted"
	KeyProjectFrozen     = "project.frozen"
	KeyProjectNotEditor  = "project.not_editor"
	KeyProjectDeployed   = "project.deployed"
	KeyProjectDraftSaved = "project.draft_saved"

	// Milestones
	KeyMilestoneUpdated       = "milestone.updated"
	KeyMilestoneNotFound      = "milestone.not_found"
	KeyMilestoneBadTransition = "milestone.bad_transition"
	KeyMilestoneNoRevisions   = "milestone.no_revisions_left"
	KeyMilestoneSubTasksAdded = "milestone.sub_tasks_added"

	// Escrow / chain
	KeyEscrowDeployStarted = "escrow.deploy_started"
	KeyEscrowDeployFailed  = "escrow.deploy_failed"
	KeyChainLookupFailed   = "chain.lookup_failed"

	// Disputes
	KeyDisputeCreated  = "dispute.created"
	KeyDisputeUpdated  = "dispute.updated"
	KeyDisputeNotFound = "dispute.not_found"
	KeyDisputeClosed   = "dispute.closed"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// File Upload
	KeyFileUploadSuccess = "file.upload_success"
	KeyFileUploadFailed  = "file.upload_failed"

	// Notifications
	KeyNotificationSent = "notification.sent"
)
