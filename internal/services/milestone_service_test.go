// internal/services/milestone_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/javajoker/escrowflow-backend/internal/apperrors"
	"github.com/javajoker/escrowflow-backend/internal/models"
)

func TestTransitionAllowed(t *testing.T) {
	allowed := []struct {
		from, to models.MilestoneStatus
	}{
		{models.MilestoneStatusInit, models.MilestoneStatusInProgress},
		{models.MilestoneStatusInit, models.MilestoneStatusCompleted},
		{models.MilestoneStatusInit, models.MilestoneStatusStop},
		{models.MilestoneStatusInit, models.MilestoneStatusForceClosed},
		{models.MilestoneStatusInProgress, models.MilestoneStatusInReview},
		{models.MilestoneStatusInProgress, models.MilestoneStatusCompleted},
		{models.MilestoneStatusInReview, models.MilestoneStatusRework},
		{models.MilestoneStatusInReview, models.MilestoneStatusCompleted},
		{models.MilestoneStatusRework, models.MilestoneStatusInProgress},
		{models.MilestoneStatusRework, models.MilestoneStatusCompleted},
		{models.MilestoneStatusStop, models.MilestoneStatusInit},
	}
	for _, tt := range allowed {
		assert.True(t, TransitionAllowed(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	denied := []struct {
		from, to models.MilestoneStatus
	}{
		{models.MilestoneStatusInit, models.MilestoneStatusInReview},
		{models.MilestoneStatusInit, models.MilestoneStatusRework},
		{models.MilestoneStatusInProgress, models.MilestoneStatusInit},
		{models.MilestoneStatusInProgress, models.MilestoneStatusStop},
		{models.MilestoneStatusInReview, models.MilestoneStatusInProgress},
		{models.MilestoneStatusStop, models.MilestoneStatusCompleted},
		{models.MilestoneStatusCompleted, models.MilestoneStatusInProgress},
		{models.MilestoneStatusForceClosed, models.MilestoneStatusInit},
	}
	for _, tt := range denied {
		assert.False(t, TransitionAllowed(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTransitionAllowedTerminalStates(t *testing.T) {
	targets := []models.MilestoneStatus{
		models.MilestoneStatusInit,
		models.MilestoneStatusInProgress,
		models.MilestoneStatusInReview,
		models.MilestoneStatusRework,
		models.MilestoneStatusCompleted,
		models.MilestoneStatusStop,
		models.MilestoneStatusForceClosed,
	}
	for _, to := range targets {
		assert.False(t, TransitionAllowed(models.MilestoneStatusCompleted, to))
		assert.False(t, TransitionAllowed(models.MilestoneStatusForceClosed, to))
	}
}

func TestRoleMaySetSubMilestone(t *testing.T) {
	kind := models.MilestoneKindSubMilestone

	assert.True(t, RoleMaySet(models.ProjectUserIP, kind, models.MilestoneStatusInProgress))
	assert.True(t, RoleMaySet(models.ProjectUserIP, kind, models.MilestoneStatusInReview))
	assert.False(t, RoleMaySet(models.ProjectUserIP, kind, models.MilestoneStatusCompleted))
	assert.False(t, RoleMaySet(models.ProjectUserIP, kind, models.MilestoneStatusRework))
	assert.False(t, RoleMaySet(models.ProjectUserIP, kind, models.MilestoneStatusForceClosed))

	assert.True(t, RoleMaySet(models.ProjectUserCP, kind, models.MilestoneStatusInit))
	assert.True(t, RoleMaySet(models.ProjectUserCP, kind, models.MilestoneStatusCompleted))
	assert.True(t, RoleMaySet(models.ProjectUserCP, kind, models.MilestoneStatusStop))
	assert.True(t, RoleMaySet(models.ProjectUserCP, kind, models.MilestoneStatusRework))
	assert.True(t, RoleMaySet(models.ProjectUserCP, kind, models.MilestoneStatusForceClosed))
	assert.False(t, RoleMaySet(models.ProjectUserCP, kind, models.MilestoneStatusInReview))

	assert.False(t, RoleMaySet(models.ProjectUserPurchaser, kind, models.MilestoneStatusCompleted))
}

func TestRoleMaySetTopMilestone(t *testing.T) {
	kind := models.MilestoneKindMilestone

	assert.True(t, RoleMaySet(models.ProjectUserCP, kind, models.MilestoneStatusInProgress))
	assert.True(t, RoleMaySet(models.ProjectUserCP, kind, models.MilestoneStatusInReview))
	assert.False(t, RoleMaySet(models.ProjectUserCP, kind, models.MilestoneStatusCompleted))

	assert.True(t, RoleMaySet(models.ProjectUserPurchaser, kind, models.MilestoneStatusInit))
	assert.True(t, RoleMaySet(models.ProjectUserPurchaser, kind, models.MilestoneStatusCompleted))
	assert.True(t, RoleMaySet(models.ProjectUserPurchaser, kind, models.MilestoneStatusRework))
	assert.True(t, RoleMaySet(models.ProjectUserPurchaser, kind, models.MilestoneStatusStop))
	assert.True(t, RoleMaySet(models.ProjectUserPurchaser, kind, models.MilestoneStatusForceClosed))
	assert.False(t, RoleMaySet(models.ProjectUserPurchaser, kind, models.MilestoneStatusInProgress))

	assert.False(t, RoleMaySet(models.ProjectUserIP, kind, models.MilestoneStatusInProgress))
}

func TestHoldBlocksTransitions(t *testing.T) {
	// A held milestone cannot move through the ordinary state machine; it
	// only comes back through an explicit release.
	targets := []models.MilestoneStatus{
		models.MilestoneStatusInit,
		models.MilestoneStatusInProgress,
		models.MilestoneStatusInReview,
		models.MilestoneStatusRework,
		models.MilestoneStatusCompleted,
		models.MilestoneStatusStop,
		models.MilestoneStatusForceClosed,
	}
	for _, to := range targets {
		assert.False(t, TransitionAllowed(models.MilestoneStatusHold, to), "HOLD -> %s", to)
	}
}

func TestReleaseTarget(t *testing.T) {
	prior := models.MilestoneStatusInProgress
	m := &models.Milestone{
		Status:           models.MilestoneStatusHold,
		StatusBeforeHold: &prior,
	}
	assert.Equal(t, models.MilestoneStatusInProgress, ReleaseTarget(m))

	// Rows held before the resume status existed have nothing recorded.
	m = &models.Milestone{Status: models.MilestoneStatusHold}
	assert.Equal(t, models.MilestoneStatusInit, ReleaseTarget(m))

	hold := models.MilestoneStatusHold
	m = &models.Milestone{Status: models.MilestoneStatusHold, StatusBeforeHold: &hold}
	assert.Equal(t, models.MilestoneStatusInit, ReleaseTarget(m))
}

func TestReworkBudgetExhausted(t *testing.T) {
	s := &MilestoneService{}
	m := &models.Milestone{Revisions: 2, RevisionsCounter: 2}

	err := s.applyStatus(nil, m, models.MilestoneStatusRework, "needs changes", nil)
	assert.True(t, apperrors.IsKind(err, apperrors.KindStateConflict))
}
