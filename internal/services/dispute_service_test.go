// internal/services/dispute_service_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/escrowflow-backend/internal/apperrors"
	"github.com/javajoker/escrowflow-backend/internal/models"
)

func openDispute() *models.Dispute {
	return &models.Dispute{
		BaseModel:  models.BaseModel{ID: uuid.New()},
		RaisedByID: uuid.New(),
		RaisedToID: uuid.New(),
		Status:     models.DisputeStatusInReview,
	}
}

func TestRuleFAQResolvesOutright(t *testing.T) {
	dispute := openDispute()
	req := &RuleDisputeRequest{
		ResolutionType: models.ResolutionTypeFAQ,
		Resolution:     "https://faq.example.com/payouts",
	}

	updates, err := ruleUpdates(dispute, req)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, updates["status"])
	assert.Equal(t, models.ResolutionTypeFAQ, updates["resolution_type"])
}

func TestRuleWrittenRequiresPartyFavour(t *testing.T) {
	dispute := openDispute()
	req := &RuleDisputeRequest{
		ResolutionType: models.ResolutionTypeWritten,
		Resolution:     "the provider delivers by friday",
	}

	_, err := ruleUpdates(dispute, req)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	stranger := uuid.New()
	req.InFavourOfID = &stranger
	_, err = ruleUpdates(dispute, req)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	req.InFavourOfID = &dispute.RaisedToID
	updates, err := ruleUpdates(dispute, req)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusInReview, updates["status"])
	assert.Equal(t, &dispute.RaisedToID, updates["in_favour_of_id"])
}

func TestRuleWrittenRejectsSecondRuling(t *testing.T) {
	dispute := openDispute()
	dispute.Resolution = "already ruled"
	req := &RuleDisputeRequest{
		ResolutionType: models.ResolutionTypeWritten,
		Resolution:     "a different ruling",
		InFavourOfID:   &dispute.RaisedByID,
	}

	_, err := ruleUpdates(dispute, req)
	assert.True(t, apperrors.IsKind(err, apperrors.KindStateConflict))
}

func TestRuleAfterEscalationRestartsAnswers(t *testing.T) {
	dispute := openDispute()
	dispute.Status = models.DisputeStatusLegalWay
	dispute.Resolution = "first attempt"
	req := &RuleDisputeRequest{
		ResolutionType: models.ResolutionTypeWritten,
		Resolution:     "second attempt",
		InFavourOfID:   &dispute.RaisedByID,
	}

	updates, err := ruleUpdates(dispute, req)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusInReview, updates["status"])
	assert.Contains(t, updates, "is_raised_by_agree")
	assert.Contains(t, updates, "is_raised_to_agree")
}

func TestAnswerFirstPartyDoesNotResolve(t *testing.T) {
	dispute := openDispute()
	agree := true
	dispute.IsMoAgree = &agree

	updates, resolved, err := answerUpdates(dispute, dispute.RaisedByID, true)
	require.NoError(t, err)
	assert.False(t, resolved)
	assert.Contains(t, updates, "is_raised_by_agree")
	assert.NotContains(t, updates, "status")
}

func TestAnswerSecondPartyResolves(t *testing.T) {
	dispute := openDispute()
	agree := true
	disagree := false
	dispute.IsMoAgree = &agree
	dispute.IsRaisedByAgree = &disagree

	// The second answer settles the dispute whichever way it goes.
	updates, resolved, err := answerUpdates(dispute, dispute.RaisedToID, true)
	require.NoError(t, err)
	assert.True(t, resolved)
	assert.Equal(t, models.DisputeStatusResolved, updates["status"])
}

func TestAnswerTwiceConflicts(t *testing.T) {
	dispute := openDispute()
	agree := true
	dispute.IsMoAgree = &agree
	dispute.IsRaisedByAgree = &agree

	_, _, err := answerUpdates(dispute, dispute.RaisedByID, false)
	assert.True(t, apperrors.IsKind(err, apperrors.KindStateConflict))
}
