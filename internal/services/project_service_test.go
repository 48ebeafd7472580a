// internal/services/project_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/escrowflow-backend/internal/models"
)

func TestFlattenDraftsOverlaysSections(t *testing.T) {
	project := &models.Project{
		Name:             "saved name",
		Description:      "saved description",
		TotalProjectFund: "1000",
	}
	drafts := []models.ProjectDraft{
		{
			DraftType: models.DraftTypeProjectDetails,
			Payload:   models.JSONB{"name": "draft name"},
		},
		{
			DraftType: models.DraftTypeMilestones,
			Payload:   models.JSONB{"milestones": []interface{}{map[string]interface{}{"name": "draft milestone"}}},
		},
	}

	view, err := FlattenDrafts(project, drafts)
	require.NoError(t, err)

	assert.Equal(t, "draft name", view["name"])
	assert.Equal(t, "saved description", view["description"])
	assert.Equal(t, "1000", view["total_project_fund"])
	assert.Contains(t, view, "milestones")
}

func TestFlattenDraftsNewestWins(t *testing.T) {
	project := &models.Project{Name: "saved name"}
	// ListDrafts orders newest first.
	drafts := []models.ProjectDraft{
		{DraftType: models.DraftTypeProjectDetails, Payload: models.JSONB{"name": "newest"}},
		{DraftType: models.DraftTypeProjectDetails, Payload: models.JSONB{"name": "older"}},
	}

	view, err := FlattenDrafts(project, drafts)
	require.NoError(t, err)
	assert.Equal(t, "newest", view["name"])
}

func TestFlattenDraftsNoDrafts(t *testing.T) {
	project := &models.Project{Name: "saved name"}

	view, err := FlattenDrafts(project, nil)
	require.NoError(t, err)
	assert.Equal(t, "saved name", view["name"])
}
