// internal/models/project_test.go
package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectMemberLookup(t *testing.T) {
	purchaserID := uuid.New()
	providerID := uuid.New()
	project := &Project{
		Members: []ProjectMember{
			{UserID: purchaserID, ProjectRole: ProjectUserPurchaser},
			{UserID: providerID, ProjectRole: ProjectUserCP},
		},
	}

	member := project.Member(purchaserID)
	require.NotNil(t, member)
	assert.Equal(t, ProjectUserPurchaser, member.ProjectRole)

	// A stranger gets nothing back, which is what read authorization
	// checks key on.
	assert.Nil(t, project.Member(uuid.New()))
}

func TestProjectMemberWithRole(t *testing.T) {
	providerID := uuid.New()
	project := &Project{
		Members: []ProjectMember{
			{UserID: providerID, ProjectRole: ProjectUserCP},
		},
	}

	member := project.MemberWithRole(ProjectUserCP)
	require.NotNil(t, member)
	assert.Equal(t, providerID, member.UserID)

	assert.Nil(t, project.MemberWithRole(ProjectUserPurchaser))
}
