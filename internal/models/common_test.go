// internal/models/common_test.go
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMilestoneStatusFromOrdinal(t *testing.T) {
	want := []MilestoneStatus{
		MilestoneStatusInit,
		MilestoneStatusFunded,
		MilestoneStatusInProgress,
		MilestoneStatusInReview,
		MilestoneStatusRework,
		MilestoneStatusCompleted,
		MilestoneStatusStop,
		MilestoneStatusForceClosed,
	}
	for i, status := range want {
		got, ok := MilestoneStatusFromOrdinal(uint8(i))
		require.True(t, ok, "ordinal %d", i)
		assert.Equal(t, status, got, "ordinal %d", i)
	}

	_, ok := MilestoneStatusFromOrdinal(8)
	assert.False(t, ok)
	_, ok = MilestoneStatusFromOrdinal(255)
	assert.False(t, ok)
}

func TestContractOrdinals(t *testing.T) {
	assert.Equal(t, uint8(0), FundingTypeProject.Ordinal())
	assert.Equal(t, uint8(1), FundingTypeMilestone.Ordinal())

	assert.Equal(t, uint8(0), FundTransferAutomatic.Ordinal())
	assert.Equal(t, uint8(1), FundTransferManual.Ordinal())

	assert.Equal(t, uint8(0), RoyaltyTypePrePayment.Ordinal())
	assert.Equal(t, uint8(1), RoyaltyTypePostKPI.Ordinal())
}

func TestMilestoneTerminal(t *testing.T) {
	m := &Milestone{Status: MilestoneStatusCompleted}
	assert.True(t, m.Terminal())

	m.Status = MilestoneStatusForceClosed
	assert.True(t, m.Terminal())

	m.Status = MilestoneStatusInProgress
	assert.False(t, m.Terminal())
}

func TestMilestoneStatusDisplayName(t *testing.T) {
	assert.Equal(t, "In Progress", MilestoneStatusInProgress.DisplayName())
	assert.Equal(t, "Force Closed", MilestoneStatusForceClosed.DisplayName())
	assert.Equal(t, "WHATEVER", MilestoneStatus("WHATEVER").DisplayName())
}
