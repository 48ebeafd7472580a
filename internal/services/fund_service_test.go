// internal/services/fund_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/escrowflow-backend/internal/models"
)

func day(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func plannedMilestone(status models.MilestoneStatus, start time.Time, days int) models.Milestone {
	return models.Milestone{
		Status:    status,
		StartDate: start,
		EndDate:   start.Add(day(days)),
	}
}

func TestProjectBurnRateZeroOutsideActiveStatuses(t *testing.T) {
	now := time.Now()
	milestones := []models.Milestone{plannedMilestone(models.MilestoneStatusCompleted, now, 10)}

	for _, status := range []models.ProjectStatus{models.ProjectStatusUnassigned, models.ProjectStatusAssigned} {
		rate := ProjectBurnRate(status, milestones, now)
		assert.Equal(t, zeroBurnRate, rate, string(status))
	}
}

func TestProjectBurnRateZeroWithoutPlannedTime(t *testing.T) {
	now := time.Now()
	rate := ProjectBurnRate(models.ProjectStatusInProgress, nil, now)
	assert.Equal(t, zeroBurnRate, rate)

	// A milestone whose window is a single instant contributes no time.
	m := plannedMilestone(models.MilestoneStatusCompleted, now, 0)
	rate = ProjectBurnRate(models.ProjectStatusInProgress, []models.Milestone{m}, now)
	assert.Equal(t, zeroBurnRate, rate)
}

func TestProjectBurnRateCountsCompletedMilestones(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(day(30))

	done := plannedMilestone(models.MilestoneStatusCompleted, start, 10)
	actualEnd := start.Add(day(5))
	done.ActualEndDate = &actualEnd

	open := plannedMilestone(models.MilestoneStatusInProgress, start.Add(day(10)), 10)

	rate := ProjectBurnRate(models.ProjectStatusInProgress, []models.Milestone{done, open}, now)
	// finished in 5 of 10 planned days, over a 20 day project plan
	assert.Equal(t, "25.00", rate.ActualPercentage)
	assert.Equal(t, "50.00", rate.PredictedPercentage)
}

func TestProjectBurnRateUsesNowWhenActualEndMissing(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(day(10))

	done := plannedMilestone(models.MilestoneStatusCompleted, start, 10)

	rate := ProjectBurnRate(models.ProjectStatusComplete, []models.Milestone{done}, now)
	assert.Equal(t, "100.00", rate.ActualPercentage)
	assert.Equal(t, "100.00", rate.PredictedPercentage)
}

func TestMilestoneBurnRateLeafSentinels(t *testing.T) {
	now := time.Now()

	completed := plannedMilestone(models.MilestoneStatusCompleted, now, 10)
	rate := MilestoneBurnRate(&completed, now)
	assert.Equal(t, BurnRate{ActualPercentage: "100", PredictedPercentage: "100"}, rate)

	for _, status := range []models.MilestoneStatus{
		models.MilestoneStatusInit,
		models.MilestoneStatusHold,
		models.MilestoneStatusStop,
		models.MilestoneStatusForceClosed,
	} {
		m := plannedMilestone(status, now, 10)
		assert.Equal(t, zeroBurnRate, MilestoneBurnRate(&m, now), string(status))
	}
}

func TestMilestoneBurnRateActiveLeaf(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := plannedMilestone(models.MilestoneStatusInProgress, start, 10)

	// halfway through the planned window, both percentages carry the same
	// deviation from plan
	now := start.Add(day(5))
	rate := MilestoneBurnRate(&m, now)
	assert.Equal(t, "50.00", rate.ActualPercentage)
	assert.Equal(t, "50.00", rate.PredictedPercentage)

	// overrunning the window grows the deviation past zero again
	now = start.Add(day(15))
	rate = MilestoneBurnRate(&m, now)
	assert.Equal(t, "50.00", rate.ActualPercentage)

	// exactly on plan
	now = start.Add(day(10))
	rate = MilestoneBurnRate(&m, now)
	assert.Equal(t, "0.00", rate.ActualPercentage)
}

func TestMilestoneBurnRateZeroWindowLeaf(t *testing.T) {
	now := time.Now()
	m := plannedMilestone(models.MilestoneStatusInProgress, now, 0)
	assert.Equal(t, zeroBurnRate, MilestoneBurnRate(&m, now))
}

func TestMilestoneBurnRateAggregatesChildren(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(day(4))

	childDone := plannedMilestone(models.MilestoneStatusCompleted, start, 10)
	actualEnd := start.Add(day(8))
	childDone.ActualEndDate = &actualEnd

	childOpen := plannedMilestone(models.MilestoneStatusInProgress, start, 10)

	parent := plannedMilestone(models.MilestoneStatusInProgress, start, 20)
	parent.Children = []models.Milestone{childDone, childOpen}

	rate := MilestoneBurnRate(&parent, now)
	// 8 + 4 elapsed days against 20 planned days
	assert.Equal(t, "60.00", rate.ActualPercentage)
	assert.Equal(t, "100.00", rate.PredictedPercentage)
}

func TestUpcomingMilestone(t *testing.T) {
	start := time.Now()
	milestones := []models.Milestone{
		plannedMilestone(models.MilestoneStatusCompleted, start, 10),
		plannedMilestone(models.MilestoneStatusInProgress, start, 10),
		plannedMilestone(models.MilestoneStatusInit, start, 10),
		plannedMilestone(models.MilestoneStatusInit, start, 10),
	}

	next := UpcomingMilestone(milestones)
	require.NotNil(t, next)
	assert.Same(t, &milestones[2], next)

	// a second in-progress milestone wins over the first untouched one
	milestones[2].Status = models.MilestoneStatusInProgress
	next = UpcomingMilestone(milestones)
	require.NotNil(t, next)
	assert.Same(t, &milestones[2], next)

	// nothing in progress or untouched
	all := []models.Milestone{
		plannedMilestone(models.MilestoneStatusCompleted, start, 10),
		plannedMilestone(models.MilestoneStatusForceClosed, start, 10),
	}
	assert.Nil(t, UpcomingMilestone(all))
}
