package models_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestJob_SetStatus_StampsTerminalTimes(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	j := &models.Job{Status: models.JobStatusAssigned}
	j.SetStatus(models.JobStatusCompleted, now)
	assert.Equal(t, models.JobStatusCompleted, j.Status)
	assert.Equal(t, &now, j.CompletedAt)
	assert.Nil(t, j.CancelledAt)

	j = &models.Job{Status: models.JobStatusNew}
	j.SetStatus(models.JobStatusCancelled, now)
	assert.Equal(t, &now, j.CancelledAt)
	assert.Nil(t, j.CompletedAt)

	j = &models.Job{Status: models.JobStatusNew}
	j.SetStatus(models.JobStatusInProgress, now)
	assert.Nil(t, j.CompletedAt)
	assert.Nil(t, j.CancelledAt)
}

func TestJobStatus_Valid(t *testing.T) {
	assert.True(t, models.JobStatusInReview.Valid())
	assert.False(t, models.JobStatus("archived").Valid())
}

func TestJobPriority_Rank(t *testing.T) {
	assert.True(t, models.PriorityCritical.Valid())
	assert.Greater(t, models.PriorityCritical.Rank(), models.PriorityHigh.Rank())
	assert.Greater(t, models.PriorityMedium.Rank(), models.PriorityLow.Rank())
	assert.False(t, models.JobPriority("urgent").Valid())
}
