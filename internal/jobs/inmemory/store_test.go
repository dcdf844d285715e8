package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/jobs"
)

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	job := &jobs.ExtractMessageJob{
		JobID:   "job-1",
		Message: domain.IncomingMessage{Sender: "HDFCBK", Body: "Rs.450 debited"},
		Status:  jobs.JobStatusPending,
		Result:  &jobs.Result{Accepted: true},
	}
	require.NoError(t, s.SaveJob(ctx, job))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "HDFCBK", got.Message.Sender)

	// Stored state is detached from both the saved and the returned value.
	job.Status = jobs.JobStatusFailed
	got.Result.Accepted = false
	again, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, again.Status)
	assert.True(t, again.Result.Accepted)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	assert.Error(t, s.SaveJob(ctx, &jobs.ExtractMessageJob{}))
	_, err := s.GetJob(ctx, "missing")
	assert.Error(t, err)
	assert.Error(t, s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, "boom"))
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, sender := range []string{"HDFCBK", "ICICIB", "HDFCBK", "HDFCBK"} {
		require.NoError(t, s.SaveJob(ctx, &jobs.ExtractMessageJob{
			JobID:     string(rune('a' + i)),
			Message:   domain.IncomingMessage{Sender: sender},
			Status:    jobs.JobStatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.UpdateJobStatus(ctx, "d", jobs.JobStatusFailed, "boom"))

	all, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].JobID)
	assert.Equal(t, "d", all[3].JobID)

	hdfc, err := s.ListJobs(ctx, jobs.JobFilter{Sender: "hdfcbk"})
	require.NoError(t, err)
	assert.Len(t, hdfc, 3)

	failed, err := s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Error)

	page, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].JobID)

	empty, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
