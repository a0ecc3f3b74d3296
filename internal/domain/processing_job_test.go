package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewProcessingJob(t *testing.T) {
	now := time.Now()
	job := NewProcessingJob("job1", "doc1", now)

	assert.Equal(t, "job1", job.ID)
	assert.Equal(t, "doc1", job.DocumentID)
	assert.Equal(t, ProcessingJobStatusPending, job.Status)
	assert.Equal(t, int32(0), job.Retries)
	assert.Equal(t, "", job.Error)
	assert.Equal(t, now, job.CreatedAt)
	assert.Nil(t, job.ProcessedAt)
}

func TestProcessingJobStatusConstants(t *testing.T) {
	tests := []struct {
		name     string
		status   ProcessingJobStatus
		expected string
	}{
		{"Pending", ProcessingJobStatusPending, "pending"},
		{"Processing", ProcessingJobStatusProcessing, "processing"},
		{"Completed", ProcessingJobStatusCompleted, "completed"},
		{"Failed", ProcessingJobStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestValidateProcessingJob(t *testing.T) {
	now := time.Now()

	t.Run("valid job", func(t *testing.T) {
		job := NewProcessingJob("job1", "doc1", now)
		assert.NoError(t, ValidateProcessingJob(job))
	})

	t.Run("nil job", func(t *testing.T) {
		assert.Error(t, ValidateProcessingJob(nil))
	})

	t.Run("missing document", func(t *testing.T) {
		job := NewProcessingJob("job1", "", now)
		assert.Error(t, ValidateProcessingJob(job))
	})

	t.Run("invalid status", func(t *testing.T) {
		job := NewProcessingJob("job1", "doc1", now)
		job.Status = ProcessingJobStatus("bogus")
		assert.Error(t, ValidateProcessingJob(job))
	})

	t.Run("negative retries", func(t *testing.T) {
		job := NewProcessingJob("job1", "doc1", now)
		job.Retries = -1
		assert.Error(t, ValidateProcessingJob(job))
	})
}
