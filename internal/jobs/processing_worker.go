package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/textmill/textmill/internal/domain"
)

const (
	// MaxRetries is the maximum number of attempts for a failed job
	MaxRetries = 3

	// claimBatchSize bounds how many jobs a single poll claims
	claimBatchSize = 10
)

// JobQueue defines the interface for processing job persistence
type JobQueue interface {
	// ClaimPending atomically claims up to limit pending jobs
	ClaimPending(ctx context.Context, limit int) ([]*domain.ProcessingJob, error)

	// UpdateStatus updates the status of a processing job
	UpdateStatus(ctx context.Context, id string, status domain.ProcessingJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, id string) error

	// RequeueForRetry returns a claimed job to pending with the
	// failure reason recorded
	RequeueForRetry(ctx context.Context, id, errMsg string) error
}

// DocumentProcessor defines the interface for running the document pipeline
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, documentID string) error
}

// ProcessingWorker drives document processing jobs through the pipeline
type ProcessingWorker struct {
	queue     JobQueue
	processor DocumentProcessor
}

// NewProcessingWorker creates a new ProcessingWorker instance
func NewProcessingWorker(queue JobQueue, processor DocumentProcessor) *ProcessingWorker {
	return &ProcessingWorker{
		queue:     queue,
		processor: processor,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *ProcessingWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.queue.ClaimPending(ctx, claimBatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("Processing %d pending document jobs", len(jobs))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			log.Printf("Error processing job %s: %v", job.ID, err)
		}
	}

	return nil
}

func (w *ProcessingWorker) processJob(ctx context.Context, job *domain.ProcessingJob) error {
	log.Printf("Processing job %s for document %s", job.ID, job.DocumentID)

	if err := w.processor.ProcessDocument(ctx, job.DocumentID); err != nil {
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.queue.UpdateStatus(ctx, job.ID, domain.ProcessingJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	log.Printf("Job %s completed successfully", job.ID)
	return nil
}

// handleJobFailure handles a failed job with retry logic
func (w *ProcessingWorker) handleJobFailure(ctx context.Context, job *domain.ProcessingJob, jobErr error) error {
	log.Printf("Job %s failed: %v", job.ID, jobErr)

	if err := w.queue.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		log.Printf("Job %s exceeded max retries (%d), marking as failed", job.ID, MaxRetries)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.queue.UpdateStatus(ctx, job.ID, domain.ProcessingJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	log.Printf("Job %s will be retried (attempt %d/%d)", job.ID, job.Retries+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.queue.RequeueForRetry(ctx, job.ID, errMsg); err != nil {
		return fmt.Errorf("failed to requeue job for retry: %w", err)
	}

	return nil
}
