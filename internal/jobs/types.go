package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/alertledger/internal/domain"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeExtractMessage represents a single-message extraction job.
	JobTypeExtractMessage JobType = "extract_message"
)

// DefaultMaxRetries is applied when a published job does not set MaxRetries.
const DefaultMaxRetries = 3

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// Result summarises what the pipeline did with a message.
type Result struct {
	Accepted            bool   `json:"accepted"`
	Reason              string `json:"reason,omitempty"`
	TransactionID       string `json:"transaction_id,omitempty"`
	Inserted            bool   `json:"inserted"`
	Strategy            string `json:"strategy,omitempty"`
	SubscriptionOutcome string `json:"subscription_outcome,omitempty"`
}

// ExtractMessageJob represents a job to run one incoming message through the pipeline.
type ExtractMessageJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Message is the alert to extract.
	Message domain.IncomingMessage `json:"message"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Result is set once the job completes.
	Result *Result `json:"result,omitempty"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ExtractMessageJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ExtractMessageJob) GetType() JobType {
	return JobTypeExtractMessage
}

// GetStatus implements the Job interface.
func (j *ExtractMessageJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishExtractMessage publishes a message extraction job.
	PublishExtractMessage(ctx context.Context, job *ExtractMessageJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ExtractMessageJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ExtractMessageJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ExtractMessageJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Sender filters jobs by message sender.
	Sender string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
