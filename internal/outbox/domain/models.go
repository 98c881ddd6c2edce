package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusOK         JobStatus = "ok"
	JobStatusFail       JobStatus = "fail"
)

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// MaxAttempts is the retry budget before a job dead-letters.
const MaxAttempts = 5

// Payload keys. A channel with its required key absent is skipped, not
// failed.
const (
	PayloadPhone        = "phone"
	PayloadSMSText      = "sms_text"
	PayloadEmailTo      = "email_to"
	PayloadEmailSubject = "email_subject"
	PayloadEmailHTML    = "email_html"
)

// Job is one leasable unit of multi-channel delivery work.
type Job struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	InviteID snowflake.ID `gorm:"column:invite_id" json:"invite_id"`
	StoreUID string       `gorm:"column:store_uid" json:"store_uid"`

	Channels datatypes.JSONSlice[string] `gorm:"column:channels" json:"channels"`
	Payload  datatypes.JSONMap           `gorm:"column:payload" json:"payload"`

	Status        JobStatus `gorm:"column:status" json:"status"`
	Attempts      int       `gorm:"column:attempts" json:"attempts"`
	NextAttemptAt time.Time `gorm:"column:next_attempt_at" json:"next_attempt_at"`
	LastError     *string   `gorm:"column:last_error" json:"last_error,omitempty"`
	DLQ           bool      `gorm:"column:dlq" json:"dlq"`

	LeaseOwner     *string    `gorm:"column:lease_owner" json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time `gorm:"column:lease_expires_at" json:"lease_expires_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Job) TableName() string { return "outbox_jobs" }

// PayloadString reads a string payload field, empty when absent.
func (j *Job) PayloadString(key string) string {
	if j == nil || j.Payload == nil {
		return ""
	}
	value, _ := j.Payload[key].(string)
	return value
}

// CompleteRequest is the state applied when a worker finishes a
// processing pass for a job.
type CompleteRequest struct {
	Status        JobStatus
	Attempts      int
	NextAttemptAt *time.Time
	LastError     *string
	DLQ           bool
}

// Store is the leasing primitive. LeasePendingJobs returns each claimable
// job to exactly one caller; CompleteJob is the only other mutation path
// and never re-opens a lease.
type Store interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) error
	FindByID(ctx context.Context, id snowflake.ID) (*Job, error)
	LeasePendingJobs(ctx context.Context, workerID string, limit int) ([]Job, error)
	CompleteJob(ctx context.Context, jobID snowflake.ID, req CompleteRequest) error
}
