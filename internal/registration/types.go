package registration

import (
	"time"
)

// Status of a signup execution.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Registration is one attempt to enroll a child in a provider program. Its
// id doubles as the execution id correlating audit events and the success
// fee charge.
type Registration struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	MandateID        string     `json:"mandate_id"`
	Provider         string     `json:"provider"`
	ProgramID        string     `json:"program_id"`
	ChildRef         string     `json:"child_ref"`
	Status           Status     `json:"status"`
	ProgramCostCents int64      `json:"program_cost_cents"`
	ServiceFeeCents  int64      `json:"service_fee_cents"`
	CreatedAt        time.Time  `json:"created_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// JobStatus of a scheduled signup job.
type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobCanceled  JobStatus = "canceled"
)

// ScheduledJob defers a registration until a provider's enrollment window
// opens.
type ScheduledJob struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	RegistrationID string    `json:"registration_id"`
	RunAt          time.Time `json:"run_at"`
	Status         JobStatus `json:"status"`
}
