// Package signup orchestrates registration attempts: it records the
// registration, queues its task, and drives the privileged run through the
// execution middleware when the task comes due.
package signup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seyioni/enrollgate/internal/dispatch"
	"github.com/seyioni/enrollgate/internal/exec"
	"github.com/seyioni/enrollgate/internal/mandate"
	"github.com/seyioni/enrollgate/internal/registration"
	"github.com/seyioni/enrollgate/internal/runner"
)

// Registrations is the write-and-read surface the service needs. The
// SQLite store satisfies it.
type Registrations interface {
	Create(ctx context.Context, r *registration.Registration) error
	CreateJob(ctx context.Context, j *registration.ScheduledJob) error
	SetOutcome(ctx context.Context, ref, userID string, status registration.Status, finishedAt time.Time) error
	Resolve(ctx context.Context, ref, userID string) (*registration.Registration, error)
	ListByUser(ctx context.Context, userID string) ([]registration.Registration, error)
}

// Runner reaches the external browser-automation upstream.
type Runner interface {
	Run(ctx context.Context, req runner.Request) (json.RawMessage, error)
}

// Request is one parent-submitted signup.
type Request struct {
	MandateID        string          `json:"mandate_id"`
	Provider         string          `json:"provider"`
	ProgramID        string          `json:"program_id"`
	ChildRef         string          `json:"child_ref"`
	ProgramCostCents int64           `json:"program_cost_cents"`
	ServiceFeeCents  int64           `json:"service_fee_cents"`
	RunAt            *time.Time      `json:"run_at,omitempty"`
	Args             json.RawMessage `json:"args,omitempty"`
}

type Service struct {
	registrations Registrations
	queue         *dispatch.Queue
	middleware    *exec.Middleware
	runner        Runner
	now           func() time.Time
}

func NewService(registrations Registrations, queue *dispatch.Queue, middleware *exec.Middleware, run Runner) *Service {
	return &Service{
		registrations: registrations,
		queue:         queue,
		middleware:    middleware,
		runner:        run,
		now:           time.Now,
	}
}

// Submit records a new registration and queues its task. A future run_at
// also creates a scheduled job row; the queue holds the task back until it
// is due.
func (s *Service) Submit(ctx context.Context, userID string, req Request) (*registration.Registration, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if req.MandateID == "" || req.Provider == "" || req.ProgramID == "" || req.ChildRef == "" {
		return nil, fmt.Errorf("mandate_id, provider, program_id and child_ref are required")
	}

	reg := &registration.Registration{
		ID:               uuid.New().String(),
		UserID:           userID,
		MandateID:        req.MandateID,
		Provider:         req.Provider,
		ProgramID:        req.ProgramID,
		ChildRef:         req.ChildRef,
		Status:           registration.StatusPending,
		ProgramCostCents: req.ProgramCostCents,
		ServiceFeeCents:  req.ServiceFeeCents,
		CreatedAt:        s.now().UTC(),
	}

	if err := s.registrations.Create(ctx, reg); err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}

	task := dispatch.Task{
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		MandateID:      reg.MandateID,
		Provider:       reg.Provider,
		Args:           req.Args,
	}

	if req.RunAt != nil && req.RunAt.After(s.now()) {
		task.RunAt = req.RunAt.UTC()
		job := &registration.ScheduledJob{
			ID:             uuid.New().String(),
			UserID:         reg.UserID,
			RegistrationID: reg.ID,
			RunAt:          task.RunAt,
			Status:         registration.JobScheduled,
		}
		if err := s.registrations.CreateJob(ctx, job); err != nil {
			return nil, fmt.Errorf("create scheduled job: %w", err)
		}
	}

	if _, err := s.queue.Enqueue(task); err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}

	return reg, nil
}

// RunTask executes one due signup task through the execution middleware and
// records the terminal outcome on the registration. It satisfies
// dispatch.RunFunc.
func (s *Service) RunTask(ctx context.Context, task dispatch.Task) error {
	call := exec.Call{
		CorrelationID: task.RegistrationID,
		MandateID:     task.MandateID,
		UserID:        task.UserID,
		Action:        "provider." + task.Provider + ".register",
	}

	_, runErr := s.middleware.Execute(ctx, call, task.Args, func(ctx context.Context) (any, error) {
		return s.runner.Run(ctx, runner.Request{
			Action:         "register",
			Provider:       task.Provider,
			RegistrationID: task.RegistrationID,
			Args:           task.Args,
		})
	}, mandate.ScopeRegister)

	status := registration.StatusSuccess
	if runErr != nil {
		status = registration.StatusFailed
	}

	if err := s.registrations.SetOutcome(ctx, task.RegistrationID, task.UserID, status, s.now()); err != nil {
		log.Error().Err(err).Str("registration_id", task.RegistrationID).
			Str("status", string(status)).Msg("failed to record signup outcome")
		if runErr == nil {
			return fmt.Errorf("record outcome: %w", err)
		}
	}

	return runErr
}

// Get resolves one registration for its owner.
func (s *Service) Get(ctx context.Context, ref, userID string) (*registration.Registration, error) {
	return s.registrations.Resolve(ctx, ref, userID)
}

// List returns the caller's registrations, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]registration.Registration, error) {
	return s.registrations.ListByUser(ctx, userID)
}
