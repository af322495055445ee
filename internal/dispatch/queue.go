// Package dispatch holds signup executions waiting to run and feeds them to
// a worker. Registrations submitted while a provider's enrollment window is
// closed sit here until their run time.
package dispatch

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Task is one signup execution waiting to run.
type Task struct {
	ID             string          `json:"id"`
	RegistrationID string          `json:"registration_id"`
	UserID         string          `json:"user_id"`
	MandateID      string          `json:"mandate_id"`
	Provider       string          `json:"provider"`
	Args           json.RawMessage `json:"args,omitempty"`
	RunAt          time.Time       `json:"run_at"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
}

// Queue is an in-memory task queue with a notification channel for workers.
type Queue struct {
	mu       sync.RWMutex
	pending  map[string]*Task
	notifyCh chan struct{}
	closed   bool
}

func NewQueue() *Queue {
	return &Queue{
		pending:  make(map[string]*Task),
		notifyCh: make(chan struct{}, 100),
	}
}

// Enqueue adds a task and wakes any waiting worker.
func (q *Queue) Enqueue(task Task) (string, error) {
	if task.RegistrationID == "" || task.UserID == "" {
		return "", fmt.Errorf("registration_id and user_id are required")
	}

	task.ID = uuid.New().String()
	task.EnqueuedAt = time.Now()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", fmt.Errorf("queue closed")
	}
	q.pending[task.ID] = &task
	q.mu.Unlock()

	q.notifyWatchers()

	log.Info().Str("task_id", task.ID).Str("registration_id", task.RegistrationID).
		Msg("signup task enqueued")

	return task.ID, nil
}

// Due returns tasks whose run time has passed, removing them from the queue.
func (q *Queue) Due(now time.Time) []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Task
	for id, task := range q.pending {
		if task.RunAt.After(now) {
			continue
		}
		due = append(due, *task)
		delete(q.pending, id)
	}

	return due
}

// Pending lists tasks still waiting, most useful for status endpoints.
func (q *Queue) Pending() []Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Task, 0, len(q.pending))
	for _, task := range q.pending {
		out = append(out, *task)
	}
	return out
}

// NotifyChannel wakes workers when new tasks arrive.
func (q *Queue) NotifyChannel() <-chan struct{} {
	return q.notifyCh
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notifyCh)
	return nil
}

func (q *Queue) notifyWatchers() {
	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
}
