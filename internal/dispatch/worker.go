package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunFunc executes one signup task end to end. The worker does not care how;
// the server wires in a closure that drives the execution middleware.
type RunFunc func(ctx context.Context, task Task) error

// Worker drains the queue, running due tasks one at a time. Task failures
// are logged and do not stop the worker; the registration's own status
// carries the outcome.
type Worker struct {
	queue *Queue
	run   RunFunc
	tick  time.Duration
}

func NewWorker(queue *Queue, run RunFunc) *Worker {
	return &Worker{
		queue: queue,
		run:   run,
		tick:  time.Second,
	}
}

// Start blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.queue.NotifyChannel():
			if !ok {
				return
			}
			w.drain(ctx)
		case <-ticker.C:
			// Scheduled tasks become due by time alone.
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for _, task := range w.queue.Due(time.Now()) {
		if err := w.run(ctx, task); err != nil {
			log.Error().Err(err).Str("task_id", task.ID).
				Str("registration_id", task.RegistrationID).Msg("signup task failed")
			continue
		}
		log.Info().Str("task_id", task.ID).
			Str("registration_id", task.RegistrationID).Msg("signup task completed")
	}
}
