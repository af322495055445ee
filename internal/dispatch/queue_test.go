package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEnqueueAndDue(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	id, err := q.Enqueue(Task{RegistrationID: "reg_1", UserID: "user_1", RunAt: time.Now().Add(-time.Minute)})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("expected task id")
	}

	due := q.Due(time.Now())
	if len(due) != 1 || due[0].RegistrationID != "reg_1" {
		t.Fatalf("expected one due task, got %v", due)
	}

	// Drained: not due again.
	if again := q.Due(time.Now()); len(again) != 0 {
		t.Errorf("expected empty queue, got %v", again)
	}
}

func TestFutureTasksNotDue(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	if _, err := q.Enqueue(Task{RegistrationID: "reg_1", UserID: "user_1", RunAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if due := q.Due(time.Now()); len(due) != 0 {
		t.Errorf("expected no due tasks, got %v", due)
	}
	if pending := q.Pending(); len(pending) != 1 {
		t.Errorf("expected one pending task, got %d", len(pending))
	}
}

func TestEnqueueValidation(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	if _, err := q.Enqueue(Task{UserID: "user_1"}); err == nil {
		t.Error("expected error for missing registration id")
	}
	if _, err := q.Enqueue(Task{RegistrationID: "reg_1"}); err == nil {
		t.Error("expected error for missing user id")
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q := NewQueue()
	q.Close()

	if _, err := q.Enqueue(Task{RegistrationID: "reg_1", UserID: "user_1"}); err == nil {
		t.Error("expected error enqueueing on closed queue")
	}
}

func TestWorkerRunsDueTasks(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	var mu sync.Mutex
	ran := make(map[string]bool)

	worker := NewWorker(q, func(ctx context.Context, task Task) error {
		mu.Lock()
		ran[task.RegistrationID] = true
		mu.Unlock()
		return nil
	})
	worker.tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	if _, err := q.Enqueue(Task{RegistrationID: "reg_now", UserID: "user_1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(Task{RegistrationID: "reg_soon", UserID: "user_1", RunAt: time.Now().Add(50 * time.Millisecond)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		done := ran["reg_now"] && ran["reg_soon"]
		mu.Unlock()
		if done {
			return
		}
		select {
		case <-deadline:
			mu.Lock()
			t.Fatalf("tasks not run: %v", ran)
			mu.Unlock()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
