package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/novylist/backend/internal/config"
)

func TestTaskTypeArchiveCall_Constant(t *testing.T) {
	if TaskTypeArchiveCall != "ai:archive_call" {
		t.Errorf("TaskTypeArchiveCall = %q, expected %q", TaskTypeArchiveCall, "ai:archive_call")
	}
}

func TestSyncQueue_New(t *testing.T) {
	queue := NewSyncQueue()
	if queue == nil {
		t.Fatal("NewSyncQueue should not return nil")
	}
	if queue.IsAsync() {
		t.Error("SyncQueue.IsAsync() should return false")
	}
	if err := queue.Close(); err != nil {
		t.Errorf("SyncQueue.Close() should return nil, got %v", err)
	}
}

func TestSyncQueue_EnqueueWithoutProcessor(t *testing.T) {
	queue := NewSyncQueue()

	// A queue with no processor drops the task without failing the caller.
	err := queue.Enqueue(&ArchiveTask{UserID: "1"})
	if err != nil {
		t.Errorf("Enqueue without processor should not error, got %v", err)
	}
}

func TestSyncQueue_ProcessesTask(t *testing.T) {
	queue := NewSyncQueue()

	var mu sync.Mutex
	var got *ArchiveTask
	done := make(chan struct{})

	queue.SetProcessor(func(_ context.Context, task *ArchiveTask) error {
		mu.Lock()
		got = task
		mu.Unlock()
		close(done)
		return nil
	})

	sent := &ArchiveTask{
		UserID:      "42",
		Tier:        config.TierStandard,
		FeatureType: config.FeatureWritingContinuation,
		Model:       "gpt-3.5-turbo",
		TotalCost:   0.00175,
		CalledAt:    time.Now().UTC(),
	}
	if err := queue.Enqueue(sent); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processor was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.UserID != "42" || got.FeatureType != config.FeatureWritingContinuation {
		t.Errorf("processed task = %+v", got)
	}
}

func TestNewWorker_DisabledRedis(t *testing.T) {
	w := NewWorker(&config.RedisConfig{Enabled: false})
	if w != nil {
		t.Error("NewWorker should return nil when Redis is disabled")
	}
}
