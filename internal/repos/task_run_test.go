package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/corefin/metrichub/internal/types"
)

func TestClaimNextPendingOrderAndExclusivity(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRunRepo(db, testLogger(t))
	ctx := context.Background()

	first := &types.TaskRun{
		ID:              uuid.New(),
		MetricVersionID: uuid.New(),
		TaskType:        types.TaskTypeCompute,
		CreatedAt:       time.Now().Add(-time.Minute),
	}
	second := &types.TaskRun{
		ID:              uuid.New(),
		MetricVersionID: uuid.New(),
		TaskType:        types.TaskTypeCompute,
	}
	if _, err := repo.Create(ctx, nil, first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := repo.Create(ctx, nil, second); err != nil {
		t.Fatalf("create second: %v", err)
	}

	claimed, err := repo.ClaimNextPending(ctx, nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("claimed = %+v, want oldest pending %s", claimed, first.ID)
	}
	if claimed.Status != types.TaskStatusRunning || claimed.StartedAt == nil || claimed.LockedAt == nil {
		t.Fatalf("claimed task not marked running: %+v", claimed)
	}

	// First task is running now, so only the second is claimable.
	claimed2, err := repo.ClaimNextPending(ctx, nil)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed2 == nil || claimed2.ID != second.ID {
		t.Fatalf("second claim = %+v, want %s", claimed2, second.ID)
	}

	claimed3, err := repo.ClaimNextPending(ctx, nil)
	if err != nil {
		t.Fatalf("empty claim: %v", err)
	}
	if claimed3 != nil {
		t.Fatalf("claimed from empty queue: %+v", claimed3)
	}
}

func TestFinishIfRunningGuardsCancel(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRunRepo(db, testLogger(t))
	ctx := context.Background()

	task := &types.TaskRun{
		ID:              uuid.New(),
		MetricVersionID: uuid.New(),
		TaskType:        types.TaskTypeCompute,
	}
	if _, err := repo.Create(ctx, nil, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.ClaimNextPending(ctx, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}

	canceled, err := repo.Cancel(ctx, nil, task.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !canceled {
		t.Fatalf("running task not canceled")
	}

	// The worker finishing afterwards must not overwrite the cancel.
	applied, err := repo.FinishIfRunning(ctx, nil, task.ID, map[string]interface{}{
		"status": types.TaskStatusCompleted,
	})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if applied {
		t.Fatalf("terminal update applied over canceled status")
	}
	got, err := repo.GetByID(ctx, nil, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.TaskStatusCanceled {
		t.Fatalf("status = %s, want canceled", got.Status)
	}
}

func TestCancelTerminalTaskIsNoop(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRunRepo(db, testLogger(t))
	ctx := context.Background()

	task := &types.TaskRun{
		ID:              uuid.New(),
		MetricVersionID: uuid.New(),
		TaskType:        types.TaskTypeCompute,
	}
	if _, err := repo.Create(ctx, nil, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.ClaimNextPending(ctx, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := repo.FinishIfRunning(ctx, nil, task.ID, map[string]interface{}{
		"status": types.TaskStatusCompleted,
	}); err != nil {
		t.Fatalf("finish: %v", err)
	}

	canceled, err := repo.Cancel(ctx, nil, task.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled {
		t.Fatalf("completed task reported canceled")
	}
}
