package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/logger"
	errs "github.com/corefin/metrichub/internal/pkg/errors"
	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/types"
)

type TaskEnqueueInput struct {
	MetricVersionID uuid.UUID      `json:"metric_version_id"`
	TaskType        string         `json:"task_type,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
}

type TaskService interface {
	Enqueue(ctx context.Context, input TaskEnqueueInput) (*types.TaskRun, error)
	Get(ctx context.Context, id uuid.UUID) (*types.TaskRun, error)
	List(ctx context.Context, filter repos.TaskRunFilter) ([]*types.TaskRun, error)
	Cancel(ctx context.Context, id uuid.UUID) (*types.TaskRun, error)
}

type taskService struct {
	db       *gorm.DB
	log      *logger.Logger
	versions repos.MetricVersionRepo
	tasks    repos.TaskRunRepo
	notifier TaskNotifier
}

func NewTaskService(db *gorm.DB, baseLog *logger.Logger, versions repos.MetricVersionRepo, tasks repos.TaskRunRepo, notifier TaskNotifier) TaskService {
	return &taskService{
		db:       db,
		log:      baseLog.With("service", "TaskService"),
		versions: versions,
		tasks:    tasks,
		notifier: notifier,
	}
}

// Enqueue validates the version and inserts a pending task. The worker
// pool picks it up; enqueue never executes anything inline.
func (s *taskService) Enqueue(ctx context.Context, input TaskEnqueueInput) (*types.TaskRun, error) {
	version, err := s.versions.GetByID(ctx, nil, input.MetricVersionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, fmt.Errorf("metric version %s: %w", input.MetricVersionID, errs.ErrNotFound)
	}

	taskType := input.TaskType
	if taskType == "" {
		taskType = types.TaskTypeCompute
	}
	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payload["metric_version_id"] = version.ID.String()
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	task := &types.TaskRun{
		ID:              uuid.New(),
		MetricVersionID: version.ID,
		TaskType:        taskType,
		Status:          types.TaskStatusPending,
		Payload:         datatypes.JSON(raw),
	}
	created, err := s.tasks.Create(ctx, nil, task)
	if err != nil {
		return nil, err
	}
	s.notifier.TaskEnqueued(ctx, created)
	s.log.Info("task enqueued", "task_id", created.ID, "metric_version_id", version.ID, "task_type", taskType)
	return created, nil
}

func (s *taskService) Get(ctx context.Context, id uuid.UUID) (*types.TaskRun, error) {
	task, err := s.tasks.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", id, errs.ErrNotFound)
	}
	return task, nil
}

func (s *taskService) List(ctx context.Context, filter repos.TaskRunFilter) ([]*types.TaskRun, error) {
	return s.tasks.List(ctx, nil, filter)
}

// Cancel marks a pending or running task canceled. A running task keeps
// executing until its next cell boundary; it will not overwrite the
// canceled status when it finishes.
func (s *taskService) Cancel(ctx context.Context, id uuid.UUID) (*types.TaskRun, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	canceled, err := s.tasks.Cancel(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if !canceled {
		return nil, fmt.Errorf("task %s already %s: %w", id, task.Status, errs.ErrConflict)
	}
	task, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifier.TaskFinished(ctx, task)
	s.log.Info("task canceled", "task_id", id)
	return task, nil
}
