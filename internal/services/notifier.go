package services

import (
	"context"

	redisbus "github.com/corefin/metrichub/internal/clients/redis"
	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/types"
)

// TaskNotifier publishes task lifecycle transitions. Delivery is best
// effort; a publish failure never fails the transition itself.
type TaskNotifier interface {
	TaskEnqueued(ctx context.Context, task *types.TaskRun)
	TaskStarted(ctx context.Context, task *types.TaskRun)
	TaskFinished(ctx context.Context, task *types.TaskRun)
}

type redisTaskNotifier struct {
	bus redisbus.TaskBus
	log *logger.Logger
}

func NewRedisTaskNotifier(bus redisbus.TaskBus, baseLog *logger.Logger) TaskNotifier {
	return &redisTaskNotifier{bus: bus, log: baseLog.With("service", "TaskNotifier")}
}

func (n *redisTaskNotifier) TaskEnqueued(ctx context.Context, task *types.TaskRun) {
	n.publish(ctx, task)
}

func (n *redisTaskNotifier) TaskStarted(ctx context.Context, task *types.TaskRun) {
	n.publish(ctx, task)
}

func (n *redisTaskNotifier) TaskFinished(ctx context.Context, task *types.TaskRun) {
	n.publish(ctx, task)
}

func (n *redisTaskNotifier) publish(ctx context.Context, task *types.TaskRun) {
	if task == nil {
		return
	}
	err := n.bus.Publish(ctx, redisbus.TaskEvent{
		TaskID:          task.ID.String(),
		MetricVersionID: task.MetricVersionID.String(),
		TaskType:        task.TaskType,
		Status:          task.Status,
	})
	if err != nil {
		n.log.Warn("task event publish failed", "task_id", task.ID, "error", err)
	}
}

type nopTaskNotifier struct{}

// NewNopTaskNotifier is used when REDIS_ADDR is unset.
func NewNopTaskNotifier() TaskNotifier { return nopTaskNotifier{} }

func (nopTaskNotifier) TaskEnqueued(context.Context, *types.TaskRun) {}
func (nopTaskNotifier) TaskStarted(context.Context, *types.TaskRun)  {}
func (nopTaskNotifier) TaskFinished(context.Context, *types.TaskRun) {}
