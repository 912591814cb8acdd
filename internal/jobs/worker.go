package jobs

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/services"
	"github.com/corefin/metrichub/internal/utils"
)

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      utils.WorkerConfig
	repo     repos.TaskRunRepo
	registry *Registry
	notify   services.TaskNotifier
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, cfg utils.WorkerConfig, repo repos.TaskRunRepo, registry *Registry, notify services.TaskNotifier) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "TaskWorker"),
		cfg:      cfg,
		repo:     repo,
		registry: registry,
		notify:   notify,
	}
}

// Start launches the worker pool. Each worker polls for pending tasks;
// the claim is exclusive, so pool size only affects throughput, never
// execution semantics.
func (w *Worker) Start(ctx context.Context) {
	workers := w.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	w.log.Info("starting task worker pool", "workers", workers, "poll_interval_ms", w.cfg.PollIntervalMillis)
	for i := 0; i < workers; i++ {
		workerID := i + 1
		go w.runLoop(ctx, workerID)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	interval := time.Duration(w.cfg.PollIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			task, err := w.repo.ClaimNextPending(ctx, nil)
			if err != nil {
				w.log.Warn("claim failed", "worker_id", workerID, "error", err)
				continue
			}
			if task == nil {
				continue
			}
			if w.notify != nil {
				w.notify.TaskStarted(ctx, task)
			}

			tc := NewContext(ctx, w.db, task, w.repo, w.notify)
			h, ok := w.registry.Get(task.TaskType)
			if !ok {
				w.log.Warn("no handler registered", "worker_id", workerID, "task_type", task.TaskType, "task_id", task.ID)
				tc.Fail(&missingHandlerError{TaskType: task.TaskType})
				continue
			}

			// A panicking handler must not take the worker down with it.
			func() {
				defer func() {
					if r := recover(); r != nil {
						w.log.Error("task handler panic", "task_id", task.ID, "task_type", task.TaskType, "panic", r)
						tc.Fail(&panicError{Val: r})
					}
				}()
				if err := h.Run(tc); err != nil {
					tc.Fail(err)
				}
			}()
		}
	}
}

type missingHandlerError struct{ TaskType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for task_type=" + e.TaskType
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
