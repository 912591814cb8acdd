package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/services"
)

type TaskHandler struct {
	tasks services.TaskService
}

func NewTaskHandler(tasks services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// POST /api/tasks
func (h *TaskHandler) Enqueue(c *gin.Context) {
	var input services.TaskEnqueueInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	task, err := h.tasks.Enqueue(c.Request.Context(), input)
	if err != nil {
		RespondServiceError(c, "task_enqueue_failed", err)
		return
	}
	RespondCreated(c, gin.H{"task": task})
}

// GET /api/tasks
func (h *TaskHandler) List(c *gin.Context) {
	filter := repos.TaskRunFilter{
		Status: c.Query("status"),
		Limit:  queryInt(c, "limit", 100),
		Offset: queryInt(c, "offset", 0),
	}
	if raw := c.Query("metric_version_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
			return
		}
		filter.MetricVersionID = id
	}
	tasks, err := h.tasks.List(c.Request.Context(), filter)
	if err != nil {
		RespondServiceError(c, "task_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"tasks": tasks})
}

// GET /api/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	task, err := h.tasks.Get(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, "task_not_found", err)
		return
	}
	RespondOK(c, gin.H{"task": task})
}

// POST /api/tasks/:id/cancel
func (h *TaskHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	task, err := h.tasks.Cancel(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, "task_cancel_failed", err)
		return
	}
	RespondOK(c, gin.H{"task": task})
}
