package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/services"
	"github.com/corefin/metrichub/internal/types"
)

// Context is the execution handle for one claimed task run. Handlers
// never touch the task_run row directly; Fail and Succeed are the only
// sanctioned terminal transitions and both refuse to overwrite a task
// that was canceled while running.
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Task    *types.TaskRun
	Repo    repos.TaskRunRepo
	Notify  services.TaskNotifier
	payload map[string]any
}

// NewContext eagerly decodes the task payload so handlers read inputs
// via Payload()/PayloadUUID(). A malformed payload yields an empty map;
// handlers validate required fields themselves.
func NewContext(ctx context.Context, db *gorm.DB, task *types.TaskRun, repo repos.TaskRunRepo, notify services.TaskNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Task:   task,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Task == nil || len(c.Task.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Task.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *Context) PayloadString(key string) (string, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	return s, s != ""
}

// PayloadDate parses a payload field as a YYYY-MM-DD date.
func (c *Context) PayloadDate(key string) (time.Time, bool) {
	s, ok := c.PayloadString(key)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// PayloadStrings reads a payload field holding a JSON string array.
func (c *Context) PayloadStrings(key string) []string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s := strings.TrimSpace(fmt.Sprint(item))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Canceled re-reads the stored status; the executor polls this at cell
// boundaries so an external cancel takes effect mid-run.
func (c *Context) Canceled() bool {
	if c.Task == nil || c.Task.ID == uuid.Nil {
		return false
	}
	task, err := c.Repo.GetByID(c.Ctx, nil, c.Task.ID)
	if err != nil || task == nil {
		return false
	}
	return task.Status == types.TaskStatusCanceled
}

// Fail marks the run terminally failed. Failed tasks are never retried
// automatically; a new task must be enqueued.
func (c *Context) Fail(err error) {
	if c == nil || c.Task == nil || c.Task.ID == uuid.Nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	ok, uErr := c.Repo.FinishIfRunning(ctx, nil, c.Task.ID, map[string]interface{}{
		"status":      types.TaskStatusFailed,
		"error":       msg,
		"finished_at": now,
		"locked_at":   nil,
	})
	if uErr != nil || !ok {
		return
	}
	c.Task.Status = types.TaskStatusFailed
	c.Task.Error = msg
	c.Task.FinishedAt = &now
	c.Task.LockedAt = nil
	if c.Notify != nil {
		c.Notify.TaskFinished(ctx, c.Task)
	}
}

// Succeed marks the run completed and stores the result document.
func (c *Context) Succeed(result any) {
	if c == nil || c.Task == nil || c.Task.ID == uuid.Nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}
	ok, uErr := c.Repo.FinishIfRunning(ctx, nil, c.Task.ID, map[string]interface{}{
		"status":      types.TaskStatusCompleted,
		"error":       "",
		"result":      res,
		"finished_at": now,
		"locked_at":   nil,
	})
	if uErr != nil || !ok {
		return
	}
	c.Task.Status = types.TaskStatusCompleted
	c.Task.Error = ""
	c.Task.Result = res
	c.Task.FinishedAt = &now
	c.Task.LockedAt = nil
	if c.Notify != nil {
		c.Notify.TaskFinished(ctx, c.Task)
	}
}
