package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/services"
)

type MetricHandler struct {
	metrics services.MetricService
}

func NewMetricHandler(metrics services.MetricService) *MetricHandler {
	return &MetricHandler{metrics: metrics}
}

// GET /api/metrics
func (h *MetricHandler) List(c *gin.Context) {
	filter := repos.MetricFilter{
		Keyword:     c.Query("keyword"),
		SubjectArea: c.Query("subject_area"),
		Type:        c.Query("type"),
		Sensitivity: c.Query("sensitivity"),
		Limit:       queryInt(c, "limit", 100),
		Offset:      queryInt(c, "offset", 0),
	}
	metrics, err := h.metrics.List(c.Request.Context(), filter)
	if err != nil {
		RespondServiceError(c, "metric_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"metrics": metrics})
}

// POST /api/metrics
func (h *MetricHandler) Create(c *gin.Context) {
	var input services.MetricCreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	metric, err := h.metrics.Create(c.Request.Context(), input)
	if err != nil {
		RespondServiceError(c, "metric_create_failed", err)
		return
	}
	RespondCreated(c, gin.H{"metric": metric})
}

// GET /api/metrics/:id
func (h *MetricHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_metric_id", err)
		return
	}
	metric, err := h.metrics.Get(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, "metric_not_found", err)
		return
	}
	RespondOK(c, gin.H{"metric": metric})
}

// PATCH /api/metrics/:id
func (h *MetricHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_metric_id", err)
		return
	}
	var input services.MetricUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	metric, err := h.metrics.Update(c.Request.Context(), id, input)
	if err != nil {
		RespondServiceError(c, "metric_update_failed", err)
		return
	}
	RespondOK(c, gin.H{"metric": metric})
}

// DELETE /api/metrics/:id
func (h *MetricHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_metric_id", err)
		return
	}
	if err := h.metrics.Delete(c.Request.Context(), id); err != nil {
		RespondServiceError(c, "metric_delete_failed", err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

// POST /api/metrics/:id/publish
func (h *MetricHandler) RequestPublish(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_metric_id", err)
		return
	}
	n, err := h.metrics.RequestPublish(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, "metric_publish_failed", err)
		return
	}
	RespondOK(c, gin.H{"versions_moved": n})
}

// GET /api/metrics/:id/versions
func (h *MetricHandler) ListVersions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_metric_id", err)
		return
	}
	versions, err := h.metrics.ListVersions(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, "version_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"versions": versions})
}

// POST /api/metrics/:id/versions
func (h *MetricHandler) CreateVersion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_metric_id", err)
		return
	}
	var input services.VersionCreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	version, err := h.metrics.CreateVersion(c.Request.Context(), id, input)
	if err != nil {
		RespondServiceError(c, "version_create_failed", err)
		return
	}
	RespondCreated(c, gin.H{"version": version})
}

// PATCH /api/versions/:id
func (h *MetricHandler) UpdateVersion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}
	var input services.VersionUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	version, err := h.metrics.UpdateVersion(c.Request.Context(), id, input)
	if err != nil {
		RespondServiceError(c, "version_update_failed", err)
		return
	}
	RespondOK(c, gin.H{"version": version})
}

// GET /api/dashboard/summary
func (h *MetricHandler) Summary(c *gin.Context) {
	summary, err := h.metrics.Summary(c.Request.Context())
	if err != nil {
		RespondServiceError(c, "summary_failed", err)
		return
	}
	RespondOK(c, gin.H{"summary": summary})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
