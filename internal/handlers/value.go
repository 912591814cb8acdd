package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/services"
)

type ValueHandler struct {
	values services.ValueService
}

func NewValueHandler(values services.ValueService) *ValueHandler {
	return &ValueHandler{values: values}
}

// GET /api/bindings/:id/values
func (h *ValueHandler) ListByBinding(c *gin.Context) {
	bindingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_binding_id", err)
		return
	}
	filter := repos.MetricValueFilter{
		CompanyCode:   c.Query("company_code"),
		DimensionsKey: c.Query("dimensions_key"),
	}
	if from, ok := queryDate(c, "period_from"); ok {
		filter.PeriodFrom = &from
	}
	if to, ok := queryDate(c, "period_to"); ok {
		filter.PeriodTo = &to
	}
	rows, err := h.values.ListByBinding(c.Request.Context(), bindingID, filter)
	if err != nil {
		RespondServiceError(c, "value_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"values": rows})
}

// POST /api/sources/values
func (h *ValueHandler) IngestSources(c *gin.Context) {
	var input struct {
		Rows []services.SourceValueInput `json:"rows"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	n, err := h.values.IngestSources(c.Request.Context(), input.Rows)
	if err != nil {
		RespondServiceError(c, "source_ingest_failed", err)
		return
	}
	RespondOK(c, gin.H{"ingested": n})
}

func queryDate(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
