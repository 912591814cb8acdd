package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/services"
)

type CaliberHandler struct {
	calibers services.CaliberService
}

func NewCaliberHandler(calibers services.CaliberService) *CaliberHandler {
	return &CaliberHandler{calibers: calibers}
}

// GET /api/calibers
func (h *CaliberHandler) List(c *gin.Context) {
	filter := repos.CaliberFilter{
		Keyword:  c.Query("keyword"),
		Category: c.Query("category"),
		Limit:    queryInt(c, "limit", 100),
		Offset:   queryInt(c, "offset", 0),
	}
	calibers, err := h.calibers.List(c.Request.Context(), filter)
	if err != nil {
		RespondServiceError(c, "caliber_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"calibers": calibers})
}

// POST /api/calibers
func (h *CaliberHandler) Create(c *gin.Context) {
	var input services.CaliberCreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	caliber, err := h.calibers.Create(c.Request.Context(), input)
	if err != nil {
		RespondServiceError(c, "caliber_create_failed", err)
		return
	}
	RespondCreated(c, gin.H{"caliber": caliber})
}

// GET /api/calibers/:id
func (h *CaliberHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_caliber_id", err)
		return
	}
	caliber, err := h.calibers.Get(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, "caliber_not_found", err)
		return
	}
	RespondOK(c, gin.H{"caliber": caliber})
}

// PATCH /api/calibers/:id
func (h *CaliberHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_caliber_id", err)
		return
	}
	var input services.CaliberUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	caliber, err := h.calibers.Update(c.Request.Context(), id, input)
	if err != nil {
		RespondServiceError(c, "caliber_update_failed", err)
		return
	}
	RespondOK(c, gin.H{"caliber": caliber})
}

// DELETE /api/calibers/:id
func (h *CaliberHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_caliber_id", err)
		return
	}
	if err := h.calibers.Delete(c.Request.Context(), id); err != nil {
		RespondServiceError(c, "caliber_delete_failed", err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}
