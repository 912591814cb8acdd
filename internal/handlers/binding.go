package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/corefin/metrichub/internal/services"
)

type BindingHandler struct {
	bindings services.BindingService
}

func NewBindingHandler(bindings services.BindingService) *BindingHandler {
	return &BindingHandler{bindings: bindings}
}

// GET /api/versions/:id/bindings
func (h *BindingHandler) ListByVersion(c *gin.Context) {
	versionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}
	bindings, err := h.bindings.ListByVersion(c.Request.Context(), versionID)
	if err != nil {
		RespondServiceError(c, "binding_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"bindings": bindings})
}

// POST /api/versions/:id/bindings
func (h *BindingHandler) Create(c *gin.Context) {
	versionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}
	var input services.BindingCreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	binding, err := h.bindings.Create(c.Request.Context(), versionID, input)
	if err != nil {
		RespondServiceError(c, "binding_create_failed", err)
		return
	}
	RespondCreated(c, gin.H{"binding": binding})
}

// PATCH /api/bindings/:id
func (h *BindingHandler) Update(c *gin.Context) {
	bindingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_binding_id", err)
		return
	}
	var input services.BindingUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	binding, err := h.bindings.Update(c.Request.Context(), bindingID, input)
	if err != nil {
		RespondServiceError(c, "binding_update_failed", err)
		return
	}
	RespondOK(c, gin.H{"binding": binding})
}

// DELETE /api/bindings/:id
func (h *BindingHandler) Delete(c *gin.Context) {
	bindingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_binding_id", err)
		return
	}
	if err := h.bindings.Delete(c.Request.Context(), bindingID); err != nil {
		RespondServiceError(c, "binding_delete_failed", err)
		return
	}
	RespondOK(c, gin.H{"deleted": bindingID})
}
