package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/corefin/metrichub/internal/services"
)

type DimensionHandler struct {
	dims services.DimensionService
}

func NewDimensionHandler(dims services.DimensionService) *DimensionHandler {
	return &DimensionHandler{dims: dims}
}

// GET /api/dimensions/companies
func (h *DimensionHandler) ListCompanies(c *gin.Context) {
	companies, err := h.dims.ListCompanies(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		RespondServiceError(c, "company_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"companies": companies})
}

// GET /api/dimensions/products
func (h *DimensionHandler) ListProducts(c *gin.Context) {
	products, err := h.dims.ListProducts(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		RespondServiceError(c, "product_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"products": products})
}

// GET /api/dimensions/channels
func (h *DimensionHandler) ListChannels(c *gin.Context) {
	channels, err := h.dims.ListChannels(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		RespondServiceError(c, "channel_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"channels": channels})
}

// POST /api/dimensions/combos
func (h *DimensionHandler) EnsureCombo(c *gin.Context) {
	var input struct {
		CompanyID     *int64 `json:"company_id"`
		CoreCompanyID *int64 `json:"core_company_id"`
		ProductID     *int64 `json:"product_id"`
		ChannelID     *int64 `json:"channel_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	combo, err := h.dims.EnsureCombo(c.Request.Context(), input.CompanyID, input.CoreCompanyID, input.ProductID, input.ChannelID)
	if err != nil {
		RespondServiceError(c, "combo_ensure_failed", err)
		return
	}
	RespondOK(c, combo)
}

// GET /api/dimensions/combos/:id
func (h *DimensionHandler) GetCombo(c *gin.Context) {
	comboID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_combo_id", err)
		return
	}
	resolved, err := h.dims.ResolveCombo(c.Request.Context(), comboID)
	if err != nil {
		RespondServiceError(c, "combo_not_found", err)
		return
	}
	RespondOK(c, resolved)
}
