package assist

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mediconnect-backend/internal/service/assist"
	"mediconnect-backend/pkg/response"
)

// Handler handles AI assistance requests
type Handler struct {
	assistService *assist.Service
}

// NewHandler creates a new assist handler
func NewHandler(assistService *assist.Service) *Handler {
	return &Handler{
		assistService: assistService,
	}
}

// AskRequest carries one question
type AskRequest struct {
	Text string `json:"text"`
}

// Ask answers a question in the category named by the path
// POST /v1/assist/:category
func (h *Handler) Ask(c *gin.Context) {
	category, err := assist.ParseCategory(c.Param("category"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request body")
		return
	}

	resp, err := h.assistService.Ask(c.Request.Context(), assist.Request{Category: category, Text: req.Text})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, resp)
}
