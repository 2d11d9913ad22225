package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/punch-attendance-api/internal/models"
	appErrors "github.com/noah-isme/punch-attendance-api/pkg/errors"
	"github.com/noah-isme/punch-attendance-api/pkg/response"
)

type batchService interface {
	List(ctx context.Context, actor *models.JWTClaims) ([]models.Batch, error)
	Get(ctx context.Context, id string) (*models.Batch, error)
	Students(ctx context.Context, batchID string) ([]models.User, error)
}

// BatchHandler lists batches and their rosters.
type BatchHandler struct {
	service batchService
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(service batchService) *BatchHandler {
	return &BatchHandler{service: service}
}

// List godoc
// @Summary List batches
// @Description Mentors see their own batches, admins see all.
// @Tags Batches
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("batch"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	batches, err := h.service.List(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, nil)
}

// Get godoc
// @Summary Get batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("batch"))
		return
	}
	batch, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Students godoc
// @Summary Batch roster
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id}/students [get]
func (h *BatchHandler) Students(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("batch"))
		return
	}
	students, err := h.service.Students(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}
