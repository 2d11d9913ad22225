package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/punch-attendance-api/internal/dto"
	"github.com/noah-isme/punch-attendance-api/internal/middleware"
	"github.com/noah-isme/punch-attendance-api/internal/models"
	appErrors "github.com/noah-isme/punch-attendance-api/pkg/errors"
	"github.com/noah-isme/punch-attendance-api/pkg/response"
)

type locationService interface {
	RecordForStudent(ctx context.Context, studentID string, req dto.RecordLocationRequest) (*models.LocationRecord, error)
	Latest(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.LocationRecord, bool, error)
	History(ctx context.Context, query dto.LocationHistoryQuery, actor *models.JWTClaims) ([]models.LocationRecord, error)
}

// LocationHandler serves student location tracking.
type LocationHandler struct {
	service locationService
}

// NewLocationHandler constructs the handler.
func NewLocationHandler(service locationService) *LocationHandler {
	return &LocationHandler{service: service}
}

// Record godoc
// @Summary Record current location
// @Tags Locations
// @Accept json
// @Produce json
// @Param payload body dto.RecordLocationRequest true "Position"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /locations [post]
func (h *LocationHandler) Record(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("location"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RecordLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid location payload"))
		return
	}
	record, err := h.service.RecordForStudent(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Latest godoc
// @Summary Latest known location
// @Description Students default to themselves; mentors and admins pass studentId.
// @Tags Locations
// @Produce json
// @Param studentId query string false "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /locations/latest [get]
func (h *LocationHandler) Latest(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("location"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, hit, err := h.service.Latest(c.Request.Context(), studentScope(c, claims), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, record, nil, middleware.ExtractMeta(c))
}

// History godoc
// @Summary Location history
// @Tags Locations
// @Produce json
// @Param studentId query string false "Student ID"
// @Param from query string false "RFC3339 or YYYY-MM-DD"
// @Param to query string false "RFC3339 or YYYY-MM-DD"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /locations/history [get]
func (h *LocationHandler) History(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("location"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.LocationHistoryQuery{StudentID: studentScope(c, claims)}
	var err error
	if query.From, err = timeQuery(c, "from", false); err != nil {
		response.Error(c, err)
		return
	}
	if query.To, err = timeQuery(c, "to", true); err != nil {
		response.Error(c, err)
		return
	}
	if query.Limit, err = intQuery(c, "limit", 100); err != nil {
		response.Error(c, err)
		return
	}
	if query.Offset, err = intQuery(c, "offset", 0); err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.service.History(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(records))
	response.JSON(c, http.StatusOK, records, nil, middleware.ExtractMeta(c))
}

func studentScope(c *gin.Context, claims *models.JWTClaims) string {
	if id := strings.TrimSpace(c.Query("studentId")); id != "" {
		return id
	}
	if claims.Role == models.RoleStudent {
		return claims.UserID
	}
	return ""
}
