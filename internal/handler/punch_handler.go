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

const maxExportRows = 500

type punchService interface {
	SubmitForStudent(ctx context.Context, studentID string, req dto.SubmitPunchRequest) (*models.PunchRequest, error)
	ProcessPunch(ctx context.Context, requestID, mentorID string, decision models.PunchDecision, reason string) (*models.PunchRequest, error)
	List(ctx context.Context, query dto.PunchQuery, actor *models.JWTClaims) ([]models.PunchRequest, error)
	Pending(ctx context.Context, query dto.PunchQuery, actor *models.JWTClaims) ([]models.PunchRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.PunchRequest, error)
}

type punchExporter interface {
	ExportPunches(ctx context.Context, query dto.PunchQuery, format dto.ExportFormat, actor *models.JWTClaims) (*dto.ExportResult, error)
}

// PunchHandler exposes the punch ledger and approval queue.
type PunchHandler struct {
	service  punchService
	exporter punchExporter
}

// NewPunchHandler constructs the handler.
func NewPunchHandler(service punchService, exporter punchExporter) *PunchHandler {
	return &PunchHandler{service: service, exporter: exporter}
}

// Submit godoc
// @Summary Submit a punch-in or punch-out
// @Description Records a geotagged punch for the authenticated student. The request waits for mentor approval.
// @Tags Punches
// @Accept json
// @Produce json
// @Param payload body dto.SubmitPunchRequest true "Punch payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /punches [post]
func (h *PunchHandler) Submit(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("punch"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitPunchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid punch payload"))
		return
	}
	punch, err := h.service.SubmitForStudent(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, punch)
}

// List godoc
// @Summary List punch requests
// @Description Students only ever see their own requests.
// @Tags Punches
// @Produce json
// @Param studentId query string false "Student ID"
// @Param batchId query string false "Batch ID"
// @Param status query string false "Comma separated statuses"
// @Param type query string false "PUNCH_IN or PUNCH_OUT"
// @Param from query string false "RFC3339 or YYYY-MM-DD"
// @Param to query string false "RFC3339 or YYYY-MM-DD"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /punches [get]
func (h *PunchHandler) List(c *gin.Context) {
	h.list(c, false)
}

// Pending godoc
// @Summary Pending approval queue
// @Tags Punches
// @Produce json
// @Param batchId query string false "Batch ID"
// @Param type query string false "PUNCH_IN or PUNCH_OUT"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /punches/pending [get]
func (h *PunchHandler) Pending(c *gin.Context) {
	h.list(c, true)
}

func (h *PunchHandler) list(c *gin.Context, pendingOnly bool) {
	if h.service == nil {
		response.Error(c, notConfigured("punch"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := punchQueryFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var punches []models.PunchRequest
	if pendingOnly {
		punches, err = h.service.Pending(c.Request.Context(), query, claims)
	} else {
		punches, err = h.service.List(c.Request.Context(), query, claims)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(punches))
	response.JSON(c, http.StatusOK, punches, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get punch request
// @Tags Punches
// @Produce json
// @Param id path string true "Punch request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /punches/{id} [get]
func (h *PunchHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("punch"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	punch, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, punch, nil)
}

// Process godoc
// @Summary Approve or reject a pending punch
// @Description REJECT requires a reason. Decided requests cannot be changed.
// @Tags Punches
// @Accept json
// @Produce json
// @Param id path string true "Punch request ID"
// @Param payload body dto.ProcessPunchRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /punches/{id}/decision [post]
func (h *PunchHandler) Process(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("punch"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ProcessPunchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid decision payload"))
		return
	}
	decision := models.PunchDecision(strings.ToUpper(strings.TrimSpace(string(req.Decision))))
	punch, err := h.service.ProcessPunch(c.Request.Context(), c.Param("id"), claims.UserID, decision, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, punch, nil)
}

// Export godoc
// @Summary Export punch ledger
// @Tags Punches
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param studentId query string false "Student ID"
// @Param batchId query string false "Batch ID"
// @Param status query string false "Comma separated statuses"
// @Param from query string false "RFC3339 or YYYY-MM-DD"
// @Param to query string false "RFC3339 or YYYY-MM-DD"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /punches/export [get]
func (h *PunchHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, notConfigured("export"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := punchQueryFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if c.Query("limit") == "" || query.Limit > maxExportRows {
		query.Limit = maxExportRows
	}
	format := dto.ExportFormat(strings.ToLower(strings.TrimSpace(c.Query("format"))))
	result, err := h.exporter.ExportPunches(c.Request.Context(), query, format, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Download(c, result.Filename, result.ContentType, result.Content)
}

func punchQueryFromRequest(c *gin.Context) (dto.PunchQuery, error) {
	query := dto.PunchQuery{
		StudentID: strings.TrimSpace(c.Query("studentId")),
		BatchID:   strings.TrimSpace(c.Query("batchId")),
		Type:      models.PunchType(strings.ToUpper(strings.TrimSpace(c.Query("type")))),
	}
	for _, s := range splitQuery(c, "status") {
		query.Status = append(query.Status, models.PunchStatus(s))
	}
	var err error
	if query.From, err = timeQuery(c, "from", false); err != nil {
		return query, err
	}
	if query.To, err = timeQuery(c, "to", true); err != nil {
		return query, err
	}
	if query.Limit, err = intQuery(c, "limit", 50); err != nil {
		return query, err
	}
	if query.Offset, err = intQuery(c, "offset", 0); err != nil {
		return query, err
	}
	return query, nil
}
