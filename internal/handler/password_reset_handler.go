package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/punch-attendance-api/internal/models"
	"github.com/noah-isme/punch-attendance-api/pkg/response"
)

type passwordResetService interface {
	RequestReset(ctx context.Context, email string) (*models.OTPIssued, error)
	VerifyReset(ctx context.Context, email, code string) (*models.OTPVerifyResult, error)
	ResetPassword(ctx context.Context, req models.ConfirmResetPasswordRequest) error
}

// PasswordResetHandler drives the emailed one-time code flow.
type PasswordResetHandler struct {
	service passwordResetService
}

// NewPasswordResetHandler constructs the handler.
func NewPasswordResetHandler(service passwordResetService) *PasswordResetHandler {
	return &PasswordResetHandler{service: service}
}

// Request godoc
// @Summary Request a password reset code
// @Description Always answers 202 for well-formed emails so account existence is not revealed.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ResetPasswordRequest true "Email"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/forgot-password [post]
func (h *PasswordResetHandler) Request(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("password reset"))
		return
	}
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	issued, err := h.service.RequestReset(c.Request.Context(), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{
		"message":   "if the email is registered, a reset code has been sent",
		"expiresAt": issued.ExpiresAt,
	}, nil)
}

// Verify godoc
// @Summary Verify a reset code
// @Description Consumes the code. A code verifies at most once.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.VerifyResetRequest true "Email and code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /auth/verify-reset [post]
func (h *PasswordResetHandler) Verify(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("password reset"))
		return
	}
	var req models.VerifyResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	result, err := h.service.VerifyReset(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reset godoc
// @Summary Reset password with a code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ConfirmResetPasswordRequest true "Reset password"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /auth/reset-password [post]
func (h *PasswordResetHandler) Reset(c *gin.Context) {
	if h.service == nil {
		response.Error(c, notConfigured("password reset"))
		return
	}
	var req models.ConfirmResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	if err := h.service.ResetPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
