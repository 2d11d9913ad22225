package dto

import (
	"time"

	"github.com/noah-isme/punch-attendance-api/internal/models"
)

// SubmitPunchRequest is sent by a student's device when punching in or out.
type SubmitPunchRequest struct {
	Type      models.PunchType `json:"type" validate:"required"`
	Latitude  *float64         `json:"latitude" validate:"required"`
	Longitude *float64         `json:"longitude" validate:"required"`
}

// ProcessPunchRequest captures a mentor decision.
type ProcessPunchRequest struct {
	Decision models.PunchDecision `json:"decision" validate:"required"`
	Reason   string               `json:"reason"`
}

// PunchQuery mirrors supported listing filters.
type PunchQuery struct {
	StudentID string
	BatchID   string
	Status    []models.PunchStatus
	Type      models.PunchType
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// ExportFormat selects the rendering of a ledger export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult is a rendered export ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Content     []byte
}
