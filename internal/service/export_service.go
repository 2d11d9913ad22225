package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/punch-attendance-api/internal/dto"
	"github.com/noah-isme/punch-attendance-api/internal/models"
	appErrors "github.com/noah-isme/punch-attendance-api/pkg/errors"
	"github.com/noah-isme/punch-attendance-api/pkg/export"
)

type punchLister interface {
	List(ctx context.Context, query dto.PunchQuery, actor *models.JWTClaims) ([]models.PunchRequest, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

var punchExportHeaders = []string{
	"ID", "Student", "Type", "Punch Time", "Latitude", "Longitude", "Distance (m)",
	"Status", "Mentor", "Processed At", "Rejection Reason",
}

// ExportService renders the punch ledger for download.
type ExportService struct {
	punches punchLister
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(punches punchLister, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{punches: punches, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// ExportPunches renders the punches matching query in format.
func (s *ExportService) ExportPunches(ctx context.Context, query dto.PunchQuery, format dto.ExportFormat, actor *models.JWTClaims) (*dto.ExportResult, error) {
	format = dto.ExportFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format == "" {
		format = dto.ExportFormatCSV
	}
	if format != dto.ExportFormatCSV && format != dto.ExportFormatPDF {
		return nil, appErrors.WithField(appErrors.ErrValidation, "format", "format must be csv or pdf")
	}

	punches, err := s.punches.List(ctx, query, actor)
	if err != nil {
		return nil, err
	}
	data := buildPunchDataset(punches)

	var (
		content     []byte
		contentType string
	)
	switch format {
	case dto.ExportFormatPDF:
		content, err = s.pdf.Render(data)
		contentType = "application/pdf"
	default:
		content, err = s.csv.Render(data)
		contentType = "text/csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("punches_%s.%s", s.now().UTC().Format("20060102_150405"), format)
	s.logger.Info("punch export generated",
		zap.String("format", string(format)),
		zap.Int("rows", len(punches)),
		zap.String("user_id", actor.UserID),
	)
	return &dto.ExportResult{Filename: filename, ContentType: contentType, Content: content}, nil
}

func buildPunchDataset(punches []models.PunchRequest) export.Dataset {
	rows := make([][]string, 0, len(punches))
	for _, p := range punches {
		rows = append(rows, []string{
			p.ID,
			p.StudentID,
			string(p.Type),
			p.PunchTime.UTC().Format(time.RFC3339),
			strconv.FormatFloat(p.Latitude, 'f', 6, 64),
			strconv.FormatFloat(p.Longitude, 'f', 6, 64),
			strconv.FormatFloat(p.Distance, 'f', 1, 64),
			string(p.Status),
			deref(p.MentorID),
			formatExportTime(p.ProcessedAt),
			deref(p.RejectionReason),
		})
	}
	return export.Dataset{Title: "Punch Requests", Headers: punchExportHeaders, Rows: rows}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
