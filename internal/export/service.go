package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

type RecordLister interface {
	List(ctx context.Context, status constants.RecordStatus, limit int) ([]entity.CastingCallRecord, error)
}

type DeadLetterLister interface {
	List(ctx context.Context, limit int) ([]entity.DeadLetter, error)
}

// Service produces XLSX workbooks for operators reviewing records and dead letters.
type Service struct {
	records     RecordLister
	deadLetters DeadLetterLister
	logger      *slog.Logger
}

func NewService(records RecordLister, deadLetters DeadLetterLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, deadLetters: deadLetters, logger: logger}
}

// RecordsXLSX exports records with the given status; an empty status exports all.
func (s *Service) RecordsXLSX(ctx context.Context, status constants.RecordStatus, limit int) ([]byte, error) {
	start := time.Now()
	recs, err := s.records.List(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	headers := []string{
		"Created", "Status", "Title", "Company", "Location", "Project Type",
		"Compensation", "Deadline", "Contact", "Requirements", "Description", "Source URL",
	}
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []any{
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			string(r.Status),
			r.Title,
			r.Company,
			r.Location,
			deref(r.ProjectType),
			deref(r.Compensation),
			deref(r.Deadline),
			deref(r.ContactInfo),
			truncate(deref(r.Requirements), 300),
			truncate(r.Description, 500),
			r.SourceURL,
		})
	}
	buf, err := writeSheet("Casting Calls", headers, rows, map[string]float64{
		"A": 16, "B": 16, "C": 36, "D": 22, "E": 18, "F": 16,
		"G": 18, "H": 12, "I": 28, "J": 40, "K": 60, "L": 40,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("export.records.ok",
		"status", status,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

func (s *Service) DeadLettersXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()
	dls, err := s.deadLetters.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}

	headers := []string{"Failed At", "Stage", "Dead Letter ID", "Origin ID", "Attempts", "Error", "Payload"}
	rows := make([][]any, 0, len(dls))
	for _, d := range dls {
		rows = append(rows, []any{
			d.FailedAt.UTC().Format(time.RFC3339),
			d.Stage,
			d.ID,
			d.SourceID,
			d.Attempts,
			truncate(d.Error, 500),
			truncate(string(d.Payload), 2000),
		})
	}
	buf, err := writeSheet("Dead Letters", headers, rows, map[string]float64{
		"A": 22, "B": 12, "C": 38, "D": 38, "E": 10, "F": 60, "G": 80,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("export.dead_letters.ok",
		"rows", len(dls),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

func writeSheet(sheet string, headers []string, rows [][]any, widths map[string]float64) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, "A1", last, style)
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("xlsx row %d: %w", r+2, err)
		}
	}
	for col, w := range widths {
		_ = f.SetColWidth(sheet, col, col, w)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
