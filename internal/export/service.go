package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/menuocr/internal/repository"
)

// SheetName is the single sheet of a runs workbook.
const SheetName = "Runs"

// RunLister is the read side of the audit store.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]repository.MenuRun, error)
}

// Service is a tiny façade over the audit store that produces XLSX bytes.
type Service struct {
	runs   RunLister
	logger *slog.Logger
}

func NewService(runs RunLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, logger: logger}
}

// Headers is the first row of the Runs sheet.
var Headers = []string{
	"Run ID",
	"Created At",
	"Source",
	"Decision",
	"Is Menu",
	"Menu Confidence",
	"Verdict Source",
	"OCR Confidence",
	"Fallback",
	"Total ms",
	"Reason",
	"Final Text",
	"Error",
}

// RunsXLSX returns the newest runs (limit <= 0 means the store default) as an XLSX workbook.
func (s *Service) RunsXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	// NewFile starts with Sheet1; rename it instead of adding a second sheet.
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, err
	}

	if err := f.SetSheetRow(SheetName, "A1", &Headers); err != nil {
		return nil, err
	}
	for i, r := range runs {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			r.ID.String(),
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.Source,
			r.Decision,
			r.IsMenu,
			r.MenuConfidence,
			r.VerdictSource,
			r.OCRConfidence,
			r.Fallback,
			r.TotalMs,
			truncate(r.Reason, 240),
			truncate(r.FinalText, 2000),
			r.Error,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 38) // id
	_ = f.SetColWidth(SheetName, "B", "B", 22) // created
	_ = f.SetColWidth(SheetName, "C", "C", 40) // source
	_ = f.SetColWidth(SheetName, "K", "K", 60) // reason
	_ = f.SetColWidth(SheetName, "L", "L", 80) // text

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(runs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
