package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/entity"
)

const (
	historySheet    = "History"
	timestampLayout = "2006-01-02 15:04:05"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var historyHeader = []interface{}{"Timestamp (UTC)", "Action", "Previous Status", "New Status", "Actor", "Remark"}

// columnWidths for columns A-F
var columnWidths = []float64{22, 34, 20, 20, 18, 60}

// HistoryWorkbook renders an application's audit trail as an XLSX workbook
type HistoryWorkbook struct {
	logger *zap.Logger
}

// NewHistoryWorkbook creates a new history exporter
func NewHistoryWorkbook(logger *zap.Logger) *HistoryWorkbook {
	return &HistoryWorkbook{logger: logger}
}

// ContentType returns the MIME type of the generated document
func (w *HistoryWorkbook) ContentType() string {
	return xlsxContentType
}

// WriteHistory builds the workbook in memory. Row 1 is a summary of the
// application, row 3 the column header, and records follow oldest first.
func (w *HistoryWorkbook) WriteHistory(app *entity.Application, records []*entity.StatusHistory) ([]byte, error) {
	if app == nil {
		return nil, fmt.Errorf("application cannot be nil")
	}

	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", historySheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	summary := []interface{}{
		fmt.Sprintf("%s application #%d", app.Kind, app.ID),
		app.Title,
		string(app.Status),
		app.ApplicantID,
	}
	if err := file.SetSheetRow(historySheet, "A1", &summary); err != nil {
		return nil, fmt.Errorf("failed to write summary: %w", err)
	}

	if err := file.SetSheetRow(historySheet, "A3", &historyHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	if err := w.styleSheet(file); err != nil {
		return nil, err
	}

	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, 4+i)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve row %d: %w", 4+i, err)
		}

		row := []interface{}{
			formatTimestamp(record.Timestamp),
			record.Action.String(),
			record.PreviousStatus.String(),
			record.NewStatus.String(),
			record.Actor,
			record.Remark,
		}
		if err := file.SetSheetRow(historySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write history row %d: %w", i+1, err)
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	w.logger.Debug("History workbook generated",
		zap.Int64("application_id", app.ID),
		zap.Int("records", len(records)),
		zap.Int("bytes", buf.Len()))

	return buf.Bytes(), nil
}

func (w *HistoryWorkbook) styleSheet(file *excelize.File) error {
	bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := file.SetCellStyle(historySheet, "A1", "A1", bold); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}
	if err := file.SetCellStyle(historySheet, "A3", "F3", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to resolve column %d: %w", i+1, err)
		}
		if err := file.SetColWidth(historySheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set width of column %s: %w", col, err)
		}
	}

	return file.SetPanes(historySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      3,
		TopLeftCell: "A4",
		ActivePane:  "bottomLeft",
	})
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// Verify interface compliance
var _ port.HistoryExporter = (*HistoryWorkbook)(nil)
