// Package extract turns CSV and XLSX documents into validated text records.
package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/sheetvoice/internal/models"
	"github.com/xuri/excelize/v2"
)

// SupportedExtensions lists the document extensions accepted for upload.
// Legacy .xls is accepted at the boundary but rejected by Extract with a FormatError.
var SupportedExtensions = []string{".csv", ".xlsx", ".xlsm", ".xls"}

// Extractor parses documents into records.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract reads the document and returns its validated records in document order.
// The format is chosen from name's extension.
func (e *Extractor) Extract(ctx context.Context, name string, r io.Reader) ([]models.TextRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := readRows(name, r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &FormatError{Name: name, Reason: "document is empty"}
	}

	idCol, textCol := locateColumns(rows[0])
	if idCol < 0 || textCol < 0 {
		return nil, &FormatError{Name: name, Reason: "header must contain an 'id' column and a 'text' column"}
	}

	records := make([]models.TextRecord, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		id := strings.TrimSpace(cell(row, idCol))
		if id == "" {
			skipped++
			continue
		}
		records = append(records, models.TextRecord{
			ID:   id,
			Text: strings.TrimSpace(cell(row, textCol)),
		})
	}

	e.logger.Debug("document parsed", "name", name, "records", len(records), "skipped_rows", skipped)

	if err := Validate(records); err != nil {
		return nil, err
	}
	return records, nil
}

func readRows(name string, r io.Reader) ([][]string, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv":
		return readCSV(name, r)
	case ".xlsx", ".xlsm":
		return readWorkbook(name, r)
	case ".xls":
		return nil, &FormatError{Name: name, Reason: "legacy .xls workbooks are not supported, save as .xlsx"}
	default:
		return nil, &FormatError{Name: name, Reason: fmt.Sprintf("unsupported file type %q", ext)}
	}
}

func readCSV(name string, r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &FormatError{Name: name, Reason: parseErr.Error()}
		}
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// readWorkbook returns the rows of the first sheet only.
func readWorkbook(name string, r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &FormatError{Name: name, Reason: "cannot open workbook: " + err.Error()}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FormatError{Name: name, Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &FormatError{Name: name, Reason: fmt.Sprintf("read sheet %q: %v", sheets[0], err)}
	}
	return rows, nil
}

// locateColumns returns the first header index containing "id" and the first
// containing "text", case-insensitively, or -1 when absent.
func locateColumns(header []string) (idCol, textCol int) {
	idCol, textCol = -1, -1
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if idCol < 0 && strings.Contains(h, "id") {
			idCol = i
		}
		if textCol < 0 && strings.Contains(h, "text") {
			textCol = i
		}
	}
	return idCol, textCol
}

// cell tolerates short rows; spreadsheet readers omit trailing empty cells.
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
