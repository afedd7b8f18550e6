package emitter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/yairfalse/tally/pkg/report"
)

// DefaultOutputPath is where the workbook goes when no path is configured.
const DefaultOutputPath = "aws_services_report.xlsx"

// SummarySheet is the category name of the optional summary sheet.
const SummarySheet = "SUMMARY"

const defaultColWidth = 22

// ErrEmptyReport rejects a report without tables, which would otherwise
// produce a workbook holding a single blank sheet.
var ErrEmptyReport = errors.New("report has no categories")

// XLSXEmitter writes one sheet per category into a single workbook.
type XLSXEmitter struct {
	path    string
	summary bool
}

// XLSXOption configures an XLSXEmitter.
type XLSXOption func(*XLSXEmitter)

// WithSummary toggles the trailing summary sheet.
func WithSummary(enabled bool) XLSXOption {
	return func(e *XLSXEmitter) {
		e.summary = enabled
	}
}

// NewXLSXEmitter creates a workbook emitter writing to path.
func NewXLSXEmitter(path string, opts ...XLSXOption) *XLSXEmitter {
	if path == "" {
		path = DefaultOutputPath
	}
	e := &XLSXEmitter{path: path, summary: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Path returns the output path.
func (e *XLSXEmitter) Path() string {
	return e.path
}

// Emit builds the workbook in memory and replaces the output file in one
// rename, so a failed run never leaves a partial workbook behind.
func (e *XLSXEmitter) Emit(ctx context.Context, rep report.Report) error {
	if len(rep.Tables) == 0 {
		return ErrEmptyReport
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn().Err(err).Msg("close workbook")
		}
	}()

	w, err := newWorkbookWriter(f)
	if err != nil {
		return err
	}

	sheets := make([]string, len(rep.Tables))
	for i, tbl := range rep.Tables {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		if len(tbl.Rows) == 0 {
			tbl.Rows = []report.Row{report.NoResourcesRow()}
		}
		name, err := w.writeTable(tbl.Category, tbl.Columns(), tbl.Rows)
		if err != nil {
			return err
		}
		sheets[i] = name
	}

	if e.summary {
		if err := w.writeSummary(rep, sheets); err != nil {
			return err
		}
	}

	if err := saveAtomic(f, e.path); err != nil {
		return err
	}

	log.Info().Str("path", e.path).Int("sheets", len(f.GetSheetList())).Msg("workbook written")
	return nil
}

// Close is a no-op; the workbook is closed inside Emit.
func (e *XLSXEmitter) Close() error {
	return nil
}

type workbookWriter struct {
	f           *excelize.File
	names       *SheetNamer
	headerStyle int
	written     int
}

func newWorkbookWriter(f *excelize.File) (*workbookWriter, error) {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	return &workbookWriter{f: f, names: NewSheetNamer(), headerStyle: style}, nil
}

// addSheet renames the default sheet for the first table and appends the rest.
func (w *workbookWriter) addSheet(category string) (string, error) {
	name := w.names.Assign(category)
	if w.written == 0 {
		if err := w.f.SetSheetName(w.f.GetSheetName(0), name); err != nil {
			return "", fmt.Errorf("name sheet %q: %w", name, err)
		}
	} else if _, err := w.f.NewSheet(name); err != nil {
		return "", fmt.Errorf("create sheet %q: %w", name, err)
	}
	w.written++
	return name, nil
}

func (w *workbookWriter) writeTable(category string, columns []string, rows []report.Row) (string, error) {
	sheet, err := w.addSheet(category)
	if err != nil {
		return "", err
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := w.setRow(sheet, 1, header); err != nil {
		return "", err
	}
	if err := w.f.SetRowStyle(sheet, 1, 1, w.headerStyle); err != nil {
		return "", fmt.Errorf("style header of %q: %w", sheet, err)
	}

	for i, r := range rows {
		values := make([]any, len(columns))
		for j, c := range columns {
			values[j] = r.Get(c).Interface()
		}
		if err := w.setRow(sheet, i+2, values); err != nil {
			return "", err
		}
	}

	if err := w.finishSheet(sheet, len(columns)); err != nil {
		return "", err
	}
	return sheet, nil
}

func (w *workbookWriter) writeSummary(rep report.Report, sheets []string) error {
	sheet, err := w.addSheet(SummarySheet)
	if err != nil {
		return err
	}

	meta := [][]any{
		{"Account", rep.Account},
		{"Region", rep.Region},
		{"Generated At", report.NaiveTime(rep.GeneratedAt)},
		{},
		{"Category", "Sheet", "Status", "Resources", "Seconds"},
	}
	for i, row := range meta {
		if err := w.setRow(sheet, i+1, row); err != nil {
			return err
		}
	}
	headerRow := len(meta)
	if err := w.f.SetRowStyle(sheet, headerRow, headerRow, w.headerStyle); err != nil {
		return fmt.Errorf("style summary header: %w", err)
	}

	for i, tbl := range rep.Tables {
		row := []any{tbl.Label(), sheets[i], string(tbl.Status), tbl.Resources(), tbl.Duration.Seconds()}
		if err := w.setRow(sheet, headerRow+i+1, row); err != nil {
			return err
		}
	}

	return w.finishSheet(sheet, 5)
}

func (w *workbookWriter) setRow(sheet string, row int, values []any) error {
	if len(values) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d of %q: %w", row, sheet, err)
	}
	return nil
}

func (w *workbookWriter) finishSheet(sheet string, columns int) error {
	if columns == 0 {
		return nil
	}
	last, err := excelize.ColumnNumberToName(columns)
	if err != nil {
		return err
	}
	if err := w.f.SetColWidth(sheet, "A", last, defaultColWidth); err != nil {
		return fmt.Errorf("set column width of %q: %w", sheet, err)
	}
	return nil
}

// saveAtomic writes the workbook next to path and renames it into place.
func saveAtomic(f *excelize.File, path string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = f.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp workbook: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp workbook: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("move workbook into place: %w", err)
	}
	return nil
}
