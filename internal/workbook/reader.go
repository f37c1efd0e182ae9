// Package workbook reads results workbooks into raw sheets.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"results-portal/internal/models"
)

// Workbook is an opened xlsx document
type Workbook struct {
	file *excelize.File
	path string
}

// Open reads the workbook at path.
// A missing or unreadable file is an IOError, a file that is not an xlsx
// document is a FormatError.
func Open(path string) (*Workbook, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &models.IOError{Op: "stat", Path: path, Cause: err}
	}
	if info.IsDir() {
		return nil, &models.IOError{Op: "open", Path: path, Cause: fs.ErrInvalid}
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}

	return &Workbook{file: f, path: path}, nil
}

// OpenReader reads a workbook from r
func OpenReader(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, classifyOpenError("", err)
	}
	return &Workbook{file: f}, nil
}

func classifyOpenError(path string, err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return &models.IOError{Op: "open", Path: path, Cause: err}
	}
	return &models.FormatError{Message: "file is not a readable xlsx workbook", Cause: err}
}

// Close releases the underlying file
func (w *Workbook) Close() error {
	return w.file.Close()
}

// Path returns the file path the workbook was opened from, if any
func (w *Workbook) Path() string {
	return w.path
}

// SheetNames lists the workbook's sheets in tab order
func (w *Workbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// HasSheet reports whether a sheet with the exact name exists
func (w *Workbook) HasSheet(name string) bool {
	idx, err := w.file.GetSheetIndex(name)
	return err == nil && idx >= 0
}

// Sheet reads every row of the named sheet.
// Numeric cells are read unformatted so index numbers and z-scores keep their
// stored precision.
func (w *Workbook) Sheet(name string) (models.RawSheet, error) {
	if !w.HasSheet(name) {
		return models.RawSheet{}, &models.FormatError{
			Sheet:   name,
			Message: fmt.Sprintf("sheet not found (available: %s)", strings.Join(w.SheetNames(), ", ")),
		}
	}

	rows, err := w.file.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return models.RawSheet{}, &models.FormatError{
			Sheet:   name,
			Message: "failed to read sheet rows",
			Cause:   err,
		}
	}

	for i, row := range rows {
		for j, cell := range row {
			rows[i][j] = strings.TrimSpace(cell)
		}
	}

	return models.RawSheet{Name: name, Rows: rows}, nil
}
