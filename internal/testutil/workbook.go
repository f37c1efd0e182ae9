// Package testutil builds results workbooks shaped like the ones exam
// administrators upload.
package testutil

import (
	"bytes"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/xuri/excelize/v2"

	"results-portal/internal/models"
)

// Student is one fixture row
type Student struct {
	Index     string
	Name      string
	Zone      string
	School    string
	Chemistry string
	Physics   string
	Subject   string // Combined Maths or Biology depending on the sheet
	ZScore    string
	Rank      string
}

// SheetRows lays students out the way the published results sheets are:
// a title row, a label row naming only Z-Score and Rank, the header row, then
// one row per student with part marks, a raw total and the result columns.
func SheetRows(stream models.Stream, students []Student) [][]string {
	subject := "Combined Maths"
	if stream == models.StreamBiologicalScience {
		subject = "Biology"
	}

	header := []string{
		"Index Number", "Name with Initial", "Zone", "Stream", "School",
		"Part I Chemistry", "Part II Chemistry", "Chemistry",
		"Part I Physics", "Physics",
		"Total " + subject, subject,
		"Aggregate", "", "",
	}
	labels := make([]string, len(header))
	labels[len(labels)-2] = "Z-Score"
	labels[len(labels)-1] = "Rank"

	rows := [][]string{
		{"Results of Focus Stride 2024 - " + string(stream)},
		labels,
		header,
	}
	for _, s := range students {
		rows = append(rows, []string{
			s.Index, s.Name, s.Zone, string(stream), s.School,
			"41", "38", s.Chemistry,
			"36", s.Physics,
			"72", s.Subject,
			"305", s.ZScore, s.Rank,
		})
	}
	return rows
}

// RawSheet returns the fixture as an in-memory raw sheet
func RawSheet(stream models.Stream, students []Student) models.RawSheet {
	return models.RawSheet{Name: stream.SheetName(), Rows: SheetRows(stream, students)}
}

// WorkbookBytes renders sheets into an xlsx document.
// Cells that parse as numbers are written as numeric cells, like a real export.
func WorkbookBytes(t testing.TB, sheets map[string][][]string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	keepDefault := false
	for name, rows := range sheets {
		if name == "Sheet1" {
			keepDefault = true
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("NewSheet(%q): %v", name, err)
		}

		for i, row := range rows {
			cells := make([]interface{}, len(row))
			for j, v := range row {
				cells[j] = cellValue(v)
			}
			axis, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				t.Fatalf("CoordinatesToCellName: %v", err)
			}
			if err := f.SetSheetRow(name, axis, &cells); err != nil {
				t.Fatalf("SetSheetRow(%q, %s): %v", name, axis, err)
			}
		}
	}
	if !keepDefault {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			t.Fatalf("DeleteSheet: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return bytes.Clone(buf.Bytes())
}

// WriteWorkbook saves sheets as an xlsx file under dir and returns its path
func WriteWorkbook(t testing.TB, dir, name string, sheets map[string][][]string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := excelize.OpenReader(bytes.NewReader(WorkbookBytes(t, sheets)))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs(%q): %v", path, err)
	}
	return path
}

// ResultsWorkbook returns the two stream sheets for the given students
func ResultsWorkbook(physical, biological []Student) map[string][][]string {
	return map[string][][]string{
		models.StreamPhysicalScience.SheetName():   SheetRows(models.StreamPhysicalScience, physical),
		models.StreamBiologicalScience.SheetName(): SheetRows(models.StreamBiologicalScience, biological),
	}
}

// SampleWorkbook is the two-row workbook used across end-to-end tests
func SampleWorkbook() map[string][][]string {
	return ResultsWorkbook(
		[]Student{{Index: "100", Name: "A. Perera", Zone: "North", School: "Royal College", Chemistry: "A", Physics: "B", Subject: "A", ZScore: "1.5", Rank: "3"}},
		[]Student{{Index: "200", Name: "B. Silva", Zone: "South", School: "Visakha Vidyalaya", Chemistry: "C", Physics: "S", Subject: "B", ZScore: "0.75", Rank: "10"}},
	)
}

func cellValue(v string) interface{} {
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// SheetSource serves raw sheets from memory
type SheetSource map[string][][]string

// Sheet returns the named sheet or a FormatError when it is missing
func (s SheetSource) Sheet(name string) (models.RawSheet, error) {
	rows, ok := s[name]
	if !ok {
		return models.RawSheet{}, &models.FormatError{Sheet: name, Message: "sheet not found"}
	}
	return models.RawSheet{Name: name, Rows: rows}, nil
}
