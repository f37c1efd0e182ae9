// Package normalizer turns one raw subject-stream sheet into canonical records.
//
// The sheets arrive with a title row, a label row that names only the last two
// columns, and the real header row. Trailing columns hold a computed total,
// per-part subject columns and the five result columns, always in the order
// Chemistry, Physics, stream subject, Z-Score, Rank. The trailing five are
// labelled by position and the values are validated afterwards, so a sheet
// that deviates from that order fails instead of being mislabelled.
package normalizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"results-portal/internal/models"
)

const (
	headerRow = 2
	minRows   = 3

	// the raw total, Z-Score and Rank columns sit at the end of every sheet
	minRawColumns = 3

	// trailing result columns after the drops
	resultColumns = 5
	minColumns    = resultColumns + 1
)

// Header names the leading columns are looked up by
const (
	ColIndexNumber = "Index_Number"
	ColName        = "Name_with_Initial"
	ColZone        = "Zone"
	ColStream      = "Stream"
	ColSchool      = "School"
	ColZScore      = "Z-Score"
	ColRank        = "Rank"
)

var requiredColumns = []string{ColIndexNumber, ColName, ColZone, ColSchool}

// column is one retained source column and its canonical header
type column struct {
	source int
	name   string
}

// Layout describes the retained columns of a normalized sheet
type Layout struct {
	columns []column
	byName  map[string]int
}

// Headers returns the canonical headers in source order
func (l *Layout) Headers() []string {
	out := make([]string, len(l.columns))
	for i, c := range l.columns {
		out[i] = c.name
	}
	return out
}

// Normalize converts a raw sheet into canonical records for the given stream
func Normalize(raw models.RawSheet, stream models.Stream) ([]models.CanonicalRecord, error) {
	if !stream.Valid() {
		return nil, fmt.Errorf("unknown stream %q", stream)
	}

	layout, err := ResolveLayout(raw, stream)
	if err != nil {
		return nil, err
	}

	records := make([]models.CanonicalRecord, 0, len(raw.Rows)-minRows)
	for i := headerRow + 1; i < len(raw.Rows); i++ {
		if layout.blank(raw, i) {
			continue
		}

		record, err := layout.record(raw, i, stream)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

// ResolveLayout derives the canonical column layout from the header rows
func ResolveLayout(raw models.RawSheet, stream models.Stream) (*Layout, error) {
	if len(raw.Rows) < minRows {
		return nil, &models.FormatError{
			Sheet:   raw.Name,
			Message: fmt.Sprintf("expected at least %d header rows, found %d", minRows, len(raw.Rows)),
		}
	}

	width := raw.Width()
	if width < minRawColumns {
		return nil, &models.FormatError{
			Sheet:   raw.Name,
			Message: fmt.Sprintf("expected at least %d columns, found %d", minRawColumns, width),
		}
	}

	// The last two columns are unlabeled on the header row.
	header := make([]string, width)
	for col := 0; col < width; col++ {
		header[col] = raw.Cell(headerRow, col)
	}
	header[width-1] = ColRank
	header[width-2] = ColZScore

	// The raw total sits three from the end.
	totalCol := width - 3

	var columns []column
	for col := 0; col < width; col++ {
		if col == totalCol {
			continue
		}
		name := strings.ReplaceAll(strings.TrimSpace(header[col]), " ", "_")
		if strings.HasPrefix(name, "Part") || strings.HasPrefix(name, "Total") {
			continue
		}
		columns = append(columns, column{source: col, name: name})
	}

	if len(columns) < minColumns {
		return nil, &models.FormatError{
			Sheet:   raw.Name,
			Message: fmt.Sprintf("expected at least %d columns after dropping component columns, found %d", minColumns, len(columns)),
		}
	}

	trailing := []string{
		string(models.SubjectChemistry),
		string(models.SubjectPhysics),
		string(stream.StreamSubject()),
		ColZScore,
		ColRank,
	}
	offset := len(columns) - resultColumns
	for i, name := range trailing {
		columns[offset+i].name = name
	}

	layout := &Layout{
		columns: columns,
		byName:  make(map[string]int, len(columns)),
	}
	// Walk backwards so the positional result columns win over any
	// leading column that happens to share a name.
	for i := len(columns) - 1; i >= 0; i-- {
		c := columns[i]
		if _, dup := layout.byName[c.name]; !dup {
			layout.byName[c.name] = c.source
		}
	}

	for _, name := range requiredColumns {
		if _, ok := layout.byName[name]; !ok {
			return nil, &models.FormatError{
				Sheet:   raw.Name,
				Message: fmt.Sprintf("missing column %s", name),
			}
		}
	}

	return layout, nil
}

func (l *Layout) value(raw models.RawSheet, row int, name string) string {
	col, ok := l.byName[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(raw.Cell(row, col))
}

func (l *Layout) blank(raw models.RawSheet, row int) bool {
	for _, c := range l.columns {
		if strings.TrimSpace(raw.Cell(row, c.source)) != "" {
			return false
		}
	}
	return true
}

func (l *Layout) record(raw models.RawSheet, row int, stream models.Stream) (models.CanonicalRecord, error) {
	sheetRow := row + 1
	fail := func(format string, args ...interface{}) (models.CanonicalRecord, error) {
		return models.CanonicalRecord{}, &models.FormatError{
			Sheet:   raw.Name,
			Row:     sheetRow,
			Message: fmt.Sprintf(format, args...),
		}
	}

	rec := models.CanonicalRecord{
		IndexNumber: models.CanonicalIndex(l.value(raw, row, ColIndexNumber)),
		Name:        l.value(raw, row, ColName),
		Zone:        l.value(raw, row, ColZone),
		Stream:      stream,
		School:      l.value(raw, row, ColSchool),
	}
	if rec.IndexNumber == "" {
		return fail("missing index number")
	}
	if rec.Zone == "" {
		return fail("missing zone")
	}

	for _, subject := range []models.Subject{models.SubjectChemistry, models.SubjectPhysics, stream.StreamSubject()} {
		cell := l.value(raw, row, string(subject))
		grade, ok := models.ParseGrade(cell)
		if !ok {
			return fail("value %q in %s is not a grade", cell, subject)
		}
		switch subject {
		case models.SubjectChemistry:
			rec.Chemistry = grade
		case models.SubjectPhysics:
			rec.Physics = grade
		case models.SubjectCombinedMaths:
			rec.CombinedMaths = grade
		case models.SubjectBiology:
			rec.Biology = grade
		}
	}

	if cell := l.value(raw, row, ColZScore); cell != "" {
		z, err := strconv.ParseFloat(cell, 64)
		if err != nil || math.IsNaN(z) || math.IsInf(z, 0) {
			return fail("z-score %q is not numeric", cell)
		}
		rec.ZScore = &z
	}

	if cell := l.value(raw, row, ColRank); cell != "" {
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
			return fail("rank %q is not a whole number", cell)
		}
		rank := int(f)
		rec.Rank = &rank
	}

	return rec, nil
}
