package models

import (
	"encoding/json"
	"strings"
)

// Stream identifies the subject stream a student sat for.
// The value doubles as the workbook sheet name for that stream.
type Stream string

const (
	StreamPhysicalScience   Stream = "Physical Science"
	StreamBiologicalScience Stream = "Biological Science"
)

// Streams lists the streams in the order their sheets are merged.
var Streams = []Stream{StreamPhysicalScience, StreamBiologicalScience}

// SheetName returns the workbook sheet holding this stream's results
func (s Stream) SheetName() string {
	return string(s)
}

// Valid reports whether s is a known stream
func (s Stream) Valid() bool {
	return s == StreamPhysicalScience || s == StreamBiologicalScience
}

// StreamSubject returns the subject graded only for this stream
func (s Stream) StreamSubject() Subject {
	if s == StreamBiologicalScience {
		return SubjectBiology
	}
	return SubjectCombinedMaths
}

// Subject is a graded subject column of the canonical table
type Subject string

const (
	SubjectChemistry     Subject = "Chemistry"
	SubjectPhysics       Subject = "Physics"
	SubjectCombinedMaths Subject = "Combined_Maths"
	SubjectBiology       Subject = "Biology"
)

// Subjects lists every subject reported in grade summaries
var Subjects = []Subject{SubjectChemistry, SubjectPhysics, SubjectCombinedMaths, SubjectBiology}

// Grade is one of A, B, C, S, F. The zero value means the grade is absent.
type Grade string

const (
	GradeAbsent Grade = ""
	GradeA      Grade = "A"
	GradeB      Grade = "B"
	GradeC      Grade = "C"
	GradeS      Grade = "S"
	GradeF      Grade = "F"
)

// Grades lists the closed set of grades in reporting order
var Grades = []Grade{GradeA, GradeB, GradeC, GradeS, GradeF}

// ParseGrade converts a raw cell into a Grade.
// Blank cells yield GradeAbsent; anything outside the closed set is rejected.
func ParseGrade(raw string) (Grade, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "" {
		return GradeAbsent, true
	}
	for _, g := range Grades {
		if v == string(g) {
			return g, true
		}
	}
	return GradeAbsent, false
}

// Present reports whether a grade was recorded
func (g Grade) Present() bool {
	return g != GradeAbsent
}

// MarshalJSON encodes an absent grade as null
func (g Grade) MarshalJSON() ([]byte, error) {
	if g == GradeAbsent {
		return []byte("null"), nil
	}
	return json.Marshal(string(g))
}

// UnmarshalJSON accepts null or a grade letter
func (g *Grade) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*g = GradeAbsent
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseGrade(s)
	if !ok {
		return &FormatError{Message: "unknown grade " + s}
	}
	*g = parsed
	return nil
}

// CanonicalRecord is one student's normalized result
type CanonicalRecord struct {
	IndexNumber   string   `json:"index_number"`
	Name          string   `json:"name"`
	Zone          string   `json:"zone"`
	Stream        Stream   `json:"stream"`
	School        string   `json:"school"`
	CombinedMaths Grade    `json:"combined_maths"`
	Biology       Grade    `json:"biology"`
	Chemistry     Grade    `json:"chemistry"`
	Physics       Grade    `json:"physics"`
	ZScore        *float64 `json:"z_score"`
	Rank          *int     `json:"rank"`
}

// GradeFor returns the record's grade for a subject
func (r *CanonicalRecord) GradeFor(subject Subject) Grade {
	switch subject {
	case SubjectChemistry:
		return r.Chemistry
	case SubjectPhysics:
		return r.Physics
	case SubjectCombinedMaths:
		return r.CombinedMaths
	case SubjectBiology:
		return r.Biology
	}
	return GradeAbsent
}

// Clone returns a deep copy so callers never share pointers with the store
func (r *CanonicalRecord) Clone() CanonicalRecord {
	out := *r
	if r.ZScore != nil {
		z := *r.ZScore
		out.ZScore = &z
	}
	if r.Rank != nil {
		rank := *r.Rank
		out.Rank = &rank
	}
	return out
}

// SearchResult is the payload returned for a student lookup.
// Only the subject that applies to the student's stream is present.
type SearchResult struct {
	IndexNumber   string   `json:"index_number"`
	Name          string   `json:"name"`
	Zone          string   `json:"zone"`
	Stream        Stream   `json:"stream"`
	School        string   `json:"school"`
	CombinedMaths *Grade   `json:"combined_maths,omitempty"`
	Biology       *Grade   `json:"biology,omitempty"`
	Chemistry     Grade    `json:"chemistry"`
	Physics       Grade    `json:"physics"`
	ZScore        *float64 `json:"z_score"`
	Rank          *int     `json:"rank"`
}

// NewSearchResult projects a record into its stream-specific payload
func NewSearchResult(r CanonicalRecord) *SearchResult {
	c := r.Clone()
	res := &SearchResult{
		IndexNumber: c.IndexNumber,
		Name:        c.Name,
		Zone:        c.Zone,
		Stream:      c.Stream,
		School:      c.School,
		Chemistry:   c.Chemistry,
		Physics:     c.Physics,
		ZScore:      c.ZScore,
		Rank:        c.Rank,
	}
	if c.Stream == StreamBiologicalScience {
		g := c.Biology
		res.Biology = &g
	} else {
		g := c.CombinedMaths
		res.CombinedMaths = &g
	}
	return res
}

// LabeledValue is one row of the result table shown to a student
type LabeledValue struct {
	Label string      `json:"label"`
	Value interface{} `json:"value"`
}

// Table returns the result as ordered label/value pairs for display
func (s *SearchResult) Table() []LabeledValue {
	rows := []LabeledValue{
		{Label: "Index Number", Value: s.IndexNumber},
		{Label: "Name", Value: s.Name},
		{Label: "Zone", Value: s.Zone},
		{Label: "Stream", Value: s.Stream},
		{Label: "School", Value: s.School},
	}
	if s.CombinedMaths != nil {
		rows = append(rows, LabeledValue{Label: "Combined Maths", Value: *s.CombinedMaths})
	}
	if s.Biology != nil {
		rows = append(rows, LabeledValue{Label: "Biology", Value: *s.Biology})
	}
	rows = append(rows,
		LabeledValue{Label: "Chemistry", Value: s.Chemistry},
		LabeledValue{Label: "Physics", Value: s.Physics},
	)

	var z, rank interface{}
	if s.ZScore != nil {
		z = *s.ZScore
	}
	if s.Rank != nil {
		rank = *s.Rank
	}
	rows = append(rows,
		LabeledValue{Label: "Z-Score", Value: z},
		LabeledValue{Label: "Rank", Value: rank},
	)
	return rows
}

// GradeSummary counts grades per subject
type GradeSummary map[Subject]map[Grade]int

// NewGradeSummary returns a summary with every subject and grade set to zero
func NewGradeSummary() GradeSummary {
	summary := make(GradeSummary, len(Subjects))
	for _, subject := range Subjects {
		counts := make(map[Grade]int, len(Grades))
		for _, g := range Grades {
			counts[g] = 0
		}
		summary[subject] = counts
	}
	return summary
}

// Add counts the record's present grades
func (s GradeSummary) Add(r *CanonicalRecord) {
	for _, subject := range Subjects {
		g := r.GradeFor(subject)
		if !g.Present() {
			continue
		}
		s[subject][g]++
	}
}

// Clone returns an independent copy of the summary
func (s GradeSummary) Clone() GradeSummary {
	out := make(GradeSummary, len(s))
	for subject, counts := range s {
		c := make(map[Grade]int, len(counts))
		for g, n := range counts {
			c[g] = n
		}
		out[subject] = c
	}
	return out
}

// Total returns the number of graded rows for a subject
func (s GradeSummary) Total(subject Subject) int {
	total := 0
	for _, n := range s[subject] {
		total += n
	}
	return total
}
