package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestParseGrade(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   Grade
		wantOK bool
	}{
		{name: "upper case", raw: "A", want: GradeA, wantOK: true},
		{name: "lower case with spaces", raw: " s ", want: GradeS, wantOK: true},
		{name: "blank is absent", raw: "   ", want: GradeAbsent, wantOK: true},
		{name: "fail grade", raw: "F", want: GradeF, wantOK: true},
		{name: "unknown letter", raw: "D", want: GradeAbsent, wantOK: false},
		{name: "numeric value", raw: "0.8123", want: GradeAbsent, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseGrade(tt.raw)
			if ok != tt.wantOK {
				t.Errorf("ParseGrade(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseGrade(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNewSearchResult_OmitsExcludedSubject(t *testing.T) {
	z := 1.2345
	rank := 7

	tests := []struct {
		name       string
		record     CanonicalRecord
		wantKey    string
		missingKey string
	}{
		{
			name: "physical science keeps combined maths",
			record: CanonicalRecord{
				IndexNumber:   "100",
				Zone:          "North",
				Stream:        StreamPhysicalScience,
				CombinedMaths: GradeA,
				Chemistry:     GradeB,
				Physics:       GradeC,
				ZScore:        &z,
				Rank:          &rank,
			},
			wantKey:    "combined_maths",
			missingKey: "biology",
		},
		{
			name: "biological science keeps biology",
			record: CanonicalRecord{
				IndexNumber: "200",
				Zone:        "South",
				Stream:      StreamBiologicalScience,
				Biology:     GradeS,
				Chemistry:   GradeF,
				Physics:     GradeAbsent,
			},
			wantKey:    "biology",
			missingKey: "combined_maths",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(NewSearchResult(tt.record))
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			var payload map[string]interface{}
			if err := json.Unmarshal(data, &payload); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			if _, ok := payload[tt.wantKey]; !ok {
				t.Errorf("payload missing %q: %s", tt.wantKey, data)
			}
			if _, ok := payload[tt.missingKey]; ok {
				t.Errorf("payload should not contain %q: %s", tt.missingKey, data)
			}
		})
	}
}

func TestNewSearchResult_DoesNotShareRecordPointers(t *testing.T) {
	z := 0.5
	record := CanonicalRecord{IndexNumber: "1", Stream: StreamPhysicalScience, ZScore: &z}

	res := NewSearchResult(record)
	*res.ZScore = 9

	if *record.ZScore != 0.5 {
		t.Errorf("record ZScore mutated through result: %v", *record.ZScore)
	}
}

func TestGradeSummary(t *testing.T) {
	summary := NewGradeSummary()

	for _, subject := range Subjects {
		for _, g := range Grades {
			if n, ok := summary[subject][g]; !ok || n != 0 {
				t.Fatalf("summary[%s][%s] = %d, %v; want 0, true", subject, g, n, ok)
			}
		}
	}

	summary.Add(&CanonicalRecord{Stream: StreamPhysicalScience, CombinedMaths: GradeA, Chemistry: GradeA, Physics: GradeF})
	summary.Add(&CanonicalRecord{Stream: StreamBiologicalScience, Biology: GradeB, Chemistry: GradeA})

	if got := summary[SubjectChemistry][GradeA]; got != 2 {
		t.Errorf("Chemistry A = %d, want 2", got)
	}
	if got := summary.Total(SubjectBiology); got != 1 {
		t.Errorf("Biology total = %d, want 1", got)
	}
	if got := summary.Total(SubjectPhysics); got != 1 {
		t.Errorf("Physics total = %d, want 1 (absent grades are not counted)", got)
	}

	clone := summary.Clone()
	clone[SubjectChemistry][GradeA] = 99
	if summary[SubjectChemistry][GradeA] != 2 {
		t.Error("Clone() shares maps with the original")
	}
}

func TestGradeJSON(t *testing.T) {
	data, err := json.Marshal(CanonicalRecord{Biology: GradeAbsent, Chemistry: GradeC})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded CanonicalRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Biology != GradeAbsent || decoded.Chemistry != GradeC {
		t.Errorf("round trip = %+v", decoded)
	}

	var g Grade
	if err := json.Unmarshal([]byte(`"Q"`), &g); err == nil {
		t.Error("expected error for unknown grade")
	}
}

// TestErrorKinds tests error classification helpers
func TestErrorKinds(t *testing.T) {
	formatErr := &FormatError{Sheet: "Physical Science", Row: 4, Message: "unexpected grade"}
	wrapped := fmt.Errorf("load failed: %w", formatErr)

	if !IsFormatError(wrapped) {
		t.Error("IsFormatError should see through wrapping")
	}
	if IsAuthError(wrapped) || IsIOError(wrapped) || IsConfigError(wrapped) {
		t.Error("format error misclassified")
	}
	if formatErr.Error() != `format error: sheet "Physical Science" row 4: unexpected grade` {
		t.Errorf("Error() = %q", formatErr.Error())
	}

	ioErr := &IOError{Op: "open", Path: "x.xlsx", Cause: errors.New("denied")}
	if !ioErr.IsTransient() {
		t.Error("IOError should be transient")
	}
	if !errors.Is(ioErr, ioErr.Cause) {
		t.Error("IOError should unwrap to its cause")
	}

	authErr := &AuthError{Reason: AuthReasonEmptyCredentials}
	if authErr.IsTransient() {
		t.Error("AuthError should not be transient")
	}
}
