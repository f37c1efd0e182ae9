package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"results-portal/internal/models"
	"results-portal/internal/testutil"
)

func TestNormalize_PhysicalScience(t *testing.T) {
	raw := testutil.RawSheet(models.StreamPhysicalScience, []testutil.Student{
		{Index: " 100 ", Name: "A. Perera", Zone: "North", School: "Royal College", Chemistry: "A", Physics: "b", Subject: "C", ZScore: "1.2345", Rank: "12"},
		{Index: "101.0", Name: "C. Fernando", Zone: "East", School: "Trinity College", Chemistry: "F", Physics: "S", Subject: "", ZScore: "", Rank: ""},
	})

	records, err := Normalize(raw, models.StreamPhysicalScience)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "100", first.IndexNumber)
	assert.Equal(t, "A. Perera", first.Name)
	assert.Equal(t, "North", first.Zone)
	assert.Equal(t, models.StreamPhysicalScience, first.Stream)
	assert.Equal(t, "Royal College", first.School)
	assert.Equal(t, models.GradeA, first.Chemistry)
	assert.Equal(t, models.GradeB, first.Physics)
	assert.Equal(t, models.GradeC, first.CombinedMaths)
	assert.Equal(t, models.GradeAbsent, first.Biology)
	require.NotNil(t, first.ZScore)
	assert.InDelta(t, 1.2345, *first.ZScore, 1e-9)
	require.NotNil(t, first.Rank)
	assert.Equal(t, 12, *first.Rank)

	second := records[1]
	assert.Equal(t, "101", second.IndexNumber)
	assert.Equal(t, models.GradeAbsent, second.CombinedMaths)
	assert.Nil(t, second.ZScore)
	assert.Nil(t, second.Rank)
}

func TestNormalize_BiologicalScience(t *testing.T) {
	raw := testutil.RawSheet(models.StreamBiologicalScience, []testutil.Student{
		{Index: "200", Name: "B. Silva", Zone: "South", School: "Visakha Vidyalaya", Chemistry: "C", Physics: "S", Subject: "A", ZScore: "-0.5", Rank: "40"},
	})

	records, err := Normalize(raw, models.StreamBiologicalScience)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, models.GradeA, rec.Biology)
	assert.Equal(t, models.GradeAbsent, rec.CombinedMaths)
	assert.Equal(t, models.StreamBiologicalScience, rec.Stream)
	assert.InDelta(t, -0.5, *rec.ZScore, 1e-9)
}

func TestResolveLayout_Headers(t *testing.T) {
	raw := testutil.RawSheet(models.StreamPhysicalScience, nil)

	layout, err := ResolveLayout(raw, models.StreamPhysicalScience)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Index_Number", "Name_with_Initial", "Zone", "Stream", "School",
		"Chemistry", "Physics", "Combined_Maths", "Z-Score", "Rank",
	}, layout.Headers())
}

func TestNormalize_SkipsBlankRows(t *testing.T) {
	raw := testutil.RawSheet(models.StreamPhysicalScience, []testutil.Student{
		{Index: "100", Name: "A", Zone: "North", School: "X", Chemistry: "A", Physics: "A", Subject: "A"},
	})
	raw.Rows = append(raw.Rows, []string{}, []string{"", " ", ""})

	records, err := Normalize(raw, models.StreamPhysicalScience)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestNormalize_FormatErrors(t *testing.T) {
	valid := testutil.Student{Index: "100", Name: "A", Zone: "North", School: "X", Chemistry: "A", Physics: "B", Subject: "C", ZScore: "1.0", Rank: "1"}

	tests := []struct {
		name   string
		sheet  func() models.RawSheet
		errRow int
	}{
		{
			name: "too few header rows",
			sheet: func() models.RawSheet {
				return models.RawSheet{Name: "Physical Science", Rows: [][]string{{"title"}, {"", "Z-Score", "Rank"}}}
			},
		},
		{
			name: "too few raw columns",
			sheet: func() models.RawSheet {
				return models.RawSheet{Name: "Physical Science", Rows: [][]string{{"title"}, {"", "Rank"}, {"Index Number", ""}}}
			},
		},
		{
			name: "too few columns after drops",
			sheet: func() models.RawSheet {
				return models.RawSheet{Name: "Physical Science", Rows: [][]string{
					{"title"},
					{"", "", "", "Z-Score", "Rank"},
					{"Index Number", "Zone", "Total", "", ""},
				}}
			},
		},
		{
			name: "missing required column",
			sheet: func() models.RawSheet {
				raw := testutil.RawSheet(models.StreamPhysicalScience, []testutil.Student{valid})
				raw.Rows[2][2] = "Region"
				return raw
			},
		},
		{
			name: "result columns out of order",
			sheet: func() models.RawSheet {
				raw := testutil.RawSheet(models.StreamPhysicalScience, []testutil.Student{valid})
				// swap the grade and the z-score cells of the first student
				row := raw.Rows[3]
				row[11], row[13] = row[13], row[11]
				return raw
			},
			errRow: 4,
		},
		{
			name: "grade outside the closed set",
			sheet: func() models.RawSheet {
				bad := valid
				bad.Chemistry = "AB"
				return testutil.RawSheet(models.StreamPhysicalScience, []testutil.Student{valid, bad})
			},
			errRow: 5,
		},
		{
			name: "fractional rank",
			sheet: func() models.RawSheet {
				bad := valid
				bad.Rank = "2.5"
				return testutil.RawSheet(models.StreamPhysicalScience, []testutil.Student{bad})
			},
			errRow: 4,
		},
		{
			name: "missing index number",
			sheet: func() models.RawSheet {
				bad := valid
				bad.Index = "  "
				return testutil.RawSheet(models.StreamPhysicalScience, []testutil.Student{bad})
			},
			errRow: 4,
		},
		{
			name: "missing zone",
			sheet: func() models.RawSheet {
				bad := valid
				bad.Zone = ""
				return testutil.RawSheet(models.StreamPhysicalScience, []testutil.Student{bad})
			},
			errRow: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.sheet(), models.StreamPhysicalScience)
			require.Error(t, err)

			var formatErr *models.FormatError
			require.ErrorAs(t, err, &formatErr)
			assert.Equal(t, "Physical Science", formatErr.Sheet)
			assert.Equal(t, tt.errRow, formatErr.Row)
		})
	}
}

func TestNormalize_UnknownStream(t *testing.T) {
	_, err := Normalize(testutil.RawSheet(models.StreamPhysicalScience, nil), models.Stream("Arts"))
	assert.Error(t, err)
}

func TestResolveLayout_ColumnCountMessages(t *testing.T) {
	tests := []struct {
		name    string
		rows    [][]string
		message string
	}{
		{
			name:    "narrower than the trailing columns",
			rows:    [][]string{{"title"}, {"", "Rank"}, {"Index Number", ""}},
			message: "expected at least 3 columns, found 2",
		},
		{
			name: "too few after drops",
			rows: [][]string{
				{"title"},
				{"", "", "", "Z-Score", "Rank"},
				{"Index Number", "Zone", "Total", "", ""},
			},
			message: "expected at least 6 columns after dropping component columns, found 4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveLayout(models.RawSheet{Name: "Physical Science", Rows: tt.rows}, models.StreamPhysicalScience)
			var formatErr *models.FormatError
			require.ErrorAs(t, err, &formatErr)
			assert.Equal(t, tt.message, formatErr.Message)
		})
	}
}
