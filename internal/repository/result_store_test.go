package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"results-portal/internal/models"
	"results-portal/internal/testutil"
	"results-portal/pkg/logging"
	"results-portal/pkg/metrics"
)

func newTestStore() *ResultStore {
	return NewResultStore(logging.NewNopLogger(), metrics.NewTestCollector())
}

func loadSample(t *testing.T, store *ResultStore) {
	t.Helper()
	require.NoError(t, store.Load(context.Background(), testutil.SheetSource(testutil.SampleWorkbook())))
}

type failingSource struct{}

func (failingSource) Sheet(name string) (models.RawSheet, error) {
	return models.RawSheet{}, &models.IOError{Op: "read", Path: "results.xlsx", Cause: errors.New("disk gone")}
}

func TestResultStore_EmptyBeforeLoad(t *testing.T) {
	store := newTestStore()

	assert.False(t, store.HasData())
	assert.Equal(t, uint64(0), store.Version())
	assert.Empty(t, store.Zones())
	assert.Nil(t, store.Records())

	res, ok := store.Search("North", "100")
	assert.False(t, ok)
	assert.Nil(t, res)
}

func TestResultStore_EndToEnd(t *testing.T) {
	store := newTestStore()
	loadSample(t, store)

	assert.True(t, store.HasData())
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, []string{"North", "South"}, store.Zones())

	res, ok := store.Search("North", "100")
	require.True(t, ok)
	assert.Equal(t, models.StreamPhysicalScience, res.Stream)
	require.NotNil(t, res.CombinedMaths)
	assert.Equal(t, models.GradeA, *res.CombinedMaths)
	assert.Nil(t, res.Biology)
	assert.Equal(t, models.GradeA, res.Chemistry)
	assert.Equal(t, models.GradeB, res.Physics)
	require.NotNil(t, res.ZScore)
	assert.InDelta(t, 1.5, *res.ZScore, 1e-9)
	require.NotNil(t, res.Rank)
	assert.Equal(t, 3, *res.Rank)

	bio, ok := store.Search("South", "200")
	require.True(t, ok)
	assert.Nil(t, bio.CombinedMaths)
	require.NotNil(t, bio.Biology)
	assert.Equal(t, models.GradeB, *bio.Biology)

	_, ok = store.Search("South", "999")
	assert.False(t, ok)
}

func TestResultStore_ZonesSortedAndDistinct(t *testing.T) {
	store := newTestStore()
	sheets := testutil.ResultsWorkbook(
		[]testutil.Student{
			{Index: "1", Zone: "Western", Chemistry: "A", Physics: "A", Subject: "A"},
			{Index: "2", Zone: "Central", Chemistry: "B", Physics: "B", Subject: "B"},
		},
		[]testutil.Student{
			{Index: "3", Zone: "Western", Chemistry: "C", Physics: "C", Subject: "C"},
			{Index: "4", Zone: "Eastern", Chemistry: "S", Physics: "S", Subject: "S"},
		},
	)
	require.NoError(t, store.Load(context.Background(), testutil.SheetSource(sheets)))

	assert.Equal(t, []string{"Central", "Eastern", "Western"}, store.Zones())

	// physical science rows come first
	records := store.Records()
	require.Len(t, records, 4)
	assert.Equal(t, "1", records[0].IndexNumber)
	assert.Equal(t, "2", records[1].IndexNumber)
	assert.Equal(t, models.StreamBiologicalScience, records[2].Stream)
}

func TestResultStore_ZoneIsHardFilter(t *testing.T) {
	store := newTestStore()
	loadSample(t, store)

	_, ok := store.Search("South", "100")
	assert.False(t, ok, "index 100 only exists under North")
}

func TestResultStore_IndexRepresentation(t *testing.T) {
	store := newTestStore()
	loadSample(t, store)

	for _, query := range []string{"100", " 100 ", "100.0", "1.0E+02", "\t100\n"} {
		t.Run(query, func(t *testing.T) {
			res, ok := store.Search("North", query)
			require.True(t, ok)
			assert.Equal(t, "100", res.IndexNumber)
		})
	}

	_, ok := store.Search("North", "")
	assert.False(t, ok)
}

func TestResultStore_DuplicateReturnsFirst(t *testing.T) {
	store := newTestStore()
	sheets := testutil.ResultsWorkbook(
		[]testutil.Student{
			{Index: "7", Name: "First", Zone: "North", Chemistry: "A", Physics: "A", Subject: "A"},
			{Index: "7", Name: "Second", Zone: "North", Chemistry: "F", Physics: "F", Subject: "F"},
		},
		nil,
	)
	require.NoError(t, store.Load(context.Background(), testutil.SheetSource(sheets)))

	res, ok := store.Search("North", "7")
	require.True(t, ok)
	assert.Equal(t, "First", res.Name)
	assert.Equal(t, 2, store.Len())
}

func TestResultStore_FailedLoadKeepsPreviousTable(t *testing.T) {
	store := newTestStore()
	loadSample(t, store)
	version := store.Version()

	tests := []struct {
		name  string
		src   WorkbookSource
		check func(error) bool
	}{
		{
			name: "missing sheet",
			src: testutil.SheetSource(map[string][][]string{
				"Physical Science": testutil.SheetRows(models.StreamPhysicalScience, nil),
			}),
			check: models.IsFormatError,
		},
		{
			name: "bad grade",
			src: testutil.SheetSource(testutil.ResultsWorkbook(
				[]testutil.Student{{Index: "9", Zone: "North", Chemistry: "Z", Physics: "A", Subject: "A"}},
				nil,
			)),
			check: models.IsFormatError,
		},
		{
			name:  "unreadable",
			src:   failingSource{},
			check: models.IsIOError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Load(context.Background(), tt.src)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)

			assert.Equal(t, version, store.Version())
			assert.Equal(t, []string{"North", "South"}, store.Zones())
			_, ok := store.Search("North", "100")
			assert.True(t, ok)
		})
	}
}

func TestResultStore_ReloadReplacesTable(t *testing.T) {
	store := newTestStore()
	loadSample(t, store)

	sheets := testutil.ResultsWorkbook(
		[]testutil.Student{{Index: "500", Zone: "East", Chemistry: "A", Physics: "A", Subject: "A"}},
		nil,
	)
	require.NoError(t, store.Load(context.Background(), testutil.SheetSource(sheets)))

	assert.Equal(t, uint64(2), store.Version())
	assert.Equal(t, []string{"East"}, store.Zones())
	_, ok := store.Search("North", "100")
	assert.False(t, ok)
}

func TestResultStore_GradeSummary(t *testing.T) {
	store := newTestStore()
	sheets := testutil.ResultsWorkbook(
		[]testutil.Student{
			{Index: "1", Zone: "North", Chemistry: "A", Physics: "B", Subject: "A"},
			{Index: "2", Zone: "North", Chemistry: "A", Physics: "", Subject: "C"},
		},
		[]testutil.Student{
			{Index: "3", Zone: "North", Chemistry: "F", Physics: "B", Subject: "S"},
			{Index: "4", Zone: "South", Chemistry: "A", Physics: "A", Subject: "A"},
		},
	)
	require.NoError(t, store.Load(context.Background(), testutil.SheetSource(sheets)))

	north := store.GradeSummary("North")
	assert.Equal(t, 2, north[models.SubjectChemistry][models.GradeA])
	assert.Equal(t, 1, north[models.SubjectChemistry][models.GradeF])
	assert.Equal(t, 0, north[models.SubjectChemistry][models.GradeS])
	assert.Equal(t, 2, north[models.SubjectPhysics][models.GradeB])
	assert.Equal(t, 2, north.Total(models.SubjectPhysics))
	assert.Equal(t, 1, north[models.SubjectCombinedMaths][models.GradeA])
	assert.Equal(t, 1, north[models.SubjectCombinedMaths][models.GradeC])
	assert.Equal(t, 1, north[models.SubjectBiology][models.GradeS])

	// every subject and grade is present even with no rows
	empty := store.GradeSummary("Nowhere")
	for _, subject := range models.Subjects {
		require.Len(t, empty[subject], len(models.Grades))
		assert.Equal(t, 0, empty.Total(subject))
	}

	overall := store.OverallGradeSummary()
	assert.Equal(t, 4, overall.Total(models.SubjectChemistry))
	assert.Equal(t, 2, overall.Total(models.SubjectCombinedMaths))
	assert.Equal(t, 2, overall.Total(models.SubjectBiology))
	assert.Equal(t, 3, overall[models.SubjectChemistry][models.GradeA])
}

func TestResultStore_ConcurrentReadsDuringLoad(t *testing.T) {
	store := newTestStore()
	loadSample(t, store)

	next := testutil.SheetSource(testutil.ResultsWorkbook(
		[]testutil.Student{{Index: "100", Zone: "North", Chemistry: "F", Physics: "F", Subject: "F"}},
		[]testutil.Student{{Index: "200", Zone: "South", Chemistry: "F", Physics: "F", Subject: "F"}},
	))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				res, ok := store.Search("North", "100")
				if !ok {
					t.Error("record disappeared during reload")
					return
				}
				if res.Chemistry != models.GradeA && res.Chemistry != models.GradeF {
					t.Errorf("unexpected grade %q", res.Chemistry)
					return
				}
			}
		}()
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, store.Load(context.Background(), next))
	}
	wg.Wait()
}
