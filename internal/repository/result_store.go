package repository

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"results-portal/internal/models"
	"results-portal/internal/normalizer"
	"results-portal/pkg/logging"
	"results-portal/pkg/metrics"
)

// WorkbookSource provides the raw sheets of an uploaded workbook
type WorkbookSource interface {
	Sheet(name string) (models.RawSheet, error)
}

type recordKey struct {
	zone  string
	index string
}

// snapshot is an immutable, fully merged result table
type snapshot struct {
	version  uint64
	loadedAt time.Time
	source   time.Time
	records  []models.CanonicalRecord
	byKey    map[recordKey]int
	zones    []string
	counts   map[models.Stream]int
}

// ResultStore holds the current result table.
// Tables are built off to the side by Prepare and made current by Publish
// with a single pointer swap, so readers never see a partial table.
type ResultStore struct {
	current atomic.Pointer[snapshot]
	version atomic.Uint64
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewResultStore creates an empty result store
func NewResultStore(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ResultStore {
	return &ResultStore{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// PreparedTable is a fully normalized table that has not been published yet
type PreparedTable struct {
	snap *snapshot
}

// Len returns the number of records in the prepared table
func (p *PreparedTable) Len() int {
	return len(p.snap.records)
}

// SetSourceUpdated records when the workbook the table was built from was
// last committed. Replicas compare it against the stored workbook.
func (p *PreparedTable) SetSourceUpdated(t time.Time) {
	p.snap.source = t
}

// Zones returns the sorted zones of the prepared table
func (p *PreparedTable) Zones() []string {
	out := make([]string, len(p.snap.zones))
	copy(out, p.snap.zones)
	return out
}

// Load normalizes both stream sheets of src and replaces the current table.
// On any error the previous table is left in place.
func (s *ResultStore) Load(ctx context.Context, src WorkbookSource) error {
	prepared, err := s.Prepare(ctx, src)
	if err != nil {
		return err
	}
	s.Publish(ctx, prepared)
	return nil
}

// Prepare normalizes both stream sheets concurrently and merges them into a
// new table without making it visible to readers
func (s *ResultStore) Prepare(ctx context.Context, src WorkbookSource) (*PreparedTable, error) {
	start := time.Now()

	s.logger.Info(ctx, "[LOAD] Starting workbook normalization", logging.Fields{
		"stage": "normalize",
	})

	normalized := make([][]models.CanonicalRecord, len(models.Streams))
	g, _ := errgroup.WithContext(ctx)
	for i, stream := range models.Streams {
		i, stream := i, stream
		g.Go(func() error {
			raw, err := src.Sheet(stream.SheetName())
			if err != nil {
				return err
			}
			records, err := normalizer.Normalize(raw, stream)
			if err != nil {
				return err
			}
			normalized[i] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.metrics.RecordNormalizationError(errorType(err))
		s.logger.Error(ctx, "[LOAD_ERROR] Workbook rejected, keeping previous table", logging.Fields{
			"stage":       "normalize",
			"duration_ms": time.Since(start).Milliseconds(),
		}, err)
		return nil, err
	}

	snap := s.build(ctx, normalized)

	s.logger.Info(ctx, "[LOAD] Workbook normalized", logging.Fields{
		"stage":       "merge",
		"records":     len(snap.records),
		"zones":       len(snap.zones),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return &PreparedTable{snap: snap}, nil
}

// Publish makes a prepared table current with a single pointer swap
func (s *ResultStore) Publish(ctx context.Context, prepared *PreparedTable) {
	next := prepared.snap
	next.version = s.version.Add(1)
	next.loadedAt = time.Now()
	s.current.Store(next)

	s.metrics.SnapshotVersion.Set(float64(next.version))
	for _, stream := range models.Streams {
		s.metrics.SetRecordsLoaded(string(stream), next.counts[stream])
	}

	s.logger.Info(ctx, "[LOAD] Result table published", logging.Fields{
		"stage":   "publish",
		"version": next.version,
		"records": len(next.records),
		"zones":   len(next.zones),
	})
}

func (s *ResultStore) build(ctx context.Context, normalized [][]models.CanonicalRecord) *snapshot {
	total := 0
	for _, part := range normalized {
		total += len(part)
	}

	snap := &snapshot{
		records: make([]models.CanonicalRecord, 0, total),
		byKey:   make(map[recordKey]int, total),
		counts:  make(map[models.Stream]int, len(models.Streams)),
	}

	zoneSet := make(map[string]struct{})
	duplicates := 0
	for _, part := range normalized {
		for _, rec := range part {
			key := recordKey{zone: rec.Zone, index: rec.IndexNumber}
			if _, exists := snap.byKey[key]; exists {
				duplicates++
				s.logger.Warn(ctx, "[LOAD_WARNING] Duplicate index number in zone, keeping first", logging.Fields{
					"zone":         rec.Zone,
					"index_number": rec.IndexNumber,
					"stream":       rec.Stream,
				})
			} else {
				snap.byKey[key] = len(snap.records)
			}

			snap.records = append(snap.records, rec)
			snap.counts[rec.Stream]++
			if rec.Zone != "" {
				zoneSet[rec.Zone] = struct{}{}
			}
		}
	}

	snap.zones = make([]string, 0, len(zoneSet))
	for zone := range zoneSet {
		snap.zones = append(snap.zones, zone)
	}
	sort.Strings(snap.zones)

	if duplicates > 0 {
		s.logger.Warn(ctx, "[LOAD_WARNING] Workbook contains duplicate entries", logging.Fields{
			"duplicates": duplicates,
		})
	}

	return snap
}

func errorType(err error) string {
	switch {
	case models.IsFormatError(err):
		return "format"
	case models.IsIOError(err):
		return "io"
	default:
		return "other"
	}
}

// HasData reports whether a table has been loaded
func (s *ResultStore) HasData() bool {
	return s.current.Load() != nil
}

// Version returns the version of the current table, zero before the first load
func (s *ResultStore) Version() uint64 {
	if snap := s.current.Load(); snap != nil {
		return snap.version
	}
	return 0
}

// LoadedAt returns when the current table was published
func (s *ResultStore) LoadedAt() time.Time {
	if snap := s.current.Load(); snap != nil {
		return snap.loadedAt
	}
	return time.Time{}
}

// SourceUpdated returns the commit time of the workbook behind the current
// table, zero when unknown
func (s *ResultStore) SourceUpdated() time.Time {
	if snap := s.current.Load(); snap != nil {
		return snap.source
	}
	return time.Time{}
}

// Len returns the number of records in the current table
func (s *ResultStore) Len() int {
	if snap := s.current.Load(); snap != nil {
		return len(snap.records)
	}
	return 0
}

// Records returns a copy of the current table in canonical order
func (s *ResultStore) Records() []models.CanonicalRecord {
	snap := s.current.Load()
	if snap == nil {
		return nil
	}
	out := make([]models.CanonicalRecord, len(snap.records))
	for i := range snap.records {
		out[i] = snap.records[i].Clone()
	}
	return out
}

// Zones returns the distinct non-empty zones, sorted ascending
func (s *ResultStore) Zones() []string {
	snap := s.current.Load()
	if snap == nil {
		return []string{}
	}
	out := make([]string, len(snap.zones))
	copy(out, snap.zones)
	return out
}

// Search finds a student by zone and index number.
// Zone must match exactly; the index number is compared in canonical form.
func (s *ResultStore) Search(zone, indexNumber string) (*models.SearchResult, bool) {
	snap := s.current.Load()
	if snap == nil {
		return nil, false
	}

	idx := models.CanonicalIndex(indexNumber)
	if idx == "" {
		return nil, false
	}

	pos, ok := snap.byKey[recordKey{zone: zone, index: idx}]
	if !ok {
		return nil, false
	}
	return models.NewSearchResult(snap.records[pos]), true
}

// GradeSummary counts grades per subject within a zone
func (s *ResultStore) GradeSummary(zone string) models.GradeSummary {
	summary := models.NewGradeSummary()
	snap := s.current.Load()
	if snap == nil {
		return summary
	}
	for i := range snap.records {
		if snap.records[i].Zone == zone {
			summary.Add(&snap.records[i])
		}
	}
	return summary
}

// OverallGradeSummary counts grades per subject across every zone
func (s *ResultStore) OverallGradeSummary() models.GradeSummary {
	summary := models.NewGradeSummary()
	snap := s.current.Load()
	if snap == nil {
		return summary
	}
	for i := range snap.records {
		summary.Add(&snap.records[i])
	}
	return summary
}
