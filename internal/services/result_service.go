package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"results-portal/internal/auth"
	"results-portal/internal/models"
	"results-portal/internal/repository"
	"results-portal/internal/workbook"
	"results-portal/pkg/logging"
	"results-portal/pkg/metrics"
)

// UploadResult summarizes a successfully loaded workbook
type UploadResult struct {
	Filename    string        `json:"filename"`
	SizeBytes   int64         `json:"size_bytes"`
	Records     int           `json:"records"`
	Zones       []string      `json:"zones"`
	Version     uint64        `json:"version"`
	UploadedAt  time.Time     `json:"uploaded_at"`
	ProcessTime time.Duration `json:"-"`
}

// Status describes the currently published table.
// LastUpdated is the commit time of the workbook the table was built from.
type Status struct {
	HasData     bool       `json:"has_data"`
	LastUpdated *time.Time `json:"last_updated"`
	LoadedAt    *time.Time `json:"loaded_at"`
	RecordCount int        `json:"record_count"`
	ZoneCount   int        `json:"zone_count"`
	Version     uint64     `json:"version"`
}

// ResultService is the entry point for the presentation layer.
// It enforces that queries only run once a table has been loaded and that
// uploads never interleave. Before answering, it reloads the table when the
// stored workbook was replaced by another process sharing the repository.
type ResultService struct {
	verifier     *auth.Verifier
	store        *repository.ResultStore
	workbooks    repository.WorkbookRepository
	summaries    *cache.Cache
	uploadMu     sync.Mutex
	syncInterval time.Duration
	lastSync     atomic.Int64
	failedSource time.Time // guarded by uploadMu
	logger       *logging.StructuredLogger
	metrics      *metrics.Collector
}

// NewResultService creates a new result service.
// syncInterval bounds how often queries check the repository for a newer
// workbook; zero checks on every query.
func NewResultService(
	verifier *auth.Verifier,
	store *repository.ResultStore,
	workbooks repository.WorkbookRepository,
	summaryTTL time.Duration,
	syncInterval time.Duration,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ResultService {
	return &ResultService{
		verifier:     verifier,
		store:        store,
		workbooks:    workbooks,
		summaries:    cache.New(summaryTTL, 2*summaryTTL),
		syncInterval: syncInterval,
		logger:       logger,
		metrics:      metricsCollector,
	}
}

// Login checks administrator credentials
func (s *ResultService) Login(ctx context.Context, username, password string) error {
	ok, err := s.verifier.Login(username, password)
	if err == nil && !ok {
		err = &models.AuthError{Reason: models.AuthReasonInvalidCredentials}
	}
	if err != nil {
		fields := logging.Fields{"username": username}
		var authErr *models.AuthError
		if errors.As(err, &authErr) {
			fields["reason"] = string(authErr.Reason)
		}
		s.logger.Warn(ctx, "[AUTH] Login rejected", fields)
		return err
	}

	s.logger.Info(ctx, "[AUTH] Administrator logged in", logging.Fields{
		"username": username,
	})
	return nil
}

// Upload replaces the current table with the workbook in body.
// The upload is staged, normalized, persisted and only then published; on
// any failure the previous workbook and table stay current.
func (s *ResultService) Upload(ctx context.Context, filename string, body io.Reader) (*UploadResult, error) {
	start := time.Now()

	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		s.metrics.RecordUpload("rejected")
		return nil, &models.FormatError{Message: fmt.Sprintf("unsupported file type %q, expected .xlsx", filepath.Ext(filename))}
	}

	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	s.logger.Info(ctx, "[UPLOAD] Receiving workbook", logging.Fields{
		"stage":    "stage",
		"filename": filename,
	})

	staged, err := s.workbooks.Stage(ctx, body)
	if err != nil {
		return nil, s.uploadFailed(ctx, filename, "stage", err)
	}
	s.metrics.UploadSizeBytes.Observe(float64(staged.Size))

	prepared, err := s.prepare(ctx, staged.Path)
	if err != nil {
		s.workbooks.Discard(ctx, staged)
		return nil, s.uploadFailed(ctx, filename, "normalize", err)
	}

	committedAt, err := s.workbooks.Commit(ctx, staged)
	if err != nil {
		s.workbooks.Discard(ctx, staged)
		return nil, s.uploadFailed(ctx, filename, "commit", err)
	}

	prepared.SetSourceUpdated(committedAt)
	s.publish(ctx, prepared)

	result := &UploadResult{
		Filename:    filename,
		SizeBytes:   staged.Size,
		Records:     prepared.Len(),
		Zones:       prepared.Zones(),
		Version:     s.store.Version(),
		UploadedAt:  committedAt.UTC(),
		ProcessTime: time.Since(start),
	}

	s.metrics.RecordUpload("success")
	s.metrics.UploadDuration.Observe(result.ProcessTime.Seconds())
	s.logger.Info(ctx, "[UPLOAD] Workbook published", logging.Fields{
		"stage":       "publish",
		"filename":    filename,
		"records":     result.Records,
		"zones":       len(result.Zones),
		"version":     result.Version,
		"duration_ms": result.ProcessTime.Milliseconds(),
	})

	return result, nil
}

func (s *ResultService) uploadFailed(ctx context.Context, filename, stage string, err error) error {
	outcome := "failed"
	if models.IsFormatError(err) {
		outcome = "rejected"
	}
	s.metrics.RecordUpload(outcome)
	s.logger.Error(ctx, "[UPLOAD_ERROR] Upload failed, previous results kept", logging.Fields{
		"stage":    stage,
		"filename": filename,
	}, err)
	return err
}

func (s *ResultService) prepare(ctx context.Context, path string) (*repository.PreparedTable, error) {
	wb, err := workbook.Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	return s.store.Prepare(ctx, wb)
}

func (s *ResultService) publish(ctx context.Context, prepared *repository.PreparedTable) {
	s.store.Publish(ctx, prepared)
	s.summaries.Flush()
}

// Restore loads the persisted workbook, if any, into the store.
// Having nothing persisted yet is not an error.
func (s *ResultService) Restore(ctx context.Context) error {
	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	return s.reload(ctx, "[RESTORE]")
}

// reload publishes the stored workbook. Callers hold uploadMu.
func (s *ResultService) reload(ctx context.Context, tag string) error {
	stored, err := s.workbooks.Open(ctx)
	if errors.Is(err, repository.ErrNoWorkbook) {
		s.logger.Info(ctx, tag+" No persisted workbook, waiting for upload", logging.Fields{})
		return nil
	}
	if err != nil {
		return err
	}
	defer stored.Close()

	prepared, err := s.prepare(ctx, stored.Path)
	if err != nil {
		return err
	}
	prepared.SetSourceUpdated(stored.UpdatedAt)
	s.publish(ctx, prepared)

	s.logger.Info(ctx, tag+" Persisted workbook loaded", logging.Fields{
		"records":    prepared.Len(),
		"version":    s.store.Version(),
		"updated_at": stored.UpdatedAt,
	})
	return nil
}

// Sync reloads the table when the stored workbook differs from the one the
// current table was built from. A workbook that was rejected as malformed is
// not retried until it is replaced.
func (s *ResultService) Sync(ctx context.Context) error {
	updated, ok, err := s.workbooks.LastUpdated(ctx)
	if err != nil {
		return err
	}
	if !ok || updated.Equal(s.store.SourceUpdated()) {
		return nil
	}

	// an upload in progress publishes its own table
	if !s.uploadMu.TryLock() {
		return nil
	}
	defer s.uploadMu.Unlock()

	if updated.Equal(s.store.SourceUpdated()) || updated.Equal(s.failedSource) {
		return nil
	}

	if err := s.reload(ctx, "[SYNC]"); err != nil {
		// only a broken workbook is skipped; I/O failures are retried
		if models.IsFormatError(err) {
			s.failedSource = updated
		}
		s.logger.Error(ctx, "[SYNC_ERROR] Stored workbook could not be loaded, keeping current table", logging.Fields{
			"updated_at": updated,
		}, err)
		return err
	}
	return nil
}

// maybeSync runs Sync at most once per syncInterval. Query paths keep
// serving the current table when the check fails.
func (s *ResultService) maybeSync(ctx context.Context) {
	if s.syncInterval > 0 {
		now := time.Now().UnixNano()
		last := s.lastSync.Load()
		if now-last < int64(s.syncInterval) || !s.lastSync.CompareAndSwap(last, now) {
			return
		}
	}

	if err := s.Sync(ctx); err != nil && !models.IsFormatError(err) {
		s.logger.Warn(ctx, "[SYNC_WARNING] Could not check stored workbook", logging.Fields{
			"error": err.Error(),
		})
	}
}

// HasData reports whether a table is available for queries
func (s *ResultService) HasData() bool {
	return s.store.HasData()
}

// Zones returns the sorted distinct zones
func (s *ResultService) Zones(ctx context.Context) ([]string, error) {
	s.maybeSync(ctx)
	if !s.store.HasData() {
		return nil, models.ErrNoData
	}
	return s.store.Zones(), nil
}

// Search looks up a student's result. A miss is reported through the
// boolean, not as an error.
func (s *ResultService) Search(ctx context.Context, zone, indexNumber string) (*models.SearchResult, bool, error) {
	s.maybeSync(ctx)
	if !s.store.HasData() {
		s.metrics.RecordSearch("no_data")
		return nil, false, models.ErrNoData
	}

	result, ok := s.store.Search(zone, indexNumber)
	if !ok {
		s.metrics.RecordSearch("not_found")
		s.logger.Debug(ctx, "[SEARCH] No matching result", logging.Fields{
			"zone":         zone,
			"index_number": indexNumber,
		})
		return nil, false, nil
	}

	s.metrics.RecordSearch("found")
	return result, true, nil
}

// GradeSummary returns grade counts per subject for a zone
func (s *ResultService) GradeSummary(ctx context.Context, zone string) (models.GradeSummary, error) {
	return s.cachedSummary(ctx, "zone/"+zone, func() models.GradeSummary {
		return s.store.GradeSummary(zone)
	})
}

// OverallGradeSummary returns grade counts per subject across all zones
func (s *ResultService) OverallGradeSummary(ctx context.Context) (models.GradeSummary, error) {
	return s.cachedSummary(ctx, "overall", s.store.OverallGradeSummary)
}

func (s *ResultService) cachedSummary(ctx context.Context, scope string, compute func() models.GradeSummary) (models.GradeSummary, error) {
	s.maybeSync(ctx)
	if !s.store.HasData() {
		return nil, models.ErrNoData
	}

	key := fmt.Sprintf("v%d/%s", s.store.Version(), scope)
	if cached, found := s.summaries.Get(key); found {
		s.metrics.RecordSummaryCache(true)
		return cached.(models.GradeSummary).Clone(), nil
	}

	s.metrics.RecordSummaryCache(false)
	summary := compute()
	s.summaries.SetDefault(key, summary)

	s.logger.Debug(ctx, "[SUMMARY] Grade summary computed", logging.Fields{
		"cache_key": key,
	})
	return summary.Clone(), nil
}

// Status reports whether data is loaded and when its workbook was last
// updated. It always checks the repository first, so the reported workbook
// is the one being served.
func (s *ResultService) Status(ctx context.Context) (*Status, error) {
	if err := s.Sync(ctx); err != nil && !models.IsFormatError(err) {
		return nil, err
	}

	status := &Status{
		HasData:     s.store.HasData(),
		RecordCount: s.store.Len(),
		ZoneCount:   len(s.store.Zones()),
		Version:     s.store.Version(),
	}
	if updated := s.store.SourceUpdated(); status.HasData && !updated.IsZero() {
		status.LastUpdated = &updated
	}
	if loaded := s.store.LoadedAt(); status.HasData {
		status.LoadedAt = &loaded
	}
	return status, nil
}

// Error categories reported to users
const (
	CategoryConfig   = "config"
	CategoryAuth     = "auth"
	CategoryFormat   = "format"
	CategoryIO       = "io"
	CategoryNoData   = "no_data"
	CategoryNotFound = "not_found"
	CategoryInternal = "internal"
)

var userMessages = map[string]string{
	CategoryConfig:   "The service is not configured. Please contact the administrator.",
	CategoryAuth:     "Invalid username or password.",
	CategoryFormat:   "The uploaded file is not a valid results workbook. Please check the file and try again.",
	CategoryIO:       "The results file could not be read or saved. Please try the upload again.",
	CategoryNoData:   "No data available. Please contact the administrator.",
	CategoryNotFound: "No results found for the given index number and zone.",
	CategoryInternal: "Something went wrong. Please try again.",
}

// UserMessage maps an error to its category and the message shown to users.
// Internal details such as column positions never reach the message.
func UserMessage(err error) (category, message string) {
	switch {
	case models.IsConfigError(err):
		category = CategoryConfig
	case models.IsAuthError(err):
		category = CategoryAuth
	case models.IsFormatError(err):
		category = CategoryFormat
	case models.IsIOError(err):
		category = CategoryIO
	case errors.Is(err, models.ErrNoData):
		category = CategoryNoData
	default:
		category = CategoryInternal
	}
	return category, userMessages[category]
}

// NotFoundMessage is shown when a search has no match
func NotFoundMessage() (category, message string) {
	return CategoryNotFound, userMessages[CategoryNotFound]
}
