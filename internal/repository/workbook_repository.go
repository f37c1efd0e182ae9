package repository

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"results-portal/internal/models"
	"results-portal/pkg/database"
	"results-portal/pkg/logging"
)

// ErrNoWorkbook is returned by Open when nothing has been committed yet
var ErrNoWorkbook = errors.New("no workbook has been uploaded")

// WorkbookRepository persists the single current workbook.
// An upload is staged first, loaded from the staged path, and only committed
// once the load succeeds. Commit returns the same timestamp LastUpdated and
// Open report afterwards, so a reader can tell whether its table is current.
type WorkbookRepository interface {
	Stage(ctx context.Context, r io.Reader) (*StagedWorkbook, error)
	Commit(ctx context.Context, staged *StagedWorkbook) (time.Time, error)
	Discard(ctx context.Context, staged *StagedWorkbook)
	Open(ctx context.Context) (*StoredWorkbook, error)
	LastUpdated(ctx context.Context) (time.Time, bool, error)
}

// StagedWorkbook is an uploaded file that has not yet become current
type StagedWorkbook struct {
	Path string
	Size int64
}

// StoredWorkbook is a readable copy of the current workbook.
// Close releases the copy.
type StoredWorkbook struct {
	Path      string
	UpdatedAt time.Time
	cleanup   func()
}

func (w *StoredWorkbook) Close() {
	if w.cleanup != nil {
		w.cleanup()
	}
}

func stageTo(dir, pattern string, r io.Reader) (*StagedWorkbook, error) {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, &models.IOError{Op: "stage", Path: dir, Cause: err}
	}

	size, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, &models.IOError{Op: "stage", Path: tmp.Name(), Cause: err}
	}

	return &StagedWorkbook{Path: tmp.Name(), Size: size}, nil
}

func removeStaged(ctx context.Context, logger *logging.StructuredLogger, staged *StagedWorkbook) {
	if staged == nil {
		return
	}
	if err := os.Remove(staged.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn(ctx, "[WORKBOOK_WARNING] Failed to remove staged workbook", logging.Fields{
			"path":  staged.Path,
			"error": err.Error(),
		})
	}
}

// fileWorkbookRepository keeps the workbook at a fixed path on disk
type fileWorkbookRepository struct {
	path   string
	logger *logging.StructuredLogger
}

// NewFileWorkbookRepository stores the current workbook at path
func NewFileWorkbookRepository(path string, logger *logging.StructuredLogger) WorkbookRepository {
	return &fileWorkbookRepository{
		path:   path,
		logger: logger,
	}
}

// Stage writes the upload next to the current workbook so Commit is a rename
func (r *fileWorkbookRepository) Stage(ctx context.Context, body io.Reader) (*StagedWorkbook, error) {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &models.IOError{Op: "stage", Path: dir, Cause: err}
	}
	return stageTo(dir, ".upload-*.xlsx", body)
}

// Commit moves the staged file into place and stamps it with the commit time.
// The file system's coarse write timestamps could otherwise give two quick
// uploads the same modification time.
func (r *fileWorkbookRepository) Commit(ctx context.Context, staged *StagedWorkbook) (time.Time, error) {
	if err := os.Rename(staged.Path, r.path); err != nil {
		return time.Time{}, &models.IOError{Op: "commit", Path: r.path, Cause: err}
	}

	now := time.Now()
	if err := os.Chtimes(r.path, now, now); err != nil {
		return time.Time{}, &models.IOError{Op: "commit", Path: r.path, Cause: err}
	}
	info, err := os.Stat(r.path)
	if err != nil {
		return time.Time{}, &models.IOError{Op: "commit", Path: r.path, Cause: err}
	}

	r.logger.Info(ctx, "[WORKBOOK] Current workbook replaced", logging.Fields{
		"path":       r.path,
		"size_bytes": staged.Size,
	})
	return info.ModTime(), nil
}

func (r *fileWorkbookRepository) Discard(ctx context.Context, staged *StagedWorkbook) {
	removeStaged(ctx, r.logger, staged)
}

func (r *fileWorkbookRepository) Open(ctx context.Context) (*StoredWorkbook, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoWorkbook
		}
		return nil, &models.IOError{Op: "stat", Path: r.path, Cause: err}
	}
	return &StoredWorkbook{Path: r.path, UpdatedAt: info.ModTime()}, nil
}

func (r *fileWorkbookRepository) LastUpdated(ctx context.Context) (time.Time, bool, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, &models.IOError{Op: "stat", Path: r.path, Cause: err}
	}
	return info.ModTime(), true, nil
}

// postgresWorkbookRepository keeps the workbook in the current_workbook table
// so several server replicas serve the same upload. Replicas notice a newer
// upload through LastUpdated.
type postgresWorkbookRepository struct {
	db      *database.PostgresDB
	tempDir string
	logger  *logging.StructuredLogger
}

// NewPostgresWorkbookRepository creates a database backed workbook repository.
// Staged uploads and opened workbooks are written under tempDir.
func NewPostgresWorkbookRepository(db *database.PostgresDB, tempDir string, logger *logging.StructuredLogger) WorkbookRepository {
	return &postgresWorkbookRepository{
		db:      db,
		tempDir: tempDir,
		logger:  logger,
	}
}

const currentWorkbookID = 1

type workbookRow struct {
	Content    []byte    `db:"content"`
	UploadedAt time.Time `db:"uploaded_at"`
}

func (r *postgresWorkbookRepository) Stage(ctx context.Context, body io.Reader) (*StagedWorkbook, error) {
	return stageTo(r.tempDir, "upload-*.xlsx", body)
}

// Commit upserts the staged bytes as the current workbook
func (r *postgresWorkbookRepository) Commit(ctx context.Context, staged *StagedWorkbook) (time.Time, error) {
	defer removeStaged(ctx, r.logger, staged)

	content, err := os.ReadFile(staged.Path)
	if err != nil {
		return time.Time{}, &models.IOError{Op: "commit", Path: staged.Path, Cause: err}
	}

	// timestamptz keeps microseconds; truncate so the returned time equals
	// what LastUpdated reads back
	uploadedAt := time.Now().UTC().Truncate(time.Microsecond)

	query := `
		INSERT INTO current_workbook (id, content, uploaded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			uploaded_at = EXCLUDED.uploaded_at
	`

	if _, err := r.db.ExecContext(ctx, "upsert_workbook", query, currentWorkbookID, content, uploadedAt); err != nil {
		return time.Time{}, &models.IOError{Op: "commit", Path: "current_workbook", Cause: err}
	}

	r.logger.Info(ctx, "[WORKBOOK] Current workbook stored", logging.Fields{
		"table":      "current_workbook",
		"size_bytes": len(content),
	})
	return uploadedAt, nil
}

func (r *postgresWorkbookRepository) Discard(ctx context.Context, staged *StagedWorkbook) {
	removeStaged(ctx, r.logger, staged)
}

// Open writes the stored workbook to a temp file; cleanup removes it
func (r *postgresWorkbookRepository) Open(ctx context.Context) (*StoredWorkbook, error) {
	var row workbookRow
	query := `SELECT content, uploaded_at FROM current_workbook WHERE id = $1`

	if err := r.db.GetContext(ctx, "get_workbook", &row, query, currentWorkbookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoWorkbook
		}
		return nil, &models.IOError{Op: "open", Path: "current_workbook", Cause: err}
	}

	tmp, err := os.CreateTemp(r.tempDir, "workbook-*.xlsx")
	if err != nil {
		return nil, &models.IOError{Op: "open", Path: r.tempDir, Cause: err}
	}
	_, err = tmp.Write(row.Content)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, &models.IOError{Op: "open", Path: tmp.Name(), Cause: err}
	}

	path := tmp.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn(ctx, "[WORKBOOK_WARNING] Failed to remove workbook copy", logging.Fields{
				"path":  path,
				"error": err.Error(),
			})
		}
	}
	return &StoredWorkbook{Path: path, UpdatedAt: row.UploadedAt, cleanup: cleanup}, nil
}

func (r *postgresWorkbookRepository) LastUpdated(ctx context.Context) (time.Time, bool, error) {
	var uploadedAt time.Time
	query := `SELECT uploaded_at FROM current_workbook WHERE id = $1`

	if err := r.db.GetContext(ctx, "get_workbook_uploaded_at", &uploadedAt, query, currentWorkbookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, &models.IOError{Op: "stat", Path: "current_workbook", Cause: err}
	}
	return uploadedAt, true, nil
}
