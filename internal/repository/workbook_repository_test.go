package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"results-portal/pkg/logging"
)

func TestFileWorkbookRepository_StageCommit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	target := filepath.Join(dir, "uploaded_results.xlsx")
	repo := NewFileWorkbookRepository(target, logging.NewNopLogger())

	_, err := repo.Open(ctx)
	assert.ErrorIs(t, err, ErrNoWorkbook)

	_, ok, err := repo.LastUpdated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	staged, err := repo.Stage(ctx, strings.NewReader("workbook bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("workbook bytes")), staged.Size)
	assert.Equal(t, dir, filepath.Dir(staged.Path))

	// staging alone does not replace the current workbook
	_, err = repo.Open(ctx)
	assert.ErrorIs(t, err, ErrNoWorkbook)

	committedAt, err := repo.Commit(ctx, staged)
	require.NoError(t, err)

	stored, err := repo.Open(ctx)
	require.NoError(t, err)
	defer stored.Close()
	assert.Equal(t, target, stored.Path)
	assert.True(t, committedAt.Equal(stored.UpdatedAt))

	content, err := os.ReadFile(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, "workbook bytes", string(content))

	_, err = os.Stat(staged.Path)
	assert.True(t, os.IsNotExist(err), "staged file should be moved into place")

	updated, ok, err := repo.LastUpdated(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, committedAt.Equal(updated))
}

func TestFileWorkbookRepository_CommitAdvancesTimestamp(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "uploaded_results.xlsx")
	repo := NewFileWorkbookRepository(target, logging.NewNopLogger())

	var previous time.Time
	for i := 0; i < 3; i++ {
		staged, err := repo.Stage(ctx, strings.NewReader("upload"))
		require.NoError(t, err)

		committedAt, err := repo.Commit(ctx, staged)
		require.NoError(t, err)
		assert.False(t, committedAt.Equal(previous), "commit %d reused the previous timestamp", i)

		updated, ok, err := repo.LastUpdated(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, committedAt.Equal(updated))
		previous = committedAt
	}
}

func TestFileWorkbookRepository_DiscardKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	target := filepath.Join(dir, "uploaded_results.xlsx")
	require.NoError(t, os.WriteFile(target, []byte("current"), 0o644))

	repo := NewFileWorkbookRepository(target, logging.NewNopLogger())

	staged, err := repo.Stage(ctx, strings.NewReader("rejected"))
	require.NoError(t, err)

	repo.Discard(ctx, staged)

	_, err = os.Stat(staged.Path)
	assert.True(t, os.IsNotExist(err))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "current", string(content))

	// discarding twice is harmless
	repo.Discard(ctx, staged)
	repo.Discard(ctx, nil)
}

func TestFileWorkbookRepository_CreatesDirectory(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "data", "results.xlsx")
	repo := NewFileWorkbookRepository(target, logging.NewNopLogger())

	staged, err := repo.Stage(ctx, strings.NewReader("x"))
	require.NoError(t, err)
	_, err = repo.Commit(ctx, staged)
	require.NoError(t, err)

	_, err = os.Stat(target)
	assert.NoError(t, err)
}
