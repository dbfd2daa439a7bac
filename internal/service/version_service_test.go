package service

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/annalist/annalist-backend/internal/codec"
	"github.com/annalist/annalist-backend/internal/common"
	"github.com/annalist/annalist-backend/internal/domain"
	"github.com/annalist/annalist-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitStructured("test")
}

func testRef(id string) domain.OwnerRef {
	return domain.OwnerRef{Type: "document", ID: id}
}

func mustConfig(t *testing.T, opts map[string]any) *domain.TypeConfig {
	t.Helper()
	cfg, err := domain.NewTypeConfig("document", opts)
	require.NoError(t, err)
	return cfg
}

func testAttrs(title string) domain.AttributeMap {
	return domain.AttributeMap{"title": title, "content": "body"}
}

func TestCreateVersionAssignsSequentialNumbers(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)
	ref := testRef("doc-1")

	for i := 1; i <= 3; i++ {
		v, err := svc.CreateVersion(ref, testAttrs("t"), cfg)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, uint(i), v.Number)
	}
}

func TestCreateVersionConcurrentMonotonicNumbering(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)
	ref := testRef("doc-1")

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateVersion(ref, testAttrs("t"), cfg)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	numbers := repo.numbers(ref)
	require.Len(t, numbers, writers)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, n := range numbers {
		assert.Equal(t, uint(i+1), n, "numbers must be contiguous from 1 with no duplicates")
	}
}

func TestCreateVersionIndependentOwners(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)

	v1, err := svc.CreateVersion(testRef("a"), testAttrs("t"), cfg)
	require.NoError(t, err)
	v2, err := svc.CreateVersion(testRef("b"), testAttrs("t"), cfg)
	require.NoError(t, err)

	assert.Equal(t, uint(1), v1.Number)
	assert.Equal(t, uint(1), v2.Number)
}

func TestCreateVersionRetriesOnNumberingConflict(t *testing.T) {
	repo := newMemoryVersionRepo()
	repo.conflictsLeft = 2
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)

	v, err := svc.CreateVersion(testRef("doc-1"), testAttrs("t"), cfg)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, uint(1), v.Number)
}

func TestCreateVersionEscalatesAfterRetriesExhausted(t *testing.T) {
	repo := newMemoryVersionRepo()
	repo.conflictsLeft = 10
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)

	_, err := svc.CreateVersion(testRef("doc-1"), testAttrs("t"), cfg)
	assert.ErrorIs(t, err, common.ErrPersistence)
}

func TestCreateVersionInsertFailure(t *testing.T) {
	repo := newMemoryVersionRepo()
	repo.failInsert = errors.New("disk full")
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)

	_, err := svc.CreateVersion(testRef("doc-1"), testAttrs("t"), cfg)
	assert.ErrorIs(t, err, common.ErrPersistence)
}

func TestCreateVersionSkippedWriteIsNoOp(t *testing.T) {
	repo := newMemoryVersionRepo()
	repo.skipInsert = true
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)

	v, err := svc.CreateVersion(testRef("doc-1"), testAttrs("t"), cfg)
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestCreateVersionAppliesExclusion(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)
	cfg := mustConfig(t, map[string]any{"exclude": []any{"content"}})
	ref := testRef("doc-1")

	v, err := svc.CreateVersion(ref, testAttrs("t"), cfg)
	require.NoError(t, err)

	attrs, err := codec.Decode(v.Payload)
	require.NoError(t, err)
	assert.NotContains(t, attrs, "content")
	assert.Equal(t, "t", attrs["title"])
}

func TestPruneKeepsMostRecentNumbers(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)
	ref := testRef("doc-1")

	for i := 0; i < 5; i++ {
		_, err := svc.CreateVersion(ref, testAttrs("t"), cfg)
		require.NoError(t, err)
	}

	report := svc.Prune(ref, 2)
	require.NoError(t, report.Err())
	assert.Equal(t, 3, report.Deleted)

	numbers := repo.numbers(ref)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	assert.Equal(t, []uint{4, 5}, numbers)

	// Idempotent: a second pass with the same keep deletes nothing.
	report = svc.Prune(ref, 2)
	require.NoError(t, report.Err())
	assert.Equal(t, 0, report.Deleted)
}

func TestPruneNoopWhenKeepCoversAll(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)
	ref := testRef("doc-1")

	for i := 0; i < 3; i++ {
		_, err := svc.CreateVersion(ref, testAttrs("t"), cfg)
		require.NoError(t, err)
	}

	report := svc.Prune(ref, 5)
	require.NoError(t, report.Err())
	assert.Equal(t, 0, report.Deleted)
	assert.Len(t, repo.numbers(ref), 3)
}

func TestPruneZeroKeepIsNoop(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)

	report := svc.Prune(testRef("doc-1"), 0)
	require.NoError(t, report.Err())
	assert.Equal(t, 0, report.Deleted)
}

func TestPrunePartialFailureContinues(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)
	ref := testRef("doc-1")

	for i := 0; i < 3; i++ {
		_, err := svc.CreateVersion(ref, testAttrs("t"), cfg)
		require.NoError(t, err)
	}
	repo.failDelete[1] = errors.New("row locked")

	report := svc.Prune(ref, 1)
	assert.Equal(t, 1, report.Deleted)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Err(), common.ErrPersistence)

	numbers := repo.numbers(ref)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	assert.Equal(t, []uint{1, 3}, numbers)
}

func TestUnversionedSemantics(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)
	ref := testRef("doc-1")

	versioned, err := svc.IsVersioned(ref)
	require.NoError(t, err)
	assert.False(t, versioned)

	current, err := svc.Current(ref)
	require.NoError(t, err)
	assert.Nil(t, current)

	number, err := svc.VersionNumber(ref)
	require.NoError(t, err)
	assert.Equal(t, uint(0), number)

	cfg := mustConfig(t, nil)
	_, err = svc.CreateVersion(ref, testAttrs("t"), cfg)
	require.NoError(t, err)

	versioned, err = svc.IsVersioned(ref)
	require.NoError(t, err)
	assert.True(t, versioned)

	number, err = svc.VersionNumber(ref)
	require.NoError(t, err)
	assert.Equal(t, uint(1), number)
}

func TestNavigation(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)
	ref := testRef("doc-1")

	for i := 0; i < 4; i++ {
		_, err := svc.CreateVersion(ref, testAttrs("t"), cfg)
		require.NoError(t, err)
	}

	first, err := svc.First(ref)
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Number)

	current, err := svc.Current(ref)
	require.NoError(t, err)
	assert.Equal(t, uint(4), current.Number)

	next, err := svc.NextAfter(ref, 2)
	require.NoError(t, err)
	assert.Equal(t, uint(3), next.Number)

	prev, err := svc.PreviousBefore(ref, 3)
	require.NoError(t, err)
	assert.Equal(t, uint(2), prev.Number)

	none, err := svc.NextAfter(ref, 4)
	require.NoError(t, err)
	assert.Nil(t, none)

	none, err = svc.PreviousBefore(ref, 1)
	require.NoError(t, err)
	assert.Nil(t, none)

	byNum, err := svc.ByNumber(ref, 3)
	require.NoError(t, err)
	assert.Equal(t, uint(3), byNum.Number)

	missing, err := svc.ByNumber(ref, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListNewestFirst(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)
	ref := testRef("doc-1")

	for i := 0; i < 3; i++ {
		_, err := svc.CreateVersion(ref, testAttrs("t"), cfg)
		require.NoError(t, err)
	}

	metas, err := svc.List(ref)
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, uint(3), metas[0].Number)
	assert.Equal(t, uint(1), metas[2].Number)
}

func TestDeleteHistoryRemovesAllVersions(t *testing.T) {
	repo := newMemoryVersionRepo()
	svc := NewVersionService(repo)
	cfg := mustConfig(t, nil)
	ref := testRef("doc-1")
	other := testRef("doc-2")

	for i := 0; i < 2; i++ {
		_, err := svc.CreateVersion(ref, testAttrs("t"), cfg)
		require.NoError(t, err)
	}
	_, err := svc.CreateVersion(other, testAttrs("t"), cfg)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteHistory(ref))

	versioned, err := svc.IsVersioned(ref)
	require.NoError(t, err)
	assert.False(t, versioned)

	versioned, err = svc.IsVersioned(other)
	require.NoError(t, err)
	assert.True(t, versioned)
}
