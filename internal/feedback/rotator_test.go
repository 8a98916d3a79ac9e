package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

type fakeArchiver struct {
	archiveFunc func(ctx context.Context, resourceID string, records []models.FeedbackRecord) (string, error)
	segments    map[string][][]models.FeedbackRecord
}

func (f *fakeArchiver) ArchiveSegment(ctx context.Context, resourceID string, records []models.FeedbackRecord) (string, error) {
	if f.archiveFunc != nil {
		if _, err := f.archiveFunc(ctx, resourceID, records); err != nil {
			return "", err
		}
	}
	if f.segments == nil {
		f.segments = map[string][][]models.FeedbackRecord{}
	}
	f.segments[resourceID] = append(f.segments[resourceID], records)
	return "mem://" + resourceID, nil
}

func seedLog(t *testing.T, log Log, resourceID string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, log.Append(context.Background(), record(resourceID, float64(i))))
	}
}

func TestRotateOnceArchivesThenTrims(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	seedLog(t, log, "a", 5)
	seedLog(t, log, "b", 2)

	arch := &fakeArchiver{}
	n, err := NewRotator(log, arch, RotatorConfig{RetentionPerResource: 2}).RotateOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, arch.segments["a"], 1)
	assert.Equal(t, []float64{1, 2, 3}, ratings(arch.segments["a"][0]))
	assert.Empty(t, arch.segments["b"])

	live, err := log.List(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5}, ratings(live))
}

func TestRotateKeepsRecordsAppendedDuringArchive(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	seedLog(t, log, "a", 5)

	arch := &fakeArchiver{archiveFunc: func(ctx context.Context, resourceID string, records []models.FeedbackRecord) (string, error) {
		return "", log.Append(ctx, record(resourceID, 6))
	}}
	n, err := NewRotator(log, arch, RotatorConfig{RetentionPerResource: 2}).RotateOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, arch.segments["a"], 1)
	assert.Equal(t, []float64{1, 2, 3}, ratings(arch.segments["a"][0]))
	live, err := log.List(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, ratings(live))
}

func TestRotateKeepsRecordsWhenArchiveFails(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	seedLog(t, log, "a", 4)

	arch := &fakeArchiver{archiveFunc: func(ctx context.Context, resourceID string, records []models.FeedbackRecord) (string, error) {
		return "", errors.New("s3 down")
	}}
	n, err := NewRotator(log, arch, RotatorConfig{RetentionPerResource: 1}).RotateOnce(ctx)
	assert.Error(t, err)
	assert.Zero(t, n)

	live, err := log.List(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, live, 4)
}

func TestRotateWithoutArchiverJustTrims(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	seedLog(t, log, "a", 4)

	n, err := NewRotator(log, nil, RotatorConfig{RetentionPerResource: 3}).RotateOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRotatorRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	log := NewMemoryLog()
	seedLog(t, log, "a", 3)
	r := NewRotator(log, nil, RotatorConfig{RetentionPerResource: 1, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		live, _ := log.List(context.Background(), "a")
		return len(live) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rotator did not stop")
	}
}
