package export

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/registry"
	"github.com/Zorrojurro/project-aarna/pkg/storage"
)

func TestScheduler_Run(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewMemoryS3Client()
	s := NewScheduler(staticSource(sampleSnapshot()), objects, SchedulerConfig{
		Schedule: "@daily",
		Bucket:   "archive",
		Prefix:   "exports/",
		Formats:  []string{FormatCSV, FormatXLSX},
	}, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	keys, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"exports/app-7/20260301-120000.csv",
		"exports/app-7/20260301-120000.xlsx",
	}, keys)

	rc, err := objects.Download(ctx, "archive", keys[0])
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Sundarbans Mangrove Restoration")
}

func TestScheduler_SkipsUndeployedRegistry(t *testing.T) {
	s := NewScheduler(staticSource(registry.Snapshot{}), storage.NewMemoryS3Client(), SchedulerConfig{Schedule: "@daily"}, zap.NewNop())
	keys, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestScheduler_StartValidates(t *testing.T) {
	ctx := context.Background()

	bad := NewScheduler(staticSource(sampleSnapshot()), storage.NewMemoryS3Client(), SchedulerConfig{Schedule: "not a schedule"}, zap.NewNop())
	assert.Error(t, bad.Start(ctx))

	unknown := NewScheduler(staticSource(sampleSnapshot()), storage.NewMemoryS3Client(), SchedulerConfig{Schedule: "@daily", Formats: []string{"docx"}}, zap.NewNop())
	assert.Error(t, unknown.Start(ctx))

	ok := NewScheduler(staticSource(sampleSnapshot()), storage.NewMemoryS3Client(), SchedulerConfig{Schedule: "@daily"}, zap.NewNop())
	require.NoError(t, ok.Start(ctx))
	assert.Error(t, ok.Start(ctx))
	ok.Stop()
	ok.Stop()
}
