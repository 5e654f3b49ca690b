package export

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/pkg/storage"
)

// Scheduler writes registry exports to an object bucket on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	source   SnapshotSource
	objects  storage.S3Client
	bucket   string
	prefix   string
	formats  []string
	schedule string
	now      func() time.Time
	logger   *zap.Logger
	mu       sync.Mutex
	running  bool
}

// SchedulerConfig configures scheduled exports.
type SchedulerConfig struct {
	Schedule string
	Bucket   string
	Prefix   string
	Formats  []string
}

// NewScheduler creates a scheduler. Formats default to csv.
func NewScheduler(source SnapshotSource, objects storage.S3Client, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = []string{FormatCSV}
	}
	return &Scheduler{
		cron:     cron.New(),
		source:   source,
		objects:  objects,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		formats:  formats,
		schedule: cfg.Schedule,
		now:      time.Now,
		logger:   logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("export scheduler already running")
	}
	for _, f := range s.formats {
		if _, ok := contentTypes[f]; !ok {
			return fmt.Errorf("unsupported export format %q", f)
		}
	}
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Run(ctx); err != nil {
			s.logger.Warn("Scheduled export failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid export schedule %q: %w", s.schedule, err)
	}

	s.logger.Info("Starting export scheduler", zap.String("schedule", s.schedule), zap.Strings("formats", s.formats))
	s.cron.Start()
	s.running = true
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.logger.Info("Stopping export scheduler")
	<-s.cron.Stop().Done()
	s.running = false
}

// Run exports the current snapshot once in every format and returns the
// written keys. Registries that are not deployed yet are skipped.
func (s *Scheduler) Run(ctx context.Context) ([]string, error) {
	snap := s.source.Snapshot()
	if snap.AppID == 0 {
		return nil, nil
	}
	tables := RegistryTables(snap)
	stamp := s.now().UTC().Format("20060102-150405")

	var keys []string
	for _, format := range s.formats {
		var buf bytes.Buffer
		if err := Write(&buf, format, tables); err != nil {
			return keys, err
		}
		key := fmt.Sprintf("%sapp-%d/%s.%s", s.prefix, snap.AppID, stamp, format)
		if err := s.objects.Upload(ctx, s.bucket, key, &buf); err != nil {
			return keys, fmt.Errorf("failed to upload export %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	s.logger.Info("Registry exported", zap.Uint64("app_id", snap.AppID), zap.Strings("keys", keys))
	return keys, nil
}
