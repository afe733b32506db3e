package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jobrunner/sceneport/internal/ports/output"
)

// ErrRateLimited is returned when the sync API rate limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

// Enqueuer accepts location files for processing.
type Enqueuer interface {
	Enqueue(key string) error
}

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	FilesQueued     int       `json:"files_queued"`
	FilesSkipped    int       `json:"files_skipped"`
	FilesTotal      int       `json:"files_total"`
	SyncedAt        time.Time `json:"synced_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
}

// SyncService periodically scans object storage and queues location files
// that are new or changed since the last scan.
type SyncService struct {
	storage  output.ObjectStorage
	inbox    Enqueuer
	interval time.Duration
	logger   *slog.Logger

	// Lifecycle management
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Rate limiting for API triggers
	limiter *rate.Limiter

	// Prevents concurrent sync operations; guards seen
	syncOpMutex sync.Mutex
	seen        map[string]string

	// Track next scheduled sync for reporting
	nextSync time.Time
	syncMu   sync.RWMutex
}

// NewSyncService creates a new sync service. Manual triggers are limited to
// one per 30 seconds.
func NewSyncService(storage output.ObjectStorage, inbox Enqueuer, interval time.Duration, logger *slog.Logger) *SyncService {
	return &SyncService{
		storage:  storage,
		inbox:    inbox,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		limiter:  rate.NewLimiter(rate.Every(30*time.Second), 1),
		seen:     make(map[string]string),
	}
}

// Start begins the periodic sync scheduler. The first scan runs immediately.
func (s *SyncService) Start(ctx context.Context) {
	s.logger.Info("starting sync service", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

// run is the main sync loop.
func (s *SyncService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.doSync(ctx)
	s.setNextSync(time.Now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("sync service stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled sync triggered")
			s.doSync(ctx)
			s.setNextSync(time.Now().Add(s.interval))
		}
	}
}

// Stop gracefully stops the sync service.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping sync service")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// TriggerSync manually triggers a sync operation with rate limiting.
func (s *SyncService) TriggerSync(ctx context.Context) (SyncResult, error) {
	if !s.limiter.Allow() {
		return SyncResult{}, ErrRateLimited
	}
	return s.doSyncWithResult(ctx)
}

// doSync performs the sync operation without returning detailed results.
func (s *SyncService) doSync(ctx context.Context) {
	result, err := s.doSyncWithResult(ctx)
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		return
	}
	s.logger.Info("sync completed",
		"queued", result.FilesQueued,
		"skipped", result.FilesSkipped,
		"total", result.FilesTotal,
	)
}

// doSyncWithResult lists the storage and queues every file whose version
// changed. A file that cannot be queued is retried on the next scan.
func (s *SyncService) doSyncWithResult(ctx context.Context) (SyncResult, error) {
	s.syncOpMutex.Lock()
	defer s.syncOpMutex.Unlock()

	objects, err := s.storage.List(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("listing storage: %w", err)
	}

	result := SyncResult{SyncedAt: time.Now(), NextScheduledAt: s.getNextSync()}
	for _, obj := range objects {
		if !output.IsLocationFile(obj.Key) {
			continue
		}
		result.FilesTotal++

		version := objectVersion(obj)
		if s.seen[obj.Key] == version {
			result.FilesSkipped++
			continue
		}

		if err := s.inbox.Enqueue(obj.Key); err != nil {
			s.logger.Warn("failed to queue location file", "key", obj.Key, "error", err)
			result.FilesSkipped++
			continue
		}
		s.seen[obj.Key] = version
		result.FilesQueued++
	}

	return result, nil
}

func objectVersion(obj output.StorageObject) string {
	if obj.ETag != "" {
		return obj.ETag
	}
	return fmt.Sprintf("%d-%d", obj.Size, obj.LastModified)
}

// setNextSync updates the next scheduled sync time.
func (s *SyncService) setNextSync(t time.Time) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.nextSync = t
}

// getNextSync returns the next scheduled sync time.
func (s *SyncService) getNextSync() time.Time {
	s.syncMu.RLock()
	defer s.syncMu.RUnlock()
	return s.nextSync
}

// Interval returns the sync interval.
func (s *SyncService) Interval() time.Duration {
	return s.interval
}
