package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/input"
)

// ErrQueueFull is returned when the inbox cannot take another file.
var ErrQueueFull = errors.New("inbox queue full")

// defaultMaxResults is how many processed files the inbox remembers.
const defaultMaxResults = 100

// LocationSource loads locations by storage key.
type LocationSource interface {
	Load(ctx context.Context, key string) ([]domain.Location, error)
}

// InboxResult contains the outcome of one processed inbox file.
type InboxResult struct {
	Key         string           `json:"key"`
	Summary     input.RunSummary `json:"summary"`
	Error       string           `json:"error,omitempty"`
	ProcessedAt time.Time        `json:"processed_at"`
}

// InboxService runs exports for location files as they arrive, one at a time.
type InboxService struct {
	source   LocationSource
	exporter input.Exporter
	logger   *slog.Logger

	queue chan string

	// Lifecycle management
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Keys queued or in progress, to drop repeated events for the same file
	pendingMu sync.Mutex
	pending   map[string]bool

	resultsMu  sync.RWMutex
	results    []InboxResult
	maxResults int
}

// NewInboxService creates a new inbox service.
func NewInboxService(source LocationSource, exporter input.Exporter, logger *slog.Logger, queueSize int) *InboxService {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &InboxService{
		source:   source,
		exporter: exporter,
		logger:   logger,
		queue:    make(chan string, queueSize),
		stopCh:   make(chan struct{}),
		pending:  make(map[string]bool),

		maxResults: defaultMaxResults,
	}
}

// Start begins processing queued files.
func (s *InboxService) Start(ctx context.Context) {
	s.logger.Info("starting inbox service", "queue_size", cap(s.queue))

	s.wg.Add(1)
	go s.run(ctx)
}

// run is the single worker loop; runs never overlap.
func (s *InboxService) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("inbox service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("inbox service stopped")
			return
		case key := <-s.queue:
			s.process(ctx, key)
		}
	}
}

// Stop gracefully stops the inbox service after the current file.
func (s *InboxService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping inbox service")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// Enqueue schedules a location file. A key that is already queued or in
// progress is ignored.
func (s *InboxService) Enqueue(key string) error {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if s.pending[key] {
		s.logger.Debug("location file already queued", "key", key)
		return nil
	}

	select {
	case s.queue <- key:
		s.pending[key] = true
		s.logger.Info("location file queued", "key", key)
		return nil
	default:
		return ErrQueueFull
	}
}

// Results returns the outcomes of the most recently processed files, oldest first.
func (s *InboxService) Results() []InboxResult {
	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()

	out := make([]InboxResult, len(s.results))
	copy(out, s.results)
	return out
}

// process loads one file and exports its locations.
func (s *InboxService) process(ctx context.Context, key string) {
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, key)
		s.pendingMu.Unlock()
	}()

	result := InboxResult{Key: key}

	locations, err := s.source.Load(ctx, key)
	if err != nil {
		s.logger.Error("failed to load location file", "key", key, "error", err)
		result.Error = err.Error()
		s.addResult(result)
		return
	}

	summary, err := s.exporter.Run(ctx, locations)
	result.Summary = summary
	if err != nil {
		s.logger.Error("export run failed", "key", key, "error", err)
		result.Error = err.Error()
	}
	s.addResult(result)
}

func (s *InboxService) addResult(r InboxResult) {
	r.ProcessedAt = time.Now()

	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	s.results = append(s.results, r)
	if n := len(s.results) - s.maxResults; n > 0 {
		// copy so the dropped results can be collected
		s.results = append([]InboxResult(nil), s.results[n:]...)
	}
}
