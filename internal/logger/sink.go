package logger

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/taylordash/taylordash/internal/models"
)

// Store is the persistence boundary the sink writes through; internal/db
// implements it over the storage adapter.
type Store interface {
	InsertApplicationLog(ctx context.Context, rec models.ApplicationLog) error
	SweepExpiredLogs(ctx context.Context) (int64, error)
}

// DroppedCounter is incremented whenever the sink's bounded queue overflows.
// internal/metrics.LoggingSinkDroppedTotal satisfies this via its Inc method.
type DroppedCounter interface {
	Inc()
}

// Sink is the async, best-effort writer backing the ApplicationLog store.
// Records are queued on a bounded channel; on overflow they are dropped
// rather than blocking the originating request.
type Sink struct {
	store   Store
	queue   chan models.ApplicationLog
	dropped DroppedCounter
	cron    *cron.Cron
}

// NewSink starts the background writer goroutine. capacity bounds the
// in-memory queue.
func NewSink(store Store, capacity int, dropped DroppedCounter) *Sink {
	s := &Sink{
		store:   store,
		queue:   make(chan models.ApplicationLog, capacity),
		dropped: dropped,
	}
	go s.run()
	return s
}

func (s *Sink) run() {
	for rec := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.InsertApplicationLog(ctx, rec); err != nil {
			log := SinkLog()
			log.Warn().Err(err).Msg("failed to persist application log")
		}
		cancel()
	}
}

// Enqueue attempts a non-blocking write to the sink queue. Sink failure must
// never fail the originating request, so a full queue just drops the record.
func (s *Sink) Enqueue(rec models.ApplicationLog) {
	select {
	case s.queue <- rec:
	default:
		if s.dropped != nil {
			s.dropped.Inc()
		}
	}
}

// StartRetentionSweep runs the hourly retention sweep via robfig/cron,
// deleting ApplicationLog rows past their RetentionPolicy-derived deadline.
func (s *Sink) StartRetentionSweep() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := s.store.SweepExpiredLogs(ctx)
		log := SinkLog()
		if err != nil {
			log.Error().Err(err).Msg("retention sweep failed")
			return
		}
		log.Info().Int64("deleted", n).Msg("retention sweep completed")
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sink) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	close(s.queue)
}

// ClassifySeverity applies the slow-operation hook: operations over 1s are
// tagged medium severity and logged at warn with category "performance".
func ClassifySeverity(durationMs int) (severity, level, category string) {
	if durationMs > 1000 {
		return "medium", "warn", "performance"
	}
	return "info", "info", ""
}
