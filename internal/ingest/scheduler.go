package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/UglyGameFace/oddbot-sub001/internal/config"
	"github.com/UglyGameFace/oddbot-sub001/internal/delta"
	"github.com/UglyGameFace/oddbot-sub001/internal/registry"
	"github.com/UglyGameFace/oddbot-sub001/pkg/contracts"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

// Scheduler drives recurring ingestion. A cycle enumerates the active
// sports, fans out chain fetches in small batches and persists whatever
// succeeded. At most one cycle runs at a time; the timer and the manual
// pub/sub trigger both funnel into the same RunCycle, and a trigger
// landing mid-cycle is a logged no-op.
type Scheduler struct {
	source   contracts.OddsSource
	sink     contracts.SnapshotSink
	registry *registry.SportRegistry
	// gate drops snapshots whose content has not moved; nil persists
	// everything.
	gate *delta.Engine
	// redis feeds the manual trigger subscription; nil means timer-only.
	redis *redis.Client
	cfg   config.Ingest
	opts  models.FetchOptions
	log   *logrus.Entry

	running  atomic.Bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(source contracts.OddsSource, sink contracts.SnapshotSink, reg *registry.SportRegistry, gate *delta.Engine, redisClient *redis.Client, cfg config.Ingest, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		source:   source,
		sink:     sink,
		registry: reg,
		gate:     gate,
		redis:    redisClient,
		cfg:      cfg,
		opts:     models.FetchOptions{}.Normalized(),
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Run starts the trigger goroutines. The first cycle fires immediately
// so a fresh deployment has data before the first interval elapses.
func (s *Scheduler) Run(ctx context.Context) {
	s.wg.Add(1)
	go s.tickerLoop(ctx)

	if s.redis != nil {
		s.wg.Add(1)
		go s.subscribeLoop(ctx)
	}
}

// Stop drains the trigger goroutines. An in-flight cycle finishes its
// current batch work under its own context.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// RunCycle executes one ingestion pass and reports whether it ran.
// Failures inside a cycle are isolated per sport; a broken provider or
// sink never aborts the remaining work.
func (s *Scheduler) RunCycle(ctx context.Context, trigger string) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.log.WithField("trigger", trigger).Info("ingestion cycle already running, skipping trigger")
		return false
	}
	defer s.running.Store(false)

	keys := s.registry.ActiveKeys()
	if len(keys) == 0 {
		s.log.Warn("no active sports registered, nothing to ingest")
		return true
	}

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 3
	}

	started := time.Now()
	s.log.WithFields(logrus.Fields{
		"trigger":    trigger,
		"sports":     len(keys),
		"batch_size": batchSize,
	}).Info("ingestion cycle started")

	var ingested, failures int64
	for i := 0; i < len(keys); i += batchSize {
		if ctx.Err() != nil {
			s.log.Warn("ingestion cycle interrupted by shutdown")
			break
		}

		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		var wg sync.WaitGroup
		for _, key := range keys[i:end] {
			wg.Add(1)
			go func(sportKey string) {
				defer wg.Done()
				n, err := s.ingestSport(ctx, sportKey)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					s.log.WithError(err).WithField("sport_key", sportKey).Warn("sport ingestion failed")
					return
				}
				atomic.AddInt64(&ingested, int64(n))
			}(key)
		}
		wg.Wait()

		if end < len(keys) {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.BatchDelay()):
			}
		}
	}

	s.log.WithFields(logrus.Fields{
		"trigger":   trigger,
		"snapshots": atomic.LoadInt64(&ingested),
		"failures":  atomic.LoadInt64(&failures),
		"duration":  time.Since(started).String(),
	}).Info("ingestion cycle complete")
	return true
}

func (s *Scheduler) ingestSport(ctx context.Context, sportKey string) (int, error) {
	snaps, err := s.source.FetchOdds(ctx, sportKey, s.opts)
	if err != nil {
		return 0, fmt.Errorf("fetch odds: %w", err)
	}
	if len(snaps) == 0 {
		s.log.WithField("sport_key", sportKey).Debug("no snapshots to persist")
		return 0, nil
	}

	if s.gate != nil {
		changed := s.gate.Filter(ctx, snaps)
		if suppressed := len(snaps) - len(changed); suppressed > 0 {
			s.log.WithFields(logrus.Fields{
				"sport_key":  sportKey,
				"suppressed": suppressed,
			}).Debug("skipping unmoved snapshots")
		}
		snaps = changed
		if len(snaps) == 0 {
			return 0, nil
		}
	}

	if err := s.sink.UpsertSnapshots(ctx, snaps); err != nil {
		return 0, fmt.Errorf("persist snapshots: %w", err)
	}
	if s.gate != nil {
		s.gate.Mark(ctx, snaps)
	}
	return len(snaps), nil
}

func (s *Scheduler) tickerLoop(ctx context.Context) {
	defer s.wg.Done()

	s.RunCycle(ctx, "startup")

	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunCycle(ctx, "timer")
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) subscribeLoop(ctx context.Context) {
	defer s.wg.Done()

	pubsub := s.redis.Subscribe(ctx, s.cfg.TriggerChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.log.WithField("payload", msg.Payload).Info("manual ingestion trigger received")
			s.RunCycle(ctx, "pubsub")
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
