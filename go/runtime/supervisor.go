package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/reservoir-data/marketdata-core/go/fanout"
	"github.com/reservoir-data/marketdata-core/go/feed"
	"github.com/reservoir-data/marketdata-core/go/ingestqueue"
	"github.com/reservoir-data/marketdata-core/go/marketdata"
	"github.com/reservoir-data/marketdata-core/go/quality"
	"github.com/reservoir-data/marketdata-core/go/quotecache"
	"github.com/reservoir-data/marketdata-core/go/resilience"
	log "github.com/sirupsen/logrus"
)

// Supervisor is the L7 LifecycleSupervisor: it builds L1-L6 in dependency
// order, starts them, and tears them down within the configured shutdown
// budget (spec.md §4.7, §5's cancellation/timeout rules).
type Supervisor struct {
	cfg  Config
	feed feed.UpstreamFeed

	cache   *quotecache.Cache
	queue   *ingestqueue.Queue
	adapter *feed.Adapter
	fanout  *fanout.Fanout
	core    *quality.Core
	tracker *quality.IssueTracker
	metrics *quality.Metrics
	gate    *resilience.Gate

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor builds a Supervisor over upstream using cfg. upstream is
// typically a *feed.Simulated for local runs; production wiring substitutes
// a real wire-protocol implementation of feed.UpstreamFeed (spec.md §1).
func NewSupervisor(cfg Config, upstream feed.UpstreamFeed) *Supervisor {
	return &Supervisor{cfg: cfg, feed: upstream}
}

// Start brings up every layer and returns once the feed adapter is
// connected and its dispatch loop is running.
func (s *Supervisor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.fanout = fanout.New(s.cfg.Fanout.SubscriberQueueCapacity, s.cfg.slowConsumerTimeout())

	if s.cfg.Quality.Enabled {
		s.metrics = quality.NewMetrics(quality.DefaultWindowSize)
		s.tracker = quality.NewIssueTracker(s.cfg.Quality.IssuesPerRIC, s.cfg.Quality.IssuesGlobal)

		var alerts *quality.AlertService
		if s.cfg.Quality.AlertingEnabled {
			alerts = quality.NewAlertService(s.tracker, s.cfg.alertThrottle())
		}

		qualityCfg := quality.Config{
			MinPrice:            s.cfg.Quality.MinPrice,
			MaxPrice:            s.cfg.Quality.MaxPrice,
			MaxSpreadPercentage: s.cfg.Quality.MaxSpreadPct,
			MaxAge:              s.cfg.maxAge(),
			MaxDecimalPlaces:    s.cfg.Quality.MaxDecimalPlaces,
		}
		s.core = quality.NewCore(qualityCfg, s.metrics, alerts)
	}

	// apply writes an accepted update into the cache. It is installed both
	// as the ingest queue's ApplyFunc and as the feed adapter's inline
	// fallback under backpressure, so it is built once and shared
	// (spec.md §4.3f). It closes over s.cache, which is assigned below,
	// after the adapter that depends on this same closure is constructed.
	apply := func(ric marketdata.RIC, q marketdata.Quote) {
		s.cache.PutLatest(ric, q)
	}

	s.queue = ingestqueue.New(
		apply,
		ingestqueue.WithCapacity(s.cfg.Ingest.QueueCapacity),
		ingestqueue.WithWorkers(s.cfg.Ingest.WorkerCount),
		ingestqueue.WithStaleness(s.cfg.taskStaleness()),
		ingestqueue.WithPollTimeout(s.cfg.pollTimeout()),
	)

	var validator feed.ValidationSink
	if s.core != nil {
		validator = s.core
	}

	s.adapter = feed.New(
		s.feed,
		feed.ConnectionConfig{
			Host:    s.cfg.Upstream.Host,
			Port:    s.cfg.Upstream.Port,
			Service: s.cfg.Upstream.Service,
			User:    s.cfg.Upstream.User,
		},
		s.queue,
		apply,
		validator,
		s.fanout,
		s.cfg.pollTimeout(),
	)

	// The adapter satisfies quotecache.HandleRegistrar; the cache is built
	// last among L1-L3 so apply's closure over s.cache is valid by the
	// time any message can actually arrive (Start has not yet been called).
	s.cache = quotecache.New(s.adapter)

	inner := NewService(s.cache, s.queue, s.fanout)
	s.gate = resilience.New(inner, resilience.Config{
		PermitsPerSecond:  s.cfg.Resilience.PermitsPerSecond,
		AcquireTimeout:    s.cfg.acquireTimeout(),
		BreakerWindowSize: uint32(s.cfg.Resilience.BreakerWindowSize),
		FailureRatePct:    s.cfg.Resilience.FailureRatePct,
		Cooldown:          s.cfg.cooldown(),
		RetryMaxAttempts:  s.cfg.Resilience.RetryMaxAttempts,
		RetryBaseBackoff:  s.cfg.retryBaseBackoff(),
	})

	if err := s.adapter.Start(runCtx); err != nil {
		cancel()
		return err
	}
	s.queue.Start(runCtx)

	if s.tracker != nil {
		s.wg.Add(1)
		go s.runTrimLoop(runCtx)
	}

	if s.metrics != nil {
		s.wg.Add(1)
		go s.runMetricsPollLoop(runCtx)
	}

	log.Info("market data service started")
	return nil
}

func (s *Supervisor) runTrimLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tracker.Trim(24 * time.Hour)
		}
	}
}

// metricsPollInterval bounds how stale SubscriptionsActive,
// BackpressureQueueUtilization and ConnectionStatus can be: these are
// live-state gauges with no natural write-site of their own, unlike the
// counters Core updates inline on the validation path.
const metricsPollInterval = 2 * time.Second

func (s *Supervisor) runMetricsPollLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(metricsPollInterval)
	defer ticker.Stop()
	s.pollMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollMetrics()
		}
	}
}

func (s *Supervisor) pollMetrics() {
	s.metrics.SubscriptionsActive.Set(float64(len(s.cache.Subscribed())))

	if capacity := s.queue.Capacity(); capacity > 0 {
		s.metrics.BackpressureQueueUtilization.Set(float64(s.queue.Len()) / float64(capacity))
	}

	connected := 0.0
	if s.adapter.State() == feed.StateRunning {
		connected = 1.0
	}
	s.metrics.ConnectionStatus.Set(connected)
}

// Stop stops the feed adapter (which also disconnects the upstream
// session), cancels the run context, drains the ingest queue and waits for
// the background loops, enforcing the total shutdown budget as a watchdog:
// a breach is logged, not blocked on. Open stream subscribers are not
// closed by Stop.
func (s *Supervisor) Stop() error {
	done := make(chan struct{})
	go func() {
		defer close(done)

		if err := s.adapter.Stop(); err != nil {
			log.WithField("err", err).Warn("error stopping feed adapter")
		}
		s.cancel()
		s.queue.Stop(s.cfg.drainTimeout())
		s.wg.Wait()
	}()

	select {
	case <-done:
		log.Info("market data service stopped cleanly")
	case <-time.After(s.cfg.totalBudget()):
		log.Warn("shutdown budget exceeded; exiting regardless")
	}
	return nil
}

// Gate returns the resilience-wrapped MarketDataService for the API layer.
func (s *Supervisor) Gate() *resilience.Gate { return s.gate }

// Fanout returns the stream fan-out for StreamPrices subscriptions.
func (s *Supervisor) Fanout() *fanout.Fanout { return s.fanout }

// QualityCore returns the data-quality core, or nil if quality checks are disabled.
func (s *Supervisor) QualityCore() *quality.Core { return s.core }

// IssueTracker returns the bounded issue history, or nil if quality checks are disabled.
func (s *Supervisor) IssueTracker() *quality.IssueTracker { return s.tracker }

// Metrics returns the Prometheus registry-backed metrics sink, or nil if
// quality checks are disabled.
func (s *Supervisor) Metrics() *quality.Metrics { return s.metrics }
