// Package ingestion runs the dashboard's three polling loops and owns the
// snapshot they publish.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/severe-weather-dashboard/internal/config"
	"github.com/mr1hm/severe-weather-dashboard/internal/fetcher"
	"github.com/mr1hm/severe-weather-dashboard/internal/models"
	"github.com/mr1hm/severe-weather-dashboard/internal/notify"
	"github.com/mr1hm/severe-weather-dashboard/internal/observability"
	"github.com/mr1hm/severe-weather-dashboard/internal/outlook"
	"github.com/mr1hm/severe-weather-dashboard/internal/overlay"
	"github.com/mr1hm/severe-weather-dashboard/internal/reconciler"
	"github.com/mr1hm/severe-weather-dashboard/internal/repository"
	"github.com/mr1hm/severe-weather-dashboard/internal/schedule"
	"github.com/mr1hm/severe-weather-dashboard/internal/worker"
)

type Getter interface {
	Get(ctx context.Context, url, accept string) (*fetcher.Response, error)
}

type DiscussionSource interface {
	Fetch(ctx context.Context) ([]models.DiscussionRecord, error)
}

// Renderer receives the dashboard's render calls. notify.Broadcaster is the
// production implementation.
type Renderer interface {
	RenderAlerts(alerts []models.ClassifiedAlert)
	RenderPolygons(diff overlay.Diff)
	PlayNotification(n models.Notification)
	RenderOutlook(updated []outlook.Selection)
	RenderDiscussions(records []models.DiscussionRecord)
}

type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Deps are the manager's collaborators. Getter, Classifier, Discussions and
// Renderer are required; the rest are optional sinks.
type Deps struct {
	Getter      Getter
	Classifier  reconciler.Classifier
	Discussions DiscussionSource
	Renderer    Renderer

	Notifications repository.NotificationRepository
	Publisher     Publisher
	Snapshots     repository.SnapshotStore
	Metrics       *observability.Metrics
	Clock         clockwork.Clock
}

type Manager struct {
	cfg         *config.Config
	getter      Getter
	reconciler  *reconciler.Reconciler
	selector    *outlook.Selector
	discussions DiscussionSource
	renderer    Renderer

	notifications repository.NotificationRepository
	publisher     Publisher
	snapshots     repository.SnapshotStore
	metrics       *observability.Metrics
	clock         clockwork.Clock

	snap    atomic.Pointer[Snapshot]
	writeMu sync.Mutex

	// Owned by the alerts loop.
	alertState reconciler.State
	polygons   overlay.Set

	pool  *worker.Pool[models.Notification]
	tasks []*schedule.Task
}

func NewManager(cfg *config.Config, deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	m := &Manager{
		cfg:           cfg,
		getter:        deps.Getter,
		reconciler:    reconciler.New(deps.Classifier),
		selector:      outlook.NewSelector(cfg.Outlook.SPCBaseURL),
		discussions:   deps.Discussions,
		renderer:      deps.Renderer,
		notifications: deps.Notifications,
		publisher:     deps.Publisher,
		snapshots:     deps.Snapshots,
		metrics:       deps.Metrics,
		clock:         deps.Clock,
		polygons:      overlay.Set{},
	}
	m.snap.Store(emptySnapshot())
	m.pool = worker.NewPool("notifications", cfg.Worker.Count, cfg.Worker.BufferSize, m.deliver)
	return m
}

// Snapshot returns the current dashboard state. Callers must not modify it.
func (m *Manager) Snapshot() *Snapshot {
	return m.snap.Load()
}

func (m *Manager) Start(ctx context.Context) {
	// Workers drain the queue on Stop instead of dropping it on cancel.
	m.pool.Start(context.WithoutCancel(ctx))

	m.restore(ctx)

	slog.Info("starting pollers",
		"alerts_interval", m.cfg.Alerts.PollInterval,
		"outlook_interval", m.cfg.Outlook.PollInterval,
		"discussion_interval", m.cfg.Discussion.PollInterval,
	)
	m.tasks = []*schedule.Task{
		schedule.Every(ctx, m.clock, m.cfg.Alerts.PollInterval, m.pollAlerts),
		schedule.Every(ctx, m.clock, m.cfg.Outlook.PollInterval, m.pollOutlook),
		schedule.Every(ctx, m.clock, m.cfg.Discussion.PollInterval, m.pollDiscussions),
	}
}

// Refresh runs one poll of each named loop (all loops when none are named)
// on the calling goroutine and returns the resulting snapshot. It is meant
// for one-shot use without Start.
func (m *Manager) Refresh(ctx context.Context, loops ...string) *Snapshot {
	if len(loops) == 0 {
		loops = []string{observability.LoopAlerts, observability.LoopOutlook, observability.LoopDiscussions}
	}
	for _, loop := range loops {
		switch loop {
		case observability.LoopAlerts:
			m.pollAlerts(ctx)
		case observability.LoopOutlook:
			m.pollOutlook(ctx)
		case observability.LoopDiscussions:
			m.pollDiscussions(ctx)
		default:
			slog.Warn("unknown loop", "loop", loop)
		}
	}
	return m.Snapshot()
}

func (m *Manager) Stop() {
	for _, t := range m.tasks {
		t.Stop()
	}
	m.pool.Stop()
	slog.Info("ingestion manager stopped")
}

// update publishes a copy of the current snapshot with fn applied. Writers
// are serialized; readers keep whatever snapshot they already loaded.
func (m *Manager) update(fn func(s *Snapshot)) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := *m.snap.Load()
	fn(&next)
	m.snap.Store(&next)
}

// restore seeds the alert panel from the shared mirror so a restarted
// instance is not blank until its first poll. The reconcile state is left
// untouched; the first poll still primes it.
func (m *Manager) restore(ctx context.Context) {
	if m.snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Fetch.Timeout)
	defer cancel()

	alerts, updatedAt, err := m.snapshots.LoadAlerts(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrNoSnapshot) {
			slog.Warn("could not restore alert snapshot", "error", err)
		}
		return
	}

	m.update(func(s *Snapshot) {
		s.Alerts = alerts
		s.Counters = reconciler.Count(alerts)
		s.AlertsStatus.UpdatedAt = updatedAt
		s.Restored = true
	})
	slog.Info("restored alert snapshot", "count", len(alerts), "updated_at", updatedAt)
}

func (m *Manager) pollAlerts(ctx context.Context) {
	started := time.Now()
	slog.Debug("polling", "loop", observability.LoopAlerts)

	pctx, cancel := m.pollContext(ctx)
	raws, malformed, err := m.fetchAlerts(pctx)
	err = overBudget(pctx, m.cfg.Alerts.URL, err)
	cancel()
	if stopped(ctx) {
		slog.Debug("discarding result after shutdown", "loop", observability.LoopAlerts)
		return
	}
	m.observe(observability.LoopAlerts, started, err)
	if err != nil {
		slog.Error("poll failed", "loop", observability.LoopAlerts, "url", m.cfg.Alerts.URL, "error", err)
		m.update(func(s *Snapshot) {
			s.AlertsStatus.Attempted = true
			s.AlertsStatus.Error = errorMessage("alerts")
		})
		return
	}

	res := m.reconciler.Reconcile(raws, m.alertState)
	m.alertState = res.State

	diff, polygons := overlay.Compute(m.polygons, res.Alerts)
	m.polygons = polygons

	now := m.clock.Now()
	counters := reconciler.Count(res.Alerts)
	m.update(func(s *Snapshot) {
		s.Alerts = res.Alerts
		s.Counters = counters
		s.Restored = false
		s.AlertsStatus = LoopStatus{Attempted: true, UpdatedAt: now}
	})

	m.renderer.RenderAlerts(res.Alerts)
	if !diff.Empty() {
		m.renderer.RenderPolygons(diff)
	}
	for _, a := range res.NewlyAppeared {
		n := notify.NewNotification(a, now)
		m.renderer.PlayNotification(n)
		if !m.pool.Submit(ctx, n) {
			slog.Warn("notification not queued", "id", n.ID, "alert_id", a.ID)
		}
	}

	m.mirror(ctx, res.Alerts, now)

	if m.metrics != nil {
		m.metrics.SetActive(counters.ByCode)
		m.metrics.AlertsExcluded.Add(float64(res.Excluded))
		m.metrics.ItemsMalformed.Add(float64(malformed))
		m.metrics.Notifications.Add(float64(len(res.NewlyAppeared)))
	}

	slog.Debug("poll complete",
		"loop", observability.LoopAlerts,
		"count", len(res.Alerts),
		"new", len(res.NewlyAppeared),
		"excluded", res.Excluded,
		"malformed", malformed,
	)
}

func (m *Manager) mirror(ctx context.Context, alerts []models.ClassifiedAlert, at time.Time) {
	if m.snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.Fetch.Timeout)
	defer cancel()
	if err := m.snapshots.SaveAlerts(ctx, alerts, at); err != nil {
		slog.Error("alert snapshot mirror failed", "error", err)
	}
}

func (m *Manager) pollOutlook(ctx context.Context) {
	started := time.Now()
	slog.Debug("polling", "loop", observability.LoopOutlook)

	pctx, cancel := m.pollContext(ctx)
	res := m.fetchOutlooks(pctx)
	var err error
	if res.failed > 0 {
		err = overBudget(pctx, m.cfg.Outlook.SPCBaseURL, fmt.Errorf("%d outlook images failed", res.failed))
	}
	cancel()
	if stopped(ctx) {
		slog.Debug("discarding result after shutdown", "loop", observability.LoopOutlook)
		return
	}
	m.observe(observability.LoopOutlook, started, err)

	var changed []outlook.Selection
	now := m.clock.Now()
	m.update(func(s *Snapshot) {
		changed = changedOutlooks(s.Outlooks, res.images)

		// Failed selections keep their previous image.
		merged := maps.Clone(s.Outlooks)
		maps.Copy(merged, res.images)
		s.Outlooks = merged

		s.OutlookStatus.Attempted = true
		s.OutlookStatus.Error = ""
		if len(res.images) > 0 {
			s.OutlookStatus.UpdatedAt = now
		}
		if err != nil {
			s.OutlookStatus.Error = errorMessage("outlook")
		}
	})

	if len(changed) > 0 {
		m.renderer.RenderOutlook(changed)
	}
	slog.Debug("poll complete", "loop", observability.LoopOutlook, "count", len(res.images), "failed", res.failed)
}

func (m *Manager) pollDiscussions(ctx context.Context) {
	started := time.Now()
	slog.Debug("polling", "loop", observability.LoopDiscussions)

	pctx, cancel := m.pollContext(ctx)
	records, err := m.discussions.Fetch(pctx)
	err = overBudget(pctx, m.cfg.Discussion.FeedURL, err)
	cancel()
	if stopped(ctx) {
		slog.Debug("discarding result after shutdown", "loop", observability.LoopDiscussions)
		return
	}
	m.observe(observability.LoopDiscussions, started, err)
	if err != nil {
		slog.Error("poll failed", "loop", observability.LoopDiscussions, "url", m.cfg.Discussion.FeedURL, "error", err)
		m.update(func(s *Snapshot) {
			s.DiscussionsStatus.Attempted = true
			s.DiscussionsStatus.Error = errorMessage("discussions")
		})
		return
	}

	now := m.clock.Now()
	m.update(func(s *Snapshot) {
		s.Discussions = records
		s.DiscussionsStatus = LoopStatus{Attempted: true, UpdatedAt: now}
	})
	m.renderer.RenderDiscussions(records)

	if m.metrics != nil {
		m.metrics.DiscussionRecords.Set(float64(len(records)))
	}
	slog.Debug("poll complete", "loop", observability.LoopDiscussions, "count", len(records))
}

// pollContext detaches a poll from shutdown and bounds the whole of it,
// pagination and fallbacks included.
func (m *Manager) pollContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.cfg.Fetch.PollTimeout)
}

// stopped reports whether the loop was torn down while its poll ran. A
// deadline on ctx is not a teardown; that poll's outcome is still recorded.
func stopped(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

// overBudget reports a poll that ran out of its time budget as a timeout,
// whatever the individual request that hit the deadline returned.
func overBudget(pctx context.Context, url string, err error) error {
	if err == nil || !errors.Is(pctx.Err(), context.DeadlineExceeded) || fetcher.KindOf(err) == fetcher.KindTimeout {
		return err
	}
	return fetcher.Timeout(url, err)
}

func (m *Manager) observe(loop string, started time.Time, err error) {
	if m.metrics == nil {
		return
	}
	m.metrics.ObservePoll(loop, started, err)
	if kind := fetcher.KindOf(err); kind != "" {
		m.metrics.FetchErrors.WithLabelValues(loop, string(kind)).Inc()
	}
}

// deliver writes one notification to the log and the event topic. A failed
// sink does not stop the other.
func (m *Manager) deliver(ctx context.Context, n models.Notification) error {
	var errs []error

	if m.notifications != nil {
		if err := m.notifications.AddNotification(ctx, &n); err != nil {
			errs = append(errs, err)
			m.sinkFailed("sqlite")
		}
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, n); err != nil {
			errs = append(errs, err)
			m.sinkFailed("kafka")
		}
	}

	if len(errs) == 0 {
		slog.Info("notification delivered", "id", n.ID, "alert_id", n.AlertID, "event_kind", n.Kind)
	}
	return errors.Join(errs...)
}

func (m *Manager) sinkFailed(sink string) {
	if m.metrics != nil {
		m.metrics.NotificationErrors.WithLabelValues(sink).Inc()
	}
}
