package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/goleak"

	"github.com/mr1hm/severe-weather-dashboard/internal/classifier"
	"github.com/mr1hm/severe-weather-dashboard/internal/config"
	"github.com/mr1hm/severe-weather-dashboard/internal/fetcher"
	"github.com/mr1hm/severe-weather-dashboard/internal/models"
	"github.com/mr1hm/severe-weather-dashboard/internal/observability"
	"github.com/mr1hm/severe-weather-dashboard/internal/outlook"
	"github.com/mr1hm/severe-weather-dashboard/internal/overlay"
	"github.com/mr1hm/severe-weather-dashboard/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	alertsURL = "https://api.weather.gov/alerts/active?status=actual"
	spcBase   = "https://www.spc.noaa.gov"
)

// fakeGetter routes requests through a swappable handler.
type fakeGetter struct {
	mu      sync.Mutex
	handler func(ctx context.Context, url string) (*fetcher.Response, error)
	calls   []string
}

func (f *fakeGetter) Get(ctx context.Context, url, accept string) (*fetcher.Response, error) {
	f.mu.Lock()
	h := f.handler
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	return h(ctx, url)
}

func (f *fakeGetter) set(h func(ctx context.Context, url string) (*fetcher.Response, error)) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeGetter) serveAlerts(pages map[string]string) {
	f.set(func(ctx context.Context, url string) (*fetcher.Response, error) {
		body, ok := pages[url]
		if !ok {
			return nil, &fetcher.FetchError{Kind: fetcher.KindStatus, URL: url, StatusCode: 404}
		}
		return &fetcher.Response{URL: url, StatusCode: 200, ContentType: "application/geo+json", Body: []byte(body)}, nil
	})
}

// recordingRenderer keeps every render call.
type recordingRenderer struct {
	mu            sync.Mutex
	alerts        [][]models.ClassifiedAlert
	polygons      []overlay.Diff
	notifications []models.Notification
	outlooks      [][]outlook.Selection
	discussions   [][]models.DiscussionRecord
}

func (r *recordingRenderer) RenderAlerts(a []models.ClassifiedAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingRenderer) RenderPolygons(d overlay.Diff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polygons = append(r.polygons, d)
}

func (r *recordingRenderer) PlayNotification(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recordingRenderer) RenderOutlook(s []outlook.Selection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outlooks = append(r.outlooks, s)
}

func (r *recordingRenderer) RenderDiscussions(d []models.DiscussionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discussions = append(r.discussions, d)
}

func (r *recordingRenderer) notificationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

type fakeDiscussions struct {
	mu      sync.Mutex
	records []models.DiscussionRecord
	err     error
	delay   time.Duration
}

func (f *fakeDiscussions) Fetch(ctx context.Context) ([]models.DiscussionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.records, f.err
}

// mockNotificationRepo implements repository.NotificationRepository.
type mockNotificationRepo struct {
	mu    sync.Mutex
	saved []models.Notification
	err   error
}

func (m *mockNotificationRepo) AddNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, *n)
	return nil
}

func (m *mockNotificationRepo) ListNotifications(ctx context.Context, opts repository.Filter) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Notification(nil), m.saved...), nil
}

func (m *mockNotificationRepo) CountNotifications(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved), nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published []models.Notification
}

func (p *mockPublisher) Publish(ctx context.Context, n models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, n)
	return nil
}

type mockSnapshotStore struct {
	mu        sync.Mutex
	alerts    []models.ClassifiedAlert
	updatedAt time.Time
	saves     int
}

func (s *mockSnapshotStore) SaveAlerts(ctx context.Context, alerts []models.ClassifiedAlert, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts, s.updatedAt = alerts, at
	s.saves++
	return nil
}

func (s *mockSnapshotStore) LoadAlerts(ctx context.Context) ([]models.ClassifiedAlert, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alerts == nil {
		return nil, time.Time{}, repository.ErrNoSnapshot
	}
	return s.alerts, s.updatedAt, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{Count: 1, BufferSize: 10},
		Alerts: config.AlertsConfig{
			URL:          alertsURL,
			PollInterval: time.Minute,
			MaxPages:     3,
		},
		Outlook: config.OutlookConfig{SPCBaseURL: spcBase, PollInterval: 10 * time.Minute},
		Discussion: config.DiscussionConfig{
			PollInterval: 10 * time.Minute,
		},
		Fetch: config.FetchConfig{Timeout: time.Second, PollTimeout: 5 * time.Second},
	}
}

type harness struct {
	mgr         *Manager
	getter      *fakeGetter
	renderer    *recordingRenderer
	discussions *fakeDiscussions
	repo        *mockNotificationRepo
	publisher   *mockPublisher
	clock       *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		getter:      &fakeGetter{},
		renderer:    &recordingRenderer{},
		discussions: &fakeDiscussions{},
		repo:        &mockNotificationRepo{},
		publisher:   &mockPublisher{},
		clock:       clockwork.NewFakeClockAt(time.Date(2025, 5, 6, 19, 15, 0, 0, time.UTC)),
	}
	h.getter.serveAlerts(map[string]string{alertsURL: collection("")})
	h.mgr = NewManager(testConfig(), Deps{
		Getter:        h.getter,
		Classifier:    classifier.New(classifier.DefaultRules()),
		Discussions:   h.discussions,
		Renderer:      h.renderer,
		Notifications: h.repo,
		Publisher:     h.publisher,
		Metrics:       observability.NewMetrics(prometheus.NewRegistry()),
		Clock:         h.clock,
	})
	return h
}

func feature(id, event, description string, withGeometry bool) map[string]any {
	f := map[string]any{
		"id": "https://api.weather.gov/alerts/" + id,
		"properties": map[string]any{
			"id":          id,
			"event":       event,
			"headline":    event + " issued",
			"description": description,
			"areaDesc":    "Cleveland, OK",
		},
		"geometry": nil,
	}
	if withGeometry {
		f["geometry"] = map[string]any{
			"type":        "Polygon",
			"coordinates": [][][]float64{{{-97.5, 35.2}, {-97.3, 35.2}, {-97.3, 35.4}, {-97.5, 35.2}}},
		}
	}
	return f
}

func collection(next string, features ...any) string {
	doc := map[string]any{"type": "FeatureCollection", "features": features}
	if features == nil {
		doc["features"] = []any{}
	}
	if next != "" {
		doc["pagination"] = map[string]string{"next": next}
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

func alertIDs(alerts []models.ClassifiedAlert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.ID
	}
	return out
}

func TestManager_FirstPollSortsWithoutNotifying(t *testing.T) {
	h := newHarness(t)
	h.getter.serveAlerts(map[string]string{alertsURL: collection("",
		feature("ffa-1", "Flash Flood Watch", "", false),
		feature("wsw-1", "Winter Storm Warning", "", false),
		feature("tor-1", "Tornado Warning", "tornado...observed", true),
	)})

	h.mgr.pollAlerts(context.Background())

	snap := h.mgr.Snapshot()
	assert.Equal(t, []string{"tor-1", "ffa-1"}, alertIDs(snap.Alerts))
	assert.Equal(t, "OBSERVED", snap.Alerts[0].Tag)
	assert.Equal(t, 1, snap.Counters.ByCode["TOR"])
	assert.Equal(t, 2, snap.Counters.Total)
	assert.True(t, snap.AlertsStatus.Attempted)
	assert.Empty(t, snap.AlertsStatus.Error)
	assert.Equal(t, h.clock.Now(), snap.AlertsStatus.UpdatedAt)

	require.Len(t, h.renderer.alerts, 1)
	require.Len(t, h.renderer.polygons, 1)
	require.Len(t, h.renderer.polygons[0].Add, 1)
	assert.Equal(t, "tor-1", h.renderer.polygons[0].Add[0].AlertID)
	assert.Zero(t, h.renderer.notificationCount())
}

func TestManager_NewAlertNotifiesOnce(t *testing.T) {
	h := newHarness(t)
	h.mgr.pool.Start(context.Background())

	h.getter.serveAlerts(map[string]string{alertsURL: collection("",
		feature("svr-1", "Severe Thunderstorm Warning", "", false),
	)})
	h.mgr.pollAlerts(context.Background())

	h.getter.serveAlerts(map[string]string{alertsURL: collection("",
		feature("svr-1", "Severe Thunderstorm Warning", "", false),
		feature("tor-2", "Tornado Warning", "tornado emergency", false),
	)})
	h.mgr.pollAlerts(context.Background())

	// Same batch again: nothing new.
	h.mgr.pollAlerts(context.Background())
	h.mgr.pool.Stop()

	require.Equal(t, 1, h.renderer.notificationCount())
	n := h.renderer.notifications[0]
	assert.Equal(t, "tor-2", n.AlertID)
	assert.Equal(t, models.SoundEmergency, n.Sound)
	assert.Equal(t, "Tornado Warning - TORNADO EMERGENCY", n.Title)

	require.Len(t, h.repo.saved, 1)
	assert.Equal(t, n.ID, h.repo.saved[0].ID)
	require.Len(t, h.publisher.published, 1)
	assert.Equal(t, "tor-2", h.publisher.published[0].AlertID)
}

func TestManager_FailedPollKeepsPreviousAlerts(t *testing.T) {
	h := newHarness(t)
	h.getter.serveAlerts(map[string]string{alertsURL: collection("",
		feature("tor-1", "Tornado Warning", "", true),
	)})
	h.mgr.pollAlerts(context.Background())
	before := h.mgr.Snapshot()

	h.getter.set(func(ctx context.Context, url string) (*fetcher.Response, error) {
		return nil, &fetcher.FetchError{Kind: fetcher.KindTimeout, URL: url, Err: context.DeadlineExceeded}
	})
	h.clock.Advance(time.Minute)
	h.mgr.pollAlerts(context.Background())

	snap := h.mgr.Snapshot()
	assert.Equal(t, []string{"tor-1"}, alertIDs(snap.Alerts))
	assert.Equal(t, "Error loading alerts. Will retry.", snap.AlertsStatus.Error)
	assert.Equal(t, before.AlertsStatus.UpdatedAt, snap.AlertsStatus.UpdatedAt)
	assert.Len(t, h.renderer.alerts, 1, "a failed poll renders nothing")

	// Recovery clears the message.
	h.getter.serveAlerts(map[string]string{alertsURL: collection("")})
	h.mgr.pollAlerts(context.Background())

	snap = h.mgr.Snapshot()
	assert.Empty(t, snap.Alerts)
	assert.Empty(t, snap.AlertsStatus.Error)
	require.Len(t, h.renderer.polygons, 2)
	assert.Equal(t, []string{"tor-1"}, h.renderer.polygons[1].Remove)
}

func TestManager_MalformedFeatureDroppedAlone(t *testing.T) {
	h := newHarness(t)
	bad := map[string]any{
		"id":         "bad",
		"properties": map[string]any{"id": "bad", "event": "Tornado Warning", "effective": "not-a-time"},
	}
	h.getter.serveAlerts(map[string]string{alertsURL: collection("",
		bad,
		feature("tor-1", "Tornado Warning", "", false),
	)})

	h.mgr.pollAlerts(context.Background())

	snap := h.mgr.Snapshot()
	assert.Equal(t, []string{"tor-1"}, alertIDs(snap.Alerts))
	assert.Empty(t, snap.AlertsStatus.Error)
}

func TestManager_MalformedCollectionIsAnError(t *testing.T) {
	h := newHarness(t)
	h.getter.serveAlerts(map[string]string{alertsURL: "<html>maintenance</html>"})

	h.mgr.pollAlerts(context.Background())

	assert.Equal(t, "Error loading alerts. Will retry.", h.mgr.Snapshot().AlertsStatus.Error)
}

func TestManager_FollowsPagination(t *testing.T) {
	h := newHarness(t)
	page2 := "https://api.weather.gov/alerts/active?status=actual&cursor=2"
	page3 := "https://api.weather.gov/alerts/active?status=actual&cursor=3"
	h.getter.serveAlerts(map[string]string{
		alertsURL: collection(page2, feature("a", "Tornado Watch", "", false)),
		page2:     collection(page3, feature("b", "Flash Flood Warning", "", false)),
		page3:     collection(page2, feature("c", "Tornado Warning", "", false)),
	})

	h.mgr.pollAlerts(context.Background())

	assert.Equal(t, []string{"c", "b", "a"}, alertIDs(h.mgr.Snapshot().Alerts))
	assert.Len(t, h.getter.calls, 3, "page cap and visited set stop the walk")
}

func TestManager_DiscardsResultAfterShutdown(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	h.getter.set(func(fctx context.Context, url string) (*fetcher.Response, error) {
		// The fetch itself is not cancelled by shutdown.
		assert.NoError(t, fctx.Err())
		cancel()
		return &fetcher.Response{URL: url, StatusCode: 200, Body: []byte(collection("",
			feature("tor-1", "Tornado Warning", "", false),
		))}, nil
	})

	h.mgr.pollAlerts(ctx)

	snap := h.mgr.Snapshot()
	assert.Empty(t, snap.Alerts)
	assert.False(t, snap.AlertsStatus.Attempted)
	assert.Empty(t, h.renderer.alerts)
}

func serveOutlooks(h *harness, body string, fail func(url string) bool) {
	h.getter.set(func(ctx context.Context, url string) (*fetcher.Response, error) {
		if fail != nil && fail(url) {
			return nil, &fetcher.FetchError{Kind: fetcher.KindNetwork, URL: url, Err: errors.New("connection reset")}
		}
		return &fetcher.Response{URL: url, StatusCode: 200, ContentType: "image/gif", Body: []byte(body)}, nil
	})
}

func TestManager_PollOutlook(t *testing.T) {
	h := newHarness(t)
	serveOutlooks(h, "GIF89a-v1", nil)

	h.mgr.pollOutlook(context.Background())

	snap := h.mgr.Snapshot()
	assert.Len(t, snap.Outlooks, len(outlook.Selections()))
	assert.Empty(t, snap.OutlookStatus.Error)
	require.Len(t, h.renderer.outlooks, 1)
	assert.Len(t, h.renderer.outlooks[0], len(outlook.Selections()))

	stamp := "?" + strconv.FormatInt(h.clock.Now().UnixMilli(), 10)
	for _, url := range h.getter.calls {
		assert.True(t, strings.HasSuffix(url, stamp), "cache buster from the injected clock: %s", url)
	}

	img, ok := snap.Outlook(outlook.Selection{Day: outlook.Day3, Product: outlook.Hail})
	require.True(t, ok)
	assert.Equal(t, spcBase+"/products/outlook/day3prob.gif", img.URL)
	assert.Equal(t, "image/gif", img.ContentType)

	// Unchanged bytes: no render, but the next poll busts caches again.
	h.clock.Advance(10 * time.Minute)
	h.mgr.pollOutlook(context.Background())
	assert.Len(t, h.renderer.outlooks, 1)
	last := h.getter.calls[len(h.getter.calls)-1]
	assert.True(t, strings.HasSuffix(last, "?"+strconv.FormatInt(h.clock.Now().UnixMilli(), 10)))
}

func TestManager_PollOutlookPartialFailureKeepsOldImage(t *testing.T) {
	h := newHarness(t)
	serveOutlooks(h, "v1", nil)
	h.mgr.pollOutlook(context.Background())

	serveOutlooks(h, "v2", func(url string) bool {
		return strings.Contains(url, "day1otlk.gif")
	})
	h.mgr.pollOutlook(context.Background())

	snap := h.mgr.Snapshot()
	day1, ok := snap.Outlook(outlook.Selection{Day: outlook.Day1, Product: outlook.Categorical})
	require.True(t, ok)
	assert.Equal(t, "v1", string(day1.Body))

	day2, _ := snap.Outlook(outlook.Selection{Day: outlook.Day2, Product: outlook.Categorical})
	assert.Equal(t, "v2", string(day2.Body))

	assert.Equal(t, "Error loading outlook. Will retry.", snap.OutlookStatus.Error)
	require.Len(t, h.renderer.outlooks, 2)
	assert.Len(t, h.renderer.outlooks[1], len(outlook.Selections())-1)
}

func TestManager_PollOutlookRejectsNonImage(t *testing.T) {
	h := newHarness(t)
	h.getter.set(func(ctx context.Context, url string) (*fetcher.Response, error) {
		return &fetcher.Response{URL: url, StatusCode: 200, ContentType: "text/html", Body: []byte("<html>")}, nil
	})

	h.mgr.pollOutlook(context.Background())

	snap := h.mgr.Snapshot()
	assert.Empty(t, snap.Outlooks)
	assert.Equal(t, "Error loading outlook. Will retry.", snap.OutlookStatus.Error)
	assert.Empty(t, h.renderer.outlooks)
}

func TestManager_PollDiscussions(t *testing.T) {
	h := newHarness(t)
	h.discussions.records = []models.DiscussionRecord{{Number: "0765", Title: "Mesoscale Discussion 0765"}}

	h.mgr.pollDiscussions(context.Background())

	snap := h.mgr.Snapshot()
	require.Len(t, snap.Discussions, 1)
	assert.Empty(t, snap.DiscussionsStatus.Error)
	require.Len(t, h.renderer.discussions, 1)

	h.discussions.err = errors.New("feed and index unreachable")
	h.mgr.pollDiscussions(context.Background())

	snap = h.mgr.Snapshot()
	require.Len(t, snap.Discussions, 1, "previous records stay on failure")
	assert.Equal(t, "Error loading discussions. Will retry.", snap.DiscussionsStatus.Error)
	assert.Len(t, h.renderer.discussions, 1)
}

func TestManager_SnapshotsAreNotMutated(t *testing.T) {
	h := newHarness(t)
	h.getter.serveAlerts(map[string]string{alertsURL: collection("",
		feature("tor-1", "Tornado Warning", "", false),
	)})
	h.mgr.pollAlerts(context.Background())
	held := h.mgr.Snapshot()

	h.discussions.records = []models.DiscussionRecord{{Number: "0001"}}
	h.mgr.pollDiscussions(context.Background())

	assert.Empty(t, held.Discussions)
	assert.Len(t, h.mgr.Snapshot().Discussions, 1)
	assert.Len(t, h.mgr.Snapshot().Alerts, 1)
}

func TestManager_StartStop(t *testing.T) {
	h := newHarness(t)
	store := &mockSnapshotStore{
		alerts:    []models.ClassifiedAlert{{ID: "restored", Code: "TOR"}},
		updatedAt: time.Date(2025, 5, 6, 18, 0, 0, 0, time.UTC),
	}
	h.mgr.snapshots = store

	h.getter.set(func(ctx context.Context, url string) (*fetcher.Response, error) {
		if strings.HasPrefix(url, alertsURL) {
			return &fetcher.Response{URL: url, StatusCode: 200, Body: []byte(collection("",
				feature("tor-1", "Tornado Warning", "", false),
			))}, nil
		}
		return &fetcher.Response{URL: url, StatusCode: 200, ContentType: "image/gif", Body: []byte("gif")}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.mgr.Start(ctx)

	require.Eventually(t, func() bool { return h.mgr.Snapshot().Ready() }, 2*time.Second, 10*time.Millisecond)

	cancel()
	h.mgr.Stop()

	snap := h.mgr.Snapshot()
	assert.Equal(t, []string{"tor-1"}, alertIDs(snap.Alerts))
	assert.False(t, snap.Restored)
	assert.Zero(t, h.renderer.notificationCount())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, []string{"tor-1"}, alertIDs(store.alerts))
}

func TestManager_RestoreSeedsAlerts(t *testing.T) {
	h := newHarness(t)
	at := time.Date(2025, 5, 6, 18, 0, 0, 0, time.UTC)
	h.mgr.snapshots = &mockSnapshotStore{
		alerts:    []models.ClassifiedAlert{{ID: "restored", Code: "SVR"}},
		updatedAt: at,
	}

	h.mgr.restore(context.Background())

	snap := h.mgr.Snapshot()
	assert.True(t, snap.Restored)
	assert.Equal(t, []string{"restored"}, alertIDs(snap.Alerts))
	assert.Equal(t, 1, snap.Counters.ByCode["SVR"])
	assert.Equal(t, at, snap.AlertsStatus.UpdatedAt)
	assert.False(t, snap.AlertsStatus.Attempted)
}

func TestManager_DeliverJoinsSinkErrors(t *testing.T) {
	h := newHarness(t)
	h.repo.err = errors.New("disk full")

	err := h.mgr.deliver(context.Background(), models.Notification{ID: "n1", AlertID: "a"})

	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, h.publisher.published, 1, "kafka still receives the notification")
}

func TestManager_RefreshRunsNamedLoops(t *testing.T) {
	h := newHarness(t)
	h.discussions.records = []models.DiscussionRecord{{Number: "0765"}}

	snap := h.mgr.Refresh(context.Background(), observability.LoopDiscussions)

	assert.True(t, snap.DiscussionsStatus.Attempted)
	assert.False(t, snap.AlertsStatus.Attempted)
	assert.False(t, snap.OutlookStatus.Attempted)
	assert.Empty(t, h.getter.calls)
}

func TestManager_RefreshPastCallerDeadlineStillRecords(t *testing.T) {
	h := newHarness(t)
	h.discussions.records = []models.DiscussionRecord{{Number: "0765"}}
	h.discussions.delay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	snap := h.mgr.Refresh(ctx, observability.LoopDiscussions)

	require.Error(t, ctx.Err())
	assert.True(t, snap.DiscussionsStatus.Attempted)
	assert.Empty(t, snap.DiscussionsStatus.Error)
	require.Len(t, snap.Discussions, 1)
	assert.Equal(t, "0765", snap.Discussions[0].Number)

	st, ok := snap.Status(observability.LoopDiscussions)
	assert.True(t, ok)
	assert.True(t, st.Attempted)
	st, ok = snap.Status(observability.LoopAlerts)
	assert.True(t, ok)
	assert.False(t, st.Attempted)
	_, ok = snap.Status("radar")
	assert.False(t, ok)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestManager_SlowPaginationFailsWholePoll(t *testing.T) {
	h := newHarness(t)
	h.getter.serveAlerts(map[string]string{alertsURL: collection("",
		feature("tor-1", "Tornado Warning", "", false),
	)})
	h.mgr.pollAlerts(context.Background())

	page2 := alertsURL + "&cursor=2"
	page3 := alertsURL + "&cursor=3"
	pages := map[string]string{
		alertsURL: collection(page2, feature("svr-1", "Severe Thunderstorm Warning", "", false)),
		page2:     collection(page3, feature("svr-2", "Severe Thunderstorm Warning", "", false)),
		page3:     collection("", feature("svr-3", "Severe Thunderstorm Warning", "", false)),
	}
	// Every page answers well inside the request timeout, but three of them
	// do not fit the poll budget.
	h.getter.set(func(ctx context.Context, url string) (*fetcher.Response, error) {
		select {
		case <-time.After(30 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &fetcher.Response{URL: url, StatusCode: 200, Body: []byte(pages[url])}, nil
	})
	h.mgr.cfg.Fetch.PollTimeout = 50 * time.Millisecond

	h.mgr.pollAlerts(context.Background())

	snap := h.mgr.Snapshot()
	assert.Equal(t, []string{"tor-1"}, alertIDs(snap.Alerts), "a partial page set never replaces the last one")
	assert.Equal(t, "Error loading alerts. Will retry.", snap.AlertsStatus.Error)
	assert.NotContains(t, h.getter.calls, page3)
	assert.Equal(t, 1.0, counterValue(t, h.mgr.metrics.FetchErrors.WithLabelValues(observability.LoopAlerts, string(fetcher.KindTimeout))))
}

func TestManager_SlowDiscussionsTimeOut(t *testing.T) {
	h := newHarness(t)
	h.discussions.records = []models.DiscussionRecord{{Number: "0765"}}
	h.discussions.delay = time.Second
	h.mgr.cfg.Fetch.PollTimeout = 20 * time.Millisecond

	h.mgr.pollDiscussions(context.Background())

	snap := h.mgr.Snapshot()
	assert.True(t, snap.DiscussionsStatus.Attempted)
	assert.Equal(t, "Error loading discussions. Will retry.", snap.DiscussionsStatus.Error)
	assert.Empty(t, snap.Discussions)
	assert.Equal(t, 1.0, counterValue(t, h.mgr.metrics.FetchErrors.WithLabelValues(observability.LoopDiscussions, string(fetcher.KindTimeout))))
}
