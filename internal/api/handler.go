package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/severe-weather-dashboard/internal/ingestion"
	"github.com/mr1hm/severe-weather-dashboard/internal/models"
	"github.com/mr1hm/severe-weather-dashboard/internal/notify"
	"github.com/mr1hm/severe-weather-dashboard/internal/observability"
	"github.com/mr1hm/severe-weather-dashboard/internal/outlook"
	"github.com/mr1hm/severe-weather-dashboard/internal/repository"
)

type SnapshotReader interface {
	Snapshot() *ingestion.Snapshot
}

type Streamer interface {
	Subscribe() (uint64, chan *notify.Event)
	Unsubscribe(id uint64)
}

type Handler struct {
	state       SnapshotReader
	repo        repository.NotificationRepository
	broadcaster Streamer
	selector    *outlook.Selector
	metrics     *observability.Metrics
}

func NewHandler(state SnapshotReader, repo repository.NotificationRepository, broadcaster Streamer, selector *outlook.Selector, metrics *observability.Metrics) *Handler {
	return &Handler{
		state:       state,
		repo:        repo,
		broadcaster: broadcaster,
		selector:    selector,
		metrics:     metrics,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/readyz", h.ready)

	api := r.Group("/api")
	api.GET("/alerts", h.getAlerts)
	api.GET("/alerts/geojson", h.getAlertsGeoJSON)
	api.GET("/outlook", h.getOutlook)
	api.GET("/outlook/image", h.getOutlookImage)
	api.GET("/discussions", h.getDiscussions)
	api.GET("/notifications", h.getNotifications)
	api.GET("/stream", h.stream)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ready(c *gin.Context) {
	snap := h.state.Snapshot()
	body := gin.H{
		"alerts":      snap.AlertsStatus,
		"outlook":     snap.OutlookStatus,
		"discussions": snap.DiscussionsStatus,
	}
	if !snap.Ready() {
		body["status"] = "starting"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}

func (h *Handler) getAlerts(c *gin.Context) {
	snap := h.state.Snapshot()

	var category *models.Category
	if q := c.Query("category"); q != "" {
		cat, ok := models.ParseCategory(q)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category: " + q})
			return
		}
		category = &cat
	}
	kind := strings.ToLower(strings.TrimSpace(c.Query("kind")))

	limit := 0
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			limit = lim
		}
	}

	alerts := make([]models.ClassifiedAlert, 0, len(snap.Alerts))
	for _, a := range snap.Alerts {
		if category != nil && a.Category != *category {
			continue
		}
		if kind != "" && string(a.Kind) != kind && !strings.EqualFold(a.Code, kind) {
			continue
		}
		alerts = append(alerts, a)
		if limit > 0 && len(alerts) == limit {
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts":     alerts,
		"counters":   snap.Counters,
		"updated_at": snap.AlertsStatus.UpdatedAt,
		"error":      snap.AlertsStatus.Error,
		"restored":   snap.Restored,
	})
}

func (h *Handler) getAlertsGeoJSON(c *gin.Context) {
	fc := toGeoJSON(h.state.Snapshot().Alerts)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func parseSelection(c *gin.Context) (outlook.Day, outlook.Product) {
	return outlook.ParseDay(c.Query("day")), outlook.ParseProduct(c.Query("product"))
}

func (h *Handler) getOutlook(c *gin.Context) {
	day, product := parseSelection(c)
	sel := outlook.Normalize(day, product)
	snap := h.state.Snapshot()

	body := gin.H{
		"day":       sel.Day,
		"product":   sel.Product,
		"available": outlook.Available(day, product),
		"url":       h.selector.Resolve(day, product),
		"image_url": "/api/outlook/image?day=" + string(sel.Day) + "&product=" + string(sel.Product),
		"error":     snap.OutlookStatus.Error,
	}
	if img, ok := snap.Outlook(sel); ok {
		body["fetched_at"] = img.FetchedAt
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) getOutlookImage(c *gin.Context) {
	day, product := parseSelection(c)
	img, ok := h.state.Snapshot().Outlook(outlook.Selection{Day: day, Product: product})
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "outlook image not loaded yet"})
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Header("Last-Modified", img.FetchedAt.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, img.ContentType, img.Body)
}

func (h *Handler) getDiscussions(c *gin.Context) {
	snap := h.state.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"discussions": snap.Discussions,
		"updated_at":  snap.DiscussionsStatus.UpdatedAt,
		"error":       snap.DiscussionsStatus.Error,
	})
}

func (h *Handler) getNotifications(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification log disabled"})
		return
	}

	filter := repository.Filter{
		Limit: 20, // Default to 20 notifications if limit param not supplied
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filter.Since = &t
		} else if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if k := c.Query("kind"); k != "" {
		kind := models.EventKind(strings.ToLower(k))
		filter.Kind = &kind
	}
	if q := c.Query("category"); q != "" {
		if cat, ok := models.ParseCategory(q); ok {
			filter.Category = &cat
		}
	}

	notifications, err := h.repo.ListNotifications(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch notifications",
		})
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// stream sends the current alert list, then every render event, as
// server-sent events until the client goes away or the bus closes.
func (h *Handler) stream(c *gin.Context) {
	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	if h.metrics != nil {
		h.metrics.StreamSubscribers.Inc()
		defer h.metrics.StreamSubscribers.Dec()
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(string(notify.EventAlerts), h.state.Snapshot().Alerts)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e.Data)
			return true
		}
	})
}
