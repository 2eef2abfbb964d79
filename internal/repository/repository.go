package repository

import (
	"context"
	"time"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
)

type Filter struct {
	Limit    int
	Since    *time.Time
	Kind     *models.EventKind
	Category *models.Category
}

type NotificationRepository interface {
	AddNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, opts Filter) ([]models.Notification, error)
	CountNotifications(ctx context.Context) (int, error)
}

// SnapshotStore mirrors the current alert set for other dashboard instances.
type SnapshotStore interface {
	SaveAlerts(ctx context.Context, alerts []models.ClassifiedAlert, updatedAt time.Time) error
	LoadAlerts(ctx context.Context) ([]models.ClassifiedAlert, time.Time, error)
}
