package notifications

import (
	"context"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// Notifier delivers the alerts raised by one tick
type Notifier interface {
	SendAlerts(ctx context.Context, caseID string, alerts []models.Alert) error
}
