package alert

import (
	"context"

	"roadstream/internal/logger"
)

// Broadcaster queues a message for live viewers without blocking.
type Broadcaster interface {
	Broadcast(message []byte) bool
}

// HubNotifier pushes events to browser viewers as JSON.
type HubNotifier struct {
	hub    Broadcaster
	logger *logger.Logger
}

// NewHubNotifier returns a notifier over hub.
func NewHubNotifier(hub Broadcaster, log *logger.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, logger: log}
}

// Notify implements Notifier.
func (n *HubNotifier) Notify(_ context.Context, ev Event) {
	payload, err := ev.JSON()
	if err != nil {
		n.logger.Error("Failed to marshal alert %s: %v", ev.ID, err)
		return
	}
	if !n.hub.Broadcast(payload) {
		n.logger.Warning("Alert queue full, dropped alert for frame %d", ev.Frame)
	}
}
