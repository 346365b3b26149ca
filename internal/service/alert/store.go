package alert

import (
	"context"
	"sync"

	"roadstream/internal/logger"
	"roadstream/internal/model"
	"roadstream/internal/repository"
)

// StoreNotifier persists events in the alert history.
type StoreNotifier struct {
	repo   repository.AlertRepository
	logger *logger.Logger
	wg     sync.WaitGroup
}

func NewStoreNotifier(repo repository.AlertRepository, log *logger.Logger) *StoreNotifier {
	return &StoreNotifier{repo: repo, logger: log}
}

// Notify implements Notifier. The insert runs on its own goroutine.
func (n *StoreNotifier) Notify(_ context.Context, ev Event) {
	rec := &model.Alert{
		EventID:     ev.ID,
		Stream:      ev.Stream,
		Video:       ev.Video,
		Frame:       ev.Frame,
		Label:       ev.Label,
		Count:       ev.Count,
		Confidence:  ev.Confidence,
		Boxes:       ev.Boxes,
		FrameWidth:  ev.Width,
		FrameHeight: ev.Height,
		CreatedAt:   ev.Time,
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if _, err := n.repo.Insert(rec); err != nil {
			n.logger.Error("Failed to store alert %s: %v", ev.ID, err)
		}
	}()
}

// Wait blocks until every pending insert has finished.
func (n *StoreNotifier) Wait() { n.wg.Wait() }
