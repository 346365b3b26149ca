package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"roadstream/internal/detect"
	"roadstream/internal/model"
)

// AlertRepository implements repository.AlertRepository for SQLite.
type AlertRepository struct {
	db *DB
}

// NewAlertRepository creates a new SQLite alert repository.
func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Insert adds a new alert record.
func (r *AlertRepository) Insert(a *model.Alert) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	boxes := a.Boxes
	if boxes == nil {
		boxes = []detect.Box{}
	}
	encoded, err := json.Marshal(boxes)
	if err != nil {
		return 0, fmt.Errorf("failed to encode alert boxes: %w", err)
	}

	result, err := r.db.Conn().Exec(`
		INSERT INTO alerts (event_id, stream, video, frame, label, count, confidence, boxes, frame_width, frame_height, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.EventID, a.Stream, a.Video, a.Frame, a.Label, a.Count, a.Confidence, string(encoded), a.FrameWidth, a.FrameHeight, a.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.ID = id
	return id, nil
}

// GetByVideo returns the newest alerts raised for video.
func (r *AlertRepository) GetByVideo(video string, limit int) ([]model.Alert, error) {
	return r.query(`WHERE video = ?`, limit, video)
}

// GetRecent returns the newest alerts across all videos.
func (r *AlertRepository) GetRecent(limit int) ([]model.Alert, error) {
	return r.query(``, limit)
}

func (r *AlertRepository) query(where string, limit int, args ...interface{}) ([]model.Alert, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, event_id, stream, video, frame, label, count, confidence, boxes, frame_width, frame_height, created_at
		FROM alerts ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []model.Alert{}
	for rows.Next() {
		var (
			a     model.Alert
			boxes string
		)
		if err := rows.Scan(&a.ID, &a.EventID, &a.Stream, &a.Video, &a.Frame, &a.Label, &a.Count, &a.Confidence, &boxes, &a.FrameWidth, &a.FrameHeight, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if err := json.Unmarshal([]byte(boxes), &a.Boxes); err != nil {
			return nil, fmt.Errorf("failed to decode alert boxes: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// DeleteByVideo removes every alert recorded for video.
func (r *AlertRepository) DeleteByVideo(video string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM alerts WHERE video = ?`, video); err != nil {
		return fmt.Errorf("failed to delete alerts: %w", err)
	}
	return nil
}
