package repository

import (
	"roadstream/internal/model"
)

// VideoRepository defines the catalogue operations. Lookups return a nil
// video and a nil error when nothing matches.
type VideoRepository interface {
	// Create operations
	Insert(v *model.Video) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Video, error)
	GetByFilename(filename string) (*model.Video, error)
	GetAll(filter *model.VideoFilter) ([]model.Video, error)
	GetStats() (*model.Stats, error)

	// Update operations
	IncrementViews(id int64) error

	// Delete operations
	Delete(id int64) error
}

// AlertRepository stores alert events raised while streaming.
type AlertRepository interface {
	Insert(a *model.Alert) (int64, error)
	GetByVideo(video string, limit int) ([]model.Alert, error)
	GetRecent(limit int) ([]model.Alert, error)
	DeleteByVideo(video string) error
}
