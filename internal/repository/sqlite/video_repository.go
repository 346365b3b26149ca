package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"roadstream/internal/model"
)

// VideoRepository implements repository.VideoRepository for SQLite.
type VideoRepository struct {
	db *DB
}

// NewVideoRepository creates a new SQLite video repository.
func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

const videoColumns = `id, filename, original_name, kind, filepath, filesize, mime_type, views, created_at`

func scanVideo(row interface{ Scan(...any) error }) (model.Video, error) {
	var v model.Video
	err := row.Scan(&v.ID, &v.Filename, &v.OriginalName, &v.Kind, &v.FilePath, &v.FileSize, &v.MimeType, &v.Views, &v.CreatedAt)
	return v, err
}

// Insert adds a new video record. A zero CreatedAt is set to now.
func (r *VideoRepository) Insert(v *model.Video) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	result, err := r.db.Conn().Exec(`
		INSERT INTO videos (filename, original_name, kind, filepath, filesize, mime_type, views, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, v.Filename, v.OriginalName, v.Kind, v.FilePath, v.FileSize, v.MimeType, v.Views, v.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert video: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	v.ID = id
	return id, nil
}

// GetByID retrieves a video by its ID.
func (r *VideoRepository) GetByID(id int64) (*model.Video, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	v, err := scanVideo(r.db.Conn().QueryRow(`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return &v, nil
}

// GetByFilename retrieves a video by its stored filename.
func (r *VideoRepository) GetByFilename(filename string) (*model.Video, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	v, err := scanVideo(r.db.Conn().QueryRow(`SELECT `+videoColumns+` FROM videos WHERE filename = ?`, filename))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return &v, nil
}

// GetAll retrieves videos newest first.
func (r *VideoRepository) GetAll(filter *model.VideoFilter) ([]model.Video, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if filter == nil {
		filter = &model.VideoFilter{}
	}

	query := `SELECT ` + videoColumns + ` FROM videos WHERE 1=1`
	args := []interface{}{}

	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}

	if !filter.CreatedBefore.IsZero() {
		query += " AND created_at < ?"
		args = append(args, filter.CreatedBefore)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	videos := []model.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// IncrementViews records that a feed was opened for the video.
func (r *VideoRepository) IncrementViews(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`UPDATE videos SET views = views + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to update views: %w", err)
	}
	return nil
}

// Delete removes a video record.
func (r *VideoRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM videos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return nil
}

// GetStats returns statistics about stored videos and raised alerts.
func (r *VideoRepository) GetStats() (*model.Stats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.Stats{
		PerKind:        make(map[string]int),
		AlertsPerVideo: make(map[string]int),
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*), COALESCE(SUM(filesize), 0) FROM videos`).Scan(&stats.TotalVideos, &stats.TotalSizeBytes); err != nil {
		return nil, err
	}
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&stats.TotalAlerts); err != nil {
		return nil, err
	}
	if err := r.groupCount(`SELECT kind, COUNT(*) FROM videos GROUP BY kind`, stats.PerKind); err != nil {
		return nil, err
	}
	if err := r.groupCount(`SELECT video, COUNT(*) FROM alerts GROUP BY video`, stats.AlertsPerVideo); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *VideoRepository) groupCount(query string, into map[string]int) error {
	rows, err := r.db.Conn().Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}
