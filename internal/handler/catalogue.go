package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"roadstream/internal/logger"
	"roadstream/internal/model"
	"roadstream/internal/repository"
	"roadstream/internal/service/storage"
	"roadstream/internal/service/stream"
)

// VideosResponse is the body of GET /api/videos.
type VideosResponse struct {
	Videos []model.Video `json:"videos"`
	Length int           `json:"length"`
}

// ListVideosHandler returns the catalogue, optionally filtered by ?kind=.
func ListVideosHandler(uploads *storage.Uploads, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := r.URL.Query().Get("kind")
		if kind != "" {
			k, err := stream.ParseKind(kind)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			kind = string(k)
		}

		videos, err := uploads.List(kind)
		if err != nil {
			logger.Error("Error querying videos from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, http.StatusOK, VideosResponse{Videos: videos, Length: len(videos)})
	}
}

// DeleteVideoHandler removes a video file, its alerts and its record.
func DeleteVideoHandler(uploads *storage.Uploads, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid video id", http.StatusBadRequest)
			return
		}

		if err := uploads.Delete(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			logger.Error("Failed to delete video %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, http.StatusOK, map[string]any{"status": "deleted", "id": id})
	}
}

// StatsHandler returns catalogue and alert totals for the chart page.
func StatsHandler(videos repository.VideoRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := videos.GetStats()
		if err != nil {
			logger.Error("Error computing stats: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, http.StatusOK, stats)
	}
}

// AlertHistoryHandler returns stored alerts, newest first. ?video= narrows
// to one stored filename and ?limit= caps the list.
func AlertHistoryHandler(alerts repository.AlertRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := atoiDefault(q.Get("limit"), 100)

		var (
			list []model.Alert
			err  error
		)
		if video := q.Get("video"); video != "" {
			list, err = alerts.GetByVideo(video, limit)
		} else {
			list, err = alerts.GetRecent(limit)
		}
		if err != nil {
			logger.Error("Error querying alerts: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, http.StatusOK, list)
	}
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// atoiDefault converts s to int or returns def when conversion fails or the
// value is not positive.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
