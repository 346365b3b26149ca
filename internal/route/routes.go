package route

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"roadstream/internal/config"
	"roadstream/internal/handler"
	"roadstream/internal/logger"
	"roadstream/internal/middleware"
	"roadstream/internal/repository"
	"roadstream/internal/service/storage"
	"roadstream/internal/service/stream"
)

// Deps are the services the HTTP surface is built from. Metrics may be nil.
type Deps struct {
	Config  *config.Config
	Logger  *logger.Logger
	Auth    *middleware.Auth
	Uploads *storage.Uploads
	Videos  repository.VideoRepository
	Alerts  repository.AlertRepository
	Streams handler.StreamOpener
	Hub     handler.AlertHub
	Counter handler.UploadCounter
	Metrics http.Handler
}

// dynamicHTMLHandler serves /path as static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" {
			path = "/index"
		}
		if strings.Contains(path, "..") {
			http.NotFound(w, r)
			return
		}

		filePath := filepath.Join(staticDir, filepath.FromSlash(path)+".html")
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers pages, uploads, feeds, API endpoints and log
// endpoints, and wraps the mux with the authentication middleware.
func SetupRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	cfg, log := d.Config, d.Logger

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	// Uploads, players and feeds
	mux.HandleFunc("POST /upload/{kind}", handler.UploadHandler(d.Uploads, cfg, d.Counter, log))
	for _, kind := range stream.Kinds {
		k := string(kind)
		mux.HandleFunc("GET /"+k+"_player/{id}", handler.PlayerHandler(kind, d.Uploads, cfg))
		mux.HandleFunc("GET /"+k+"_video_feed/{id}", handler.FeedHandler(kind, d.Uploads, d.Streams, d.Videos, log))
	}

	// API endpoints
	mux.HandleFunc("GET /api/videos", handler.ListVideosHandler(d.Uploads, log))
	mux.HandleFunc("DELETE /api/videos/{id}", handler.DeleteVideoHandler(d.Uploads, log))
	mux.HandleFunc("GET /api/stats", handler.StatsHandler(d.Videos, log))
	mux.HandleFunc("GET /api/alerts/history", handler.AlertHistoryHandler(d.Alerts, log))
	mux.HandleFunc("GET /api/alerts", handler.AlertsWebsocketHandler(d.Hub, log))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(cfg))
	mux.HandleFunc("/logs/{level}/clear", handler.ClearLogsHandler(log))

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(d.Auth, log))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	// Automatic HTML handler mapping, for example /chart -> static/chart.html
	mux.HandleFunc("/", dynamicHTMLHandler(cfg.StaticDir))

	return d.Auth.Middleware(mux)
}
