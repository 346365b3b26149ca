package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"roadstream/internal/config"
	"roadstream/internal/logger"
	"roadstream/internal/mjpeg"
	"roadstream/internal/model"
	"roadstream/internal/service/storage"
	"roadstream/internal/service/stream"
	"roadstream/internal/video"
)

// uploadField is the multipart field carrying the video file.
const uploadField = "video"

// StreamOpener starts a processor for a stored video. *stream.Factory
// implements it.
type StreamOpener interface {
	Open(kind stream.Kind, path, name string) (stream.Processor, error)
}

// UploadCounter counts accepted uploads. It may be nil.
type UploadCounter interface {
	Upload(kind string)
}

// ViewCounter records that a feed was opened.
type ViewCounter interface {
	IncrementViews(id int64) error
}

// UploadHandler handles POST /upload/{kind}: stores the file and redirects
// to the matching player. A request without a file goes back to the
// upload page.
func UploadHandler(uploads *storage.Uploads, cfg *config.Config, counter UploadCounter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := stream.ParseKind(r.PathValue("kind"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		back := fmt.Sprintf("/%s_upload", kind)

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes()+1<<20)
		file, header, err := r.FormFile(uploadField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
				return
			}
			logger.Warning("Upload without %q field: %v", uploadField, err)
			http.Redirect(w, r, back, http.StatusSeeOther)
			return
		}
		defer file.Close()

		if header.Filename == "" {
			http.Redirect(w, r, back, http.StatusSeeOther)
			return
		}

		v, err := uploads.Save(string(kind), header.Filename, file)
		switch {
		case errors.Is(err, storage.ErrInvalidName):
			http.Redirect(w, r, back, http.StatusSeeOther)
			return
		case errors.Is(err, storage.ErrUnsupportedType):
			http.Error(w, "Only video files are accepted", http.StatusUnsupportedMediaType)
			return
		case errors.Is(err, storage.ErrTooLarge):
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		case err != nil:
			logger.Error("Failed to store upload %s: %v", header.Filename, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if counter != nil {
			counter.Upload(string(kind))
		}
		http.Redirect(w, r, fmt.Sprintf("/%s_player/%d", kind, v.ID), http.StatusSeeOther)
	}
}

// PlayerHandler serves the player page of kind for a catalogued video. The
// page reads the video id from its own URL.
func PlayerHandler(kind stream.Kind, uploads *storage.Uploads, cfg *config.Config) http.HandlerFunc {
	page := filepath.Join(cfg.StaticDir, string(kind)+"_player.html")
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := lookupVideo(w, r, uploads); !ok {
			return
		}
		if _, err := os.Stat(page); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, page)
	}
}

// FeedHandler streams a catalogued video through the kind pipeline as
// multipart MJPEG. Nothing is written for unknown or unreadable videos
// beyond a 404.
func FeedHandler(kind stream.Kind, uploads *storage.Uploads, opener StreamOpener, views ViewCounter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := lookupVideo(w, r, uploads)
		if !ok {
			return
		}

		p, err := opener.Open(kind, v.FilePath, v.Filename)
		switch {
		case errors.Is(err, video.ErrSourceOpen):
			logger.Warning("Cannot open %s for %s feed: %v", v.Filename, kind, err)
			http.NotFound(w, r)
			return
		case errors.Is(err, stream.ErrModelUnavailable):
			http.Error(w, "Detection model unavailable", http.StatusServiceUnavailable)
			return
		case err != nil:
			logger.Error("Failed to start %s feed for %s: %v", kind, v.Filename, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if views != nil {
			if err := views.IncrementViews(v.ID); err != nil {
				logger.Warning("Failed to count view of %s: %v", v.Filename, err)
			}
		}

		mjpeg.SetHeaders(w.Header())
		w.WriteHeader(http.StatusOK)

		n, err := stream.WriteTo(r.Context(), w, p)
		if err != nil && r.Context().Err() == nil {
			logger.Error("%s feed for %s stopped after %d frames: %v", kind, v.Filename, n, err)
			return
		}
		logger.Info("%s feed for %s finished after %d frames", kind, v.Filename, n)
	}
}

// lookupVideo resolves the {id} path value, writing a 404 when it does
// not name a video on disk.
func lookupVideo(w http.ResponseWriter, r *http.Request, uploads *storage.Uploads) (*model.Video, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	v, err := uploads.Get(id)
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	return v, true
}
