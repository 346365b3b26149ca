// Package storage keeps uploaded videos on disk and in the catalogue.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"roadstream/internal/config"
	"roadstream/internal/logger"
	"roadstream/internal/model"
	"roadstream/internal/repository"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const sniffLen = 3072

var (
	ErrInvalidName     = errors.New("invalid file name")
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooLarge        = errors.New("upload too large")
	ErrNotFound        = errors.New("video not found")
)

// SanitizeFilename reduces name to a safe base name: path elements are
// dropped, spaces become underscores, anything outside [A-Za-z0-9._-] is
// removed and leading dots are trimmed. The result may be empty.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.TrimLeft(b.String(), "._")
}

// Uploads stores video files under one directory and records them in the
// catalogue.
type Uploads struct {
	dir      string
	maxBytes int64
	videos   repository.VideoRepository
	alerts   repository.AlertRepository
	logger   *logger.Logger
}

func NewUploads(cfg *config.Config, videos repository.VideoRepository, alerts repository.AlertRepository, logger *logger.Logger) *Uploads {
	return &Uploads{
		dir:      cfg.UploadDir,
		maxBytes: cfg.MaxUploadBytes(),
		videos:   videos,
		alerts:   alerts,
		logger:   logger,
	}
}

// Dir returns the upload directory.
func (u *Uploads) Dir() string { return u.dir }

// Save sniffs r, writes it as <uuid>_<sanitized name> and records it under
// kind. Only video/* content is accepted.
func (u *Uploads) Save(kind, name string, r io.Reader) (*model.Video, error) {
	clean := SanitizeFilename(name)
	if clean == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	mime := mimetype.Detect(head)
	if !strings.HasPrefix(mime.String(), "video/") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mime.String())
	}

	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	stored := uuid.NewString() + "_" + clean
	path := filepath.Join(u.dir, stored)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	size, err := u.copy(f, head, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	v := &model.Video{
		Filename:     stored,
		OriginalName: clean,
		Kind:         kind,
		FilePath:     path,
		FileSize:     size,
		MimeType:     mime.String(),
	}
	if _, err := u.videos.Insert(v); err != nil {
		os.Remove(path)
		return nil, err
	}

	u.logger.Info("Stored %s upload %s (%d bytes, %s)", kind, stored, size, v.MimeType)
	return v, nil
}

func (u *Uploads) copy(dst io.Writer, head []byte, r io.Reader) (int64, error) {
	written, err := dst.Write(head)
	if err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	src := r
	if u.maxBytes > 0 {
		src = io.LimitReader(r, u.maxBytes-int64(written)+1)
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	size := int64(written) + n
	if u.maxBytes > 0 && size > u.maxBytes {
		return 0, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, u.maxBytes)
	}
	return size, nil
}

// Get returns the catalogue entry for id and checks that its file is still
// on disk.
func (u *Uploads) Get(id int64) (*model.Video, error) {
	v, err := u.videos.GetByID(id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if _, err := os.Stat(v.FilePath); err != nil {
		return nil, fmt.Errorf("%w: %s missing on disk", ErrNotFound, v.Filename)
	}
	return v, nil
}

// List returns catalogue entries, optionally only those of kind.
func (u *Uploads) List(kind string) ([]model.Video, error) {
	return u.videos.GetAll(&model.VideoFilter{Kind: kind})
}

// Delete removes the file, its alerts and its catalogue entry.
func (u *Uploads) Delete(id int64) error {
	v, err := u.videos.GetByID(id)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return u.remove(v)
}

func (u *Uploads) remove(v *model.Video) error {
	if err := os.Remove(v.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if u.alerts != nil {
		if err := u.alerts.DeleteByVideo(v.Filename); err != nil {
			return err
		}
	}
	if err := u.videos.Delete(v.ID); err != nil {
		return err
	}
	u.logger.Info("Deleted video %s", v.Filename)
	return nil
}

// Purge deletes every upload created before cutoff and returns how many
// were removed.
func (u *Uploads) Purge(cutoff time.Time) (int, error) {
	old, err := u.videos.GetAll(&model.VideoFilter{CreatedBefore: cutoff})
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range old {
		if err := u.remove(&old[i]); err != nil {
			u.logger.Error("Failed to purge %s: %v", old[i].Filename, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Import records video files already present in dir that the catalogue
// does not know about. Non-video files are skipped.
func (u *Uploads) Import(dir, kind string) ([]model.Video, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var imported []model.Video
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		existing, err := u.videos.GetByFilename(e.Name())
		if err != nil {
			return imported, err
		}
		if existing != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		mime, err := mimetype.DetectFile(path)
		if err != nil || !strings.HasPrefix(mime.String(), "video/") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		v := model.Video{
			Filename:     e.Name(),
			OriginalName: e.Name(),
			Kind:         kind,
			FilePath:     path,
			FileSize:     info.Size(),
			MimeType:     mime.String(),
			CreatedAt:    info.ModTime(),
		}
		if _, err := u.videos.Insert(&v); err != nil {
			return imported, err
		}
		imported = append(imported, v)
	}
	return imported, nil
}
