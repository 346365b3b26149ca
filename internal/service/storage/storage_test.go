package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"roadstream/internal/config"
	"roadstream/internal/logger"
	"roadstream/internal/model"
	"roadstream/internal/repository/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mp4Header is the start of an ISO base media file with an isom brand.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '1',
}

func fakeMP4(size int) []byte {
	data := make([]byte, size)
	copy(data, mp4Header)
	return data
}

type fixture struct {
	uploads *Uploads
	videos  *sqlite.VideoRepository
	alerts  *sqlite.AlertRepository
	dir     string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "videos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.UploadDir = filepath.Join(t.TempDir(), "uploads")
	cfg.MaxUploadMB = 1

	videos := sqlite.NewVideoRepository(db)
	alerts := sqlite.NewAlertRepository(db)
	return fixture{
		uploads: NewUploads(cfg, videos, alerts, logger.Nop()),
		videos:  videos,
		alerts:  alerts,
		dir:     cfg.UploadDir,
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"road.mp4", "road.mp4"},
		{"../../etc/passwd", "passwd"},
		{`C:\videos\my clip.mov`, "my_clip.mov"},
		{"..hidden.mp4", "hidden.mp4"},
		{"wé!rd$name.avi", "wrdname.avi"},
		{"   ", ""},
		{"..", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestUploads_Save(t *testing.T) {
	f := newFixture(t)

	v, err := f.uploads.Save("pothole", "../My Road.mp4", bytes.NewReader(fakeMP4(10_000)))
	require.NoError(t, err)

	assert.Equal(t, "My_Road.mp4", v.OriginalName)
	assert.True(t, strings.HasSuffix(v.Filename, "_My_Road.mp4"))
	assert.Equal(t, "video/mp4", v.MimeType)
	assert.Equal(t, int64(10_000), v.FileSize)
	assert.Equal(t, filepath.Join(f.dir, v.Filename), v.FilePath)

	st, err := os.Stat(v.FilePath)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), st.Size())

	got, err := f.uploads.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, "pothole", got.Kind)
}

func TestUploads_SaveRejects(t *testing.T) {
	f := newFixture(t)

	_, err := f.uploads.Save("lane", "notes.txt", strings.NewReader("just some text"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = f.uploads.Save("lane", "..", bytes.NewReader(fakeMP4(100)))
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = f.uploads.Save("lane", "big.mp4", bytes.NewReader(fakeMP4(2<<20)))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, _ := os.ReadDir(f.dir)
	assert.Empty(t, entries, "rejected uploads leave no files")
	list, err := f.uploads.List("")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUploads_GetMissing(t *testing.T) {
	f := newFixture(t)

	_, err := f.uploads.Get(42)
	assert.ErrorIs(t, err, ErrNotFound)

	v, err := f.uploads.Save("lane", "a.mp4", bytes.NewReader(fakeMP4(100)))
	require.NoError(t, err)
	require.NoError(t, os.Remove(v.FilePath))
	_, err = f.uploads.Get(v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploads_DeleteRemovesFileAndAlerts(t *testing.T) {
	f := newFixture(t)

	v, err := f.uploads.Save("pothole", "a.mp4", bytes.NewReader(fakeMP4(100)))
	require.NoError(t, err)
	_, err = f.alerts.Insert(&model.Alert{EventID: "e", Stream: "s", Video: v.Filename, Frame: 1, Label: "pothole"})
	require.NoError(t, err)

	require.NoError(t, f.uploads.Delete(v.ID))

	_, err = os.Stat(v.FilePath)
	assert.True(t, os.IsNotExist(err))
	alerts, err := f.alerts.GetByVideo(v.Filename, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.ErrorIs(t, f.uploads.Delete(v.ID), ErrNotFound)
}

func TestUploads_Purge(t *testing.T) {
	f := newFixture(t)

	old, err := f.uploads.Save("lane", "old.mp4", bytes.NewReader(fakeMP4(100)))
	require.NoError(t, err)
	fresh, err := f.uploads.Save("lane", "fresh.mp4", bytes.NewReader(fakeMP4(100)))
	require.NoError(t, err)

	// backdate the first upload
	require.NoError(t, f.videos.Delete(old.ID))
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	_, err = f.videos.Insert(old)
	require.NoError(t, err)

	n, err := f.uploads.Purge(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := f.uploads.List("")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fresh.ID, list[0].ID)
}

func TestUploads_Import(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp4"), fakeMP4(500), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	imported, err := f.uploads.Import(dir, "lane")
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, "clip.mp4", imported[0].Filename)

	again, err := f.uploads.Import(dir, "lane")
	require.NoError(t, err)
	assert.Empty(t, again)
}

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (p *fakePurger) Purge(cutoff time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 1, nil
}

func TestJanitor(t *testing.T) {
	p := &fakePurger{}
	j, err := NewJanitor("@hourly", 2*time.Hour, p, logger.Nop())
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }
	j.RunOnce()

	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, now.Add(-2*time.Hour), p.cutoffs[0])

	j.Start()
	j.Stop()
}

func TestJanitor_InvalidInput(t *testing.T) {
	_, err := NewJanitor("not a schedule", time.Hour, &fakePurger{}, logger.Nop())
	assert.Error(t, err)

	_, err = NewJanitor("@hourly", 0, &fakePurger{}, logger.Nop())
	assert.Error(t, err)
}
