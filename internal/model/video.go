package model

import (
	"time"

	"roadstream/internal/detect"
)

// Video is an uploaded file in the catalogue.
type Video struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Kind         string    `json:"kind"`
	FilePath     string    `json:"-"`
	FileSize     int64     `json:"filesize"`
	MimeType     string    `json:"mime_type"`
	Views        int       `json:"views"`
	CreatedAt    time.Time `json:"created_at"`
}

// VideoFilter narrows catalogue queries. Zero fields match everything.
type VideoFilter struct {
	Kind          string
	CreatedBefore time.Time
	Limit         int
	Offset        int
}

// Alert is a persisted alert event.
type Alert struct {
	ID          int64        `json:"id"`
	EventID     string       `json:"event_id"`
	Stream      string       `json:"stream"`
	Video       string       `json:"video"`
	Frame       int          `json:"frame"`
	Label       string       `json:"label"`
	Count       int          `json:"count"`
	Confidence  float32      `json:"confidence"`
	Boxes       []detect.Box `json:"boxes"`
	FrameWidth  int          `json:"frame_width"`
	FrameHeight int          `json:"frame_height"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Stats summarises the catalogue for the chart page.
type Stats struct {
	TotalVideos    int            `json:"total_videos"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	PerKind        map[string]int `json:"per_kind"`
	TotalAlerts    int            `json:"total_alerts"`
	AlertsPerVideo map[string]int `json:"alerts_per_video"`
}
