package store

import (
	"time"
)

type JobState string

const (
	StateWaiting   JobState = "waiting"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

type Quality string

const (
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
	Quality4K    Quality = "4k"
)

const DefaultMaxAttempts = 3

// TextSettings describes the requested text overlay. A nil *TextSettings on a
// job spec means no overlay: the pipeline takes the pure stream-copy path.
type TextSettings struct {
	Text          string  `json:"text"`
	Position      string  `json:"position"`  // top, center, bottom
	Alignment     string  `json:"alignment"` // left, center, right
	FontSize      float64 `json:"font_size"` // percent of the base size, 100 = default
	FontFamily    string  `json:"font_family"`
	Color         string  `json:"color"` // #rrggbb
	OffsetPercent float64 `json:"offset_percent"`
	Bold          bool    `json:"bold"`
	Italic        bool    `json:"italic"`
	Underline     bool    `json:"underline"`
	Shadow        bool    `json:"shadow"`
}

// JobSpec is the immutable part of a job, fixed at enqueue time.
type JobSpec struct {
	InputKey   string        `json:"input_key"`
	OutputKey  string        `json:"output_key"`
	OverlayKey string        `json:"overlay_key,omitempty"`
	Text       *TextSettings `json:"text,omitempty"`
	Quality    Quality       `json:"quality"`
}

// JobResult is set exactly once, when a job completes.
type JobResult struct {
	OutputKey   string  `json:"output_key"`
	DownloadURL string  `json:"download_url"`
	Duration    float64 `json:"duration"`
	FileSize    int64   `json:"file_size"`
}

type Job struct {
	ID           string
	JobID        string
	UserID       string
	State        JobState
	Progress     int
	Spec         JobSpec
	Result       *JobResult
	ErrorMessage string
	Attempts     int
	MaxAttempts  int
	Priority     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// PriorityForQuality maps the requested quality tier to a claim priority.
// Lower is served first; premium tiers jump the queue.
func PriorityForQuality(q Quality) int {
	switch q {
	case Quality4K:
		return 0
	case Quality1080p:
		return 1
	default:
		return 2
	}
}
