package dto

// SubmitJobRequest is the submission contract. JobID is the caller-supplied
// natural key used for status polling; submitting the same JobID twice is a
// duplicate, not a new job.
type SubmitJobRequest struct {
	JobID          string        `json:"jobId"`
	UserID         string        `json:"userId,omitempty"`
	InputVideoKey  string        `json:"inputVideoKey"`
	OutputVideoKey string        `json:"outputVideoKey"`
	TextSettings   *TextSettings `json:"textSettings,omitempty"`
	Quality        string        `json:"quality,omitempty"`
}

type TextSettings struct {
	Text          string  `json:"text"`
	Position      string  `json:"position,omitempty"`
	Alignment     string  `json:"alignment,omitempty"`
	FontSize      float64 `json:"fontSize,omitempty"`
	FontFamily    string  `json:"fontFamily,omitempty"`
	Color         string  `json:"color,omitempty"`
	OffsetPercent float64 `json:"offsetPercent,omitempty"`
	Bold          bool    `json:"bold,omitempty"`
	Italic        bool    `json:"italic,omitempty"`
	Underline     bool    `json:"underline,omitempty"`
	Shadow        bool    `json:"shadow,omitempty"`
}

type SubmitJobResponse struct {
	ID    string `json:"id"`
	JobID string `json:"jobId"`
}

type JobResult struct {
	OutputVideoKey string  `json:"outputVideoKey"`
	DownloadURL    string  `json:"downloadUrl"`
	Duration       float64 `json:"duration"`
	FileSize       int64   `json:"fileSize"`
}

type StatusResponse struct {
	ID       string     `json:"id,omitempty"`
	JobID    string     `json:"jobId"`
	State    string     `json:"state"`
	Progress int        `json:"progress"`
	Result   *JobResult `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
