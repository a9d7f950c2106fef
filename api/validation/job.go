package validation

import (
	"errors"
	"regexp"

	"videoOverlay/api/dto"
)

var (
	ErrMissingJobID     = errors.New("jobId is required")
	ErrMissingInputKey  = errors.New("inputVideoKey is required")
	ErrMissingOutputKey = errors.New("outputVideoKey is required")
	ErrInvalidQuality   = errors.New("quality must be one of 720p, 1080p, 4k")
	ErrEmptyOverlayText = errors.New("textSettings.text must not be empty")
	ErrTextTooLong      = errors.New("textSettings.text exceeds 500 characters")
	ErrInvalidPosition  = errors.New("textSettings.position must be one of top, center, bottom")
	ErrInvalidAlignment = errors.New("textSettings.alignment must be one of left, center, right")
	ErrInvalidColor     = errors.New("textSettings.color must be a #rrggbb value")
	ErrInvalidFontSize  = errors.New("textSettings.fontSize must be between 10 and 400 percent")
)

const maxOverlayTextLen = 500

var colorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func ValidateSubmission(req *dto.SubmitJobRequest) error {
	if req.JobID == "" {
		return ErrMissingJobID
	}
	if req.InputVideoKey == "" {
		return ErrMissingInputKey
	}
	if req.OutputVideoKey == "" {
		return ErrMissingOutputKey
	}

	switch req.Quality {
	case "", "720p", "1080p", "4k":
	default:
		return ErrInvalidQuality
	}

	if req.TextSettings != nil {
		return validateTextSettings(req.TextSettings)
	}
	return nil
}

func validateTextSettings(ts *dto.TextSettings) error {
	if ts.Text == "" {
		return ErrEmptyOverlayText
	}
	if len(ts.Text) > maxOverlayTextLen {
		return ErrTextTooLong
	}

	switch ts.Position {
	case "", "top", "center", "bottom":
	default:
		return ErrInvalidPosition
	}

	switch ts.Alignment {
	case "", "left", "center", "right":
	default:
		return ErrInvalidAlignment
	}

	if ts.Color != "" && !colorRe.MatchString(ts.Color) {
		return ErrInvalidColor
	}

	if ts.FontSize != 0 && (ts.FontSize < 10 || ts.FontSize > 400) {
		return ErrInvalidFontSize
	}
	return nil
}
