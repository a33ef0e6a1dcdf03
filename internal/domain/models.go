package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidImage      = errors.New("invalid image file")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrOCRFailed         = errors.New("ocr processing failed")
	ErrNoText            = errors.New("no text could be extracted from the image")
	ErrInferenceFailed   = errors.New("model inference failed")
	ErrParseFailed       = errors.New("could not parse model output")
)

// Analysis is the structured prescription record returned to clients.
// Fields are empty when nothing could be extracted for them.
type Analysis struct {
	Medication string `json:"medication"`
	Dosage     string `json:"dosage"`
	Frequency  string `json:"frequency"`
	Duration   string `json:"duration"`
}

func (a Analysis) IsEmpty() bool {
	return a.Medication == "" && a.Dosage == "" && a.Frequency == "" && a.Duration == ""
}

// Normalize trims surrounding whitespace from every field.
func (a Analysis) Normalize() Analysis {
	return Analysis{
		Medication: strings.TrimSpace(a.Medication),
		Dosage:     strings.TrimSpace(a.Dosage),
		Frequency:  strings.TrimSpace(a.Frequency),
		Duration:   strings.TrimSpace(a.Duration),
	}
}

// Crop is a rectangle in pixel coordinates, origin at the top-left corner.
type Crop struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Upload is a single image received from a client. It lives for the duration
// of one request.
type Upload struct {
	Data        []byte
	Filename    string
	ContentType string
	Crop        *Crop
}

const (
	SourceModel = "model"
	SourceRules = "rules"
)

type UploadResult struct {
	ExtractedText string    `json:"extracted_text"`
	Analysis      *Analysis `json:"analysis"`
	Source        string    `json:"analysis_source,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// EmptyResult is returned when OCR finds no text above the confidence threshold.
func EmptyResult() *UploadResult {
	return &UploadResult{
		ExtractedText: "",
		Analysis:      &Analysis{},
		Error:         ErrNoText.Error(),
	}
}

type BatchItem struct {
	Filename      string    `json:"filename"`
	ExtractedText string    `json:"extracted_text"`
	Analysis      *Analysis `json:"analysis,omitempty"`
	Source        string    `json:"analysis_source,omitempty"`
	Error         string    `json:"error,omitempty"`
}
