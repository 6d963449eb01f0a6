package nn

import (
	"context"
	"errors"
	"fmt"

	"github.com/bmharper/cimg/v2"
)

// Package nn defines the object detection types that are shared between the
// inference client and the analysis pipeline.

const DefaultMinConfidence = 0.3

// Detection is one object instance that the detection model found in one frame.
// Immutable once created.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"` // 0..1
	Box        Rect    `json:"box"`
}

// Detection parameters
type DetectionParams struct {
	MinConfidence float32  // Raw model outputs below this never become a Detection. Zero value will use the default.
	Classes       []string // If non-empty, only these classes are kept
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		MinConfidence: DefaultMinConfidence,
	}
}

// HasClass returns true if the params allow 'class' through.
// An empty allowlist admits every class.
func (p *DetectionParams) HasClass(class string) bool {
	if len(p.Classes) == 0 {
		return true
	}
	for _, c := range p.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// ObjectDetector is given an image, and returns zero or more detected objects.
// The image is a 24-bit RGB image.
// Implementations must honor ctx cancellation and deadlines.
type ObjectDetector interface {
	// Close closes the detector (you MUST call this when finished)
	Close()

	// DetectObjects returns a list of objects detected in the image.
	// You can create a default DetectionParams with NewDetectionParams().
	DetectObjects(ctx context.Context, img *cimg.Image, params *DetectionParams) ([]Detection, error)
}

// ModelError is a failure of a single detection model invocation (the call
// raised, timed out, or returned something we couldn't make sense of).
// The pipeline treats these as recoverable: that frame contributes zero
// detections and the request carries on.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("detection model: %v", e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

func ModelErrorf(format string, args ...any) *ModelError {
	return &ModelError{Err: fmt.Errorf(format, args...)}
}

// IsModelError returns true if err is (or wraps) a ModelError.
func IsModelError(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}
