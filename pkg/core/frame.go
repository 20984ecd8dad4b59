package core

import (
	"bytes"
	"image"
	"image/png"
	"time"
)

// Frame is one captured screenshot plus its metadata. The Device Controller
// produces it; ownership transfers to the Artifact Store on save; it is
// immutable once written.
type Frame struct {
	PNG       []byte      // Encoded image as pulled from the device
	Image     image.Image // Decoded pixels
	Timestamp time.Time   // Capture time
	State     UIState     // Classification, filled in after Classify
	Flow      string      // Owning flow name, filled in by the engine
}

// NewFrame decodes PNG data into a Frame. A decode failure means the
// capture was truncated mid-transfer; callers treat it as a CaptureError
// so a partially-written image never reaches the classifier.
func NewFrame(data []byte, ts time.Time) (*Frame, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrCapture.WithMessage("invalid PNG from screencap").WithCause(err)
	}
	return &Frame{PNG: data, Image: img, Timestamp: ts}, nil
}

// Bounds returns the decoded image bounds.
func (f *Frame) Bounds() image.Rectangle {
	return f.Image.Bounds()
}
