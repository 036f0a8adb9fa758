package submission

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"vibetunes/internal/domain"
)

const (
	captureFilename = "captured_image.jpg"
	captureMIME     = "image/jpeg"
)

// FrameSource yields the current still frame of a live camera feed.
type FrameSource interface {
	Snapshot() ([]byte, error)
}

// Selector holds the chosen acquisition mode and the single current image payload.
// It is not safe for concurrent use; the Controller serializes access.
type Selector struct {
	camera  FrameSource
	mode    domain.ImageSource
	payload *domain.ImagePayload
}

// NewSelector returns a selector in capture mode with no payload.
// camera may be nil, in which case every capture fails with ErrNoFrameAvailable.
func NewSelector(camera FrameSource) *Selector {
	return &Selector{camera: camera, mode: domain.ImageSourceCapture}
}

// Mode is the currently selected acquisition mode.
func (s *Selector) Mode() domain.ImageSource {
	return s.mode
}

// Source reports where the current payload came from, or ImageSourceNone.
func (s *Selector) Source() domain.ImageSource {
	if s.payload.Empty() {
		return domain.ImageSourceNone
	}
	return s.payload.Source
}

// Payload returns the current image. The returned value shares its bytes with the selector.
func (s *Selector) Payload() (domain.ImagePayload, bool) {
	if s.payload.Empty() {
		return domain.ImagePayload{}, false
	}
	return *s.payload, true
}

// SelectMode switches acquisition mode and drops the current payload.
func (s *Selector) SelectMode(mode domain.ImageSource) error {
	if mode != domain.ImageSourceCapture && mode != domain.ImageSourceUpload {
		return domain.ErrUnknownMode
	}
	s.mode = mode
	s.payload = nil
	return nil
}

// Capture takes the current camera frame as the payload.
// On failure the previous payload is left untouched.
func (s *Selector) Capture() error {
	if s.camera == nil {
		return domain.ErrNoFrameAvailable
	}
	data, err := s.camera.Snapshot()
	if err != nil {
		if errors.Is(err, domain.ErrNoFrameAvailable) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrNoFrameAvailable, err)
	}
	if len(data) == 0 {
		return domain.ErrNoFrameAvailable
	}
	s.mode = domain.ImageSourceCapture
	s.payload = &domain.ImagePayload{
		Source:   domain.ImageSourceCapture,
		Filename: captureFilename,
		MIME:     captureMIME,
		Data:     data,
	}
	return nil
}

// Upload stores an uploaded file verbatim as the payload. The declared content type
// is trusted when it is an image type, otherwise the bytes are sniffed.
func (s *Selector) Upload(filename, contentType string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", domain.ErrInvalidFile)
	}
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = detected.String()
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return fmt.Errorf("%w: content type %s", domain.ErrInvalidFile, mimeType)
	}
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload" + detected.Extension()
	}
	s.mode = domain.ImageSourceUpload
	s.payload = &domain.ImagePayload{
		Source:   domain.ImageSourceUpload,
		Filename: name,
		MIME:     mimeType,
		Data:     data,
	}
	return nil
}

// Reset discards the payload and returns to the default capture mode.
func (s *Selector) Reset() {
	s.mode = domain.ImageSourceCapture
	s.payload = nil
}
