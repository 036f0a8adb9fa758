package domain

import "strings"

// ImageSource enumerates how the current image was (or will be) acquired.
type ImageSource string

const (
	ImageSourceNone    ImageSource = "none"
	ImageSourceCapture ImageSource = "capture"
	ImageSourceUpload  ImageSource = "upload"
)

// ParseImageSource maps free-form mode input onto a selectable source.
// Only capture and upload can be selected; anything else is ErrUnknownMode.
func ParseImageSource(mode string) (ImageSource, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ImageSourceCapture):
		return ImageSourceCapture, nil
	case string(ImageSourceUpload):
		return ImageSourceUpload, nil
	default:
		return ImageSourceNone, ErrUnknownMode
	}
}

// ImagePayload is the binary image handed to the backend for one submission.
// Data is never modified after construction; submissions borrow it.
type ImagePayload struct {
	Source   ImageSource
	Filename string
	MIME     string
	Data     []byte
}

// Empty reports whether the payload carries no image bytes.
func (p *ImagePayload) Empty() bool {
	return p == nil || len(p.Data) == 0
}
