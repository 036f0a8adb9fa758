package submission

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"vibetunes/internal/domain"
)

// Category is the user-facing class of a failed submission.
type Category string

const (
	CategoryValidation      Category = "validation_error"
	CategoryFaceNotDetected Category = "face_not_detected"
	CategoryBackend         Category = "backend_error"
	CategoryNetwork         Category = "network_error"
)

// FaceNotDetectedMarker is the backend text that signals no face was found.
const FaceNotDetectedMarker = "Face could not be detected"

const (
	MessageNoImage         = "Please capture or upload an image first."
	MessageFaceNotDetected = "No face detected. Please upload or capture a clear photo of your face."
	MessageGeneric         = "Something went wrong. Please try again."
)

// backendMessager is implemented by errors that carry a server-supplied message.
type backendMessager interface {
	BackendMessage() string
}

// Classify maps a submission failure onto a category and the message shown to the user.
// It only looks at whether the backend supplied an error string and what it says.
func Classify(err error) (Category, string) {
	if errors.Is(err, domain.ErrNoImage) {
		return CategoryValidation, MessageNoImage
	}
	var bm backendMessager
	if errors.As(err, &bm) {
		msg := bm.BackendMessage()
		if strings.TrimSpace(msg) == "" {
			return CategoryNetwork, MessageGeneric
		}
		if strings.Contains(msg, FaceNotDetectedMarker) {
			return CategoryFaceNotDetected, MessageFaceNotDetected
		}
		return CategoryBackend, msg
	}
	if err == nil || errors.Is(err, domain.ErrMalformedResponse) {
		return CategoryNetwork, MessageGeneric
	}
	if text := strings.TrimSpace(transportText(err)); text != "" {
		return CategoryNetwork, text
	}
	return CategoryNetwork, MessageGeneric
}

// transportText is the innermost transport failure, without request URLs or
// package prefixes added while the error was wrapped.
func transportText(err error) string {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}
