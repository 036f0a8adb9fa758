package domain

import "errors"

var (
	ErrNoImage           = errors.New("no image payload")
	ErrNoFrameAvailable  = errors.New("no camera frame available")
	ErrInvalidFile       = errors.New("invalid image file")
	ErrUnknownMode       = errors.New("unknown image source mode")
	ErrSessionNotFound   = errors.New("session not found")
	ErrMalformedResponse = errors.New("malformed backend response")
)
