package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"

	"vibetunes/internal/domain"
	"vibetunes/internal/session"
)

const (
	defaultPreviewSize = 320
	maxPreviewSize     = 1024
	cameraIdle         = 60 * time.Second
	uploadOverhead     = 1 << 20 // multipart framing around the file
)

// Upload accepts the multipart field "image".
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes+uploadOverhead)
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds the upload limit")
			return
		}
		a.error(w, http.StatusBadRequest, "invalid_file", "expected multipart form with an image field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_file", "missing image field")
		return
	}
	defer file.Close()
	if header.Size > a.MaxUploadBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds the upload limit")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_file", "could not read image")
		return
	}
	if _, err := s.Controller.Upload(header.Filename, header.Header.Get("Content-Type"), data); err != nil {
		if errors.Is(err, domain.ErrInvalidFile) {
			a.error(w, http.StatusBadRequest, "invalid_file", "file is not an image")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "upload failed")
		return
	}
	a.json(w, http.StatusOK, describe(s))
}

// Preview renders the selected image as a JPEG thumbnail bounded by ?size= pixels.
func (a *App) Preview(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	payload, ok := s.Controller.Payload()
	if !ok {
		a.error(w, http.StatusNotFound, "no_image", "no image selected")
		return
	}
	size := defaultPreviewSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "size must be a positive integer")
			return
		}
		size = min(n, maxPreviewSize)
	}

	img, err := imaging.Decode(bytes.NewReader(payload.Data), imaging.AutoOrientation(true))
	if err != nil {
		a.error(w, http.StatusUnprocessableEntity, "invalid_image", "image cannot be decoded")
		return
	}
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to encode preview")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Events streams every state the session publishes, starting with the current one.
func (a *App) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	conn, err := a.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := a.log(r)
		logger.Warn().Err(err).Str("session_id", s.ID).Msg("events: websocket upgrade")
		return
	}
	initial, err := json.Marshal(session.Event{SessionID: s.ID, State: s.Controller.State()})
	if err != nil {
		conn.Close()
		return
	}
	stop := make(chan struct{})
	go a.keepAlive(s, stop)
	a.Stream.Serve(r.Context(), conn, s.ID, initial)
	close(stop)
}

// keepAlive marks s as used while a viewer watches it, so the idle sweep
// leaves a watched session alone.
func (a *App) keepAlive(s *session.Session, stop <-chan struct{}) {
	every := a.KeepAlive
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.Touch(now)
		}
	}
}

// Camera receives binary JPEG frames from the browser into the session's feed.
func (a *App) Camera(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	conn, err := a.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := a.log(r)
		logger.Warn().Err(err).Str("session_id", s.ID).Msg("camera: websocket upgrade")
		return
	}
	defer conn.Close()

	base := a.log(r)
	logger := base.With().Str("session_id", s.ID).Logger()
	logger.Debug().Msg("camera: connected")
	conn.SetReadLimit(a.MaxUploadBytes)
	s.Camera.Start()
	for {
		conn.SetReadDeadline(time.Now().Add(cameraIdle))
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("camera: read")
			}
			break
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		s.Camera.Publish(msg)
		s.Touch(time.Now())
	}
	stats := s.Camera.Stats()
	logger.Debug().Uint64("published", stats.Published).Uint64("overwritten", stats.Overwritten).Msg("camera: disconnected")
}
