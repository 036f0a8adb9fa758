package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"vibetunes/internal/camera"
	"vibetunes/internal/domain"
	"vibetunes/internal/session"
	"vibetunes/internal/submission"
)

type sessionResponse struct {
	ID       string             `json:"id"`
	Mode     domain.ImageSource `json:"mode"`
	Source   domain.ImageSource `json:"source"`
	HasImage bool               `json:"has_image"`
	Camera   camera.Stats       `json:"camera"`
	State    submission.State   `json:"state"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func describe(s *session.Session) sessionResponse {
	sel := s.Controller.Selection()
	return sessionResponse{
		ID:       s.ID,
		Mode:     sel.Mode,
		Source:   sel.Source,
		HasImage: sel.HasImage,
		Camera:   s.Camera.Stats(),
		State:    s.Controller.State(),
	}
}

func (a *App) CreateSession(w http.ResponseWriter, r *http.Request) {
	logger := a.log(r)
	s, err := a.Sessions.Create()
	if err != nil {
		logger.Error().Err(err).Msg("create session")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create session")
		return
	}
	logger.Info().Str("session_id", s.ID).Msg("session opened")
	a.json(w, http.StatusCreated, map[string]any{"id": s.ID, "state": s.Controller.State()})
}

func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, describe(s))
}

func (a *App) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := a.Sessions.Delete(s.ID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) SelectMode(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	mode, err := domain.ParseImageSource(req.Mode)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "mode must be capture or upload")
		return
	}
	if _, err := s.Controller.SelectMode(mode); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	a.json(w, http.StatusOK, describe(s))
}

func (a *App) Capture(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if _, err := s.Controller.Capture(); err != nil {
		if errors.Is(err, domain.ErrNoFrameAvailable) {
			a.error(w, http.StatusConflict, "no_frame", "no camera frame available")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "capture failed")
		return
	}
	a.json(w, http.StatusOK, describe(s))
}

// Submit starts an attempt and answers with the state right after it began.
// The outcome arrives on the events stream or through GetSession.
func (a *App) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	st := s.Controller.Start(r.Context())
	logger := a.log(r)
	logger.Debug().Str("session_id", s.ID).Str("status", string(st.Status)).Msg("submit accepted")
	a.json(w, http.StatusAccepted, st)
}

func (a *App) TryAgain(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	s.Controller.TryAgain()
	a.json(w, http.StatusOK, describe(s))
}
