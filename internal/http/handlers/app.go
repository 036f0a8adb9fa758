package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vibetunes/internal/domain"
	"vibetunes/internal/infra"
	"vibetunes/internal/middleware"
	"vibetunes/internal/session"
)

// StateStream serves a session's state events over an upgraded connection.
type StateStream interface {
	Serve(ctx context.Context, conn *websocket.Conn, topic string, initial []byte)
}

type App struct {
	Sessions       *session.Registry
	Stream         StateStream
	Logger         *infra.Logger
	MaxUploadBytes int64
	Upgrader       websocket.Upgrader
	KeepAlive      time.Duration // how often an open event stream refreshes its session
}

// NewApp wires the handlers. allowedOrigins gates WebSocket upgrades the same
// way the CORS middleware gates plain requests.
func NewApp(sessions *session.Registry, stream StateStream, logger *infra.Logger, maxUploadBytes int64, allowedOrigins []string) *App {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &App{
		Sessions:       sessions,
		Stream:         stream,
		Logger:         logger,
		MaxUploadBytes: maxUploadBytes,
		KeepAlive:      30 * time.Second,
		Upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errCode, Message: message})
}

// log returns the app logger tagged with the request id.
func (a *App) log(r *http.Request) zerolog.Logger {
	return middleware.RequestLogger(r.Context(), *a.Logger)
}

// session resolves the {id} path parameter, answering 404 itself when unknown.
func (a *App) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := a.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "session not found")
			return nil, false
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load session")
		return nil, false
	}
	return s, true
}
