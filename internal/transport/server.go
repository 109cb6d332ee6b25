// Package transport exposes the websocket endpoints: one per game room and
// one for the matchmaking queue.
package transport

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/capricechess/caprice/internal/hub"
	"github.com/capricechess/caprice/internal/matchmaking"
	"github.com/capricechess/caprice/internal/obslog"
	"github.com/capricechess/caprice/internal/repo"
	"github.com/capricechess/caprice/internal/session"
)

type Server struct {
	svc     *session.Service
	hub     *hub.Hub
	matcher *matchmaking.Matcher
	repo    repo.Repository
	logger  *zap.Logger
}

func New(svc *session.Service, h *hub.Hub, matcher *matchmaking.Matcher, rp repo.Repository) *Server {
	return &Server{
		svc:     svc,
		hub:     h,
		matcher: matcher,
		repo:    rp,
		logger:  obslog.L().Named("transport"),
	}
}

// Routes builds the HTTP mux. Game rooms live under /ws/game/{code}.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/game/", s.handleGame)
	mux.HandleFunc("/ws/matchmaking", s.handleMatchmaking)
	mux.HandleFunc("/api/game", s.handleCreateJoin)
	mux.HandleFunc("/api/game/", s.handleAnalysis)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func gameCodeFromPath(path string) string {
	code := strings.TrimPrefix(path, "/ws/game/")
	return strings.Trim(code, "/")
}
