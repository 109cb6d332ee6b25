package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/capricechess/caprice/internal/domain"
	"github.com/capricechess/caprice/internal/session"
	"github.com/capricechess/caprice/pkg/wire"
)

// defaultSubject seeds quiz pools when the caller names none.
const defaultSubject = "Math"

type createGameRequest struct {
	Code       string   `json:"code,omitempty"`
	Subjects   []string `json:"subjects,omitempty"`
	EngineTier string   `json:"engine_tier,omitempty"`
}

type gameResponse struct {
	Spectator bool `json:"spectator"`
	*wire.GameUpdatePayload
}

// handleCreateJoin opens a new game, or seats the caller as black when a
// code is supplied. A caller who cannot take the slot still gets the
// snapshot back, flagged as a spectator.
func (s *Server) handleCreateJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID := strings.TrimSpace(r.URL.Query().Get("player"))
	if playerID == "" {
		http.Error(w, "player id required", http.StatusBadRequest)
		return
	}
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	if req.Code != "" {
		spectator := false
		err := s.svc.ClaimBlackSlot(ctx, req.Code, playerID)
		switch {
		case errors.Is(err, session.ErrGameNotFound):
			http.Error(w, "game not found", http.StatusNotFound)
			return
		case errors.Is(err, session.ErrSlotTaken):
			spectator = true
		case errors.Is(err, session.ErrAlreadySeated):
			// The host rejoining their own game keeps their seat.
		case err != nil:
			s.logger.Error("join failed", zap.String("code", req.Code), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.writeSnapshot(ctx, w, req.Code, spectator)
		return
	}

	tier := domain.EngineTier(req.EngineTier)
	switch tier {
	case domain.TierNone, domain.TierEasy, domain.TierNormal, domain.TierHard:
	default:
		http.Error(w, "unknown engine tier", http.StatusBadRequest)
		return
	}
	subjects := req.Subjects
	if len(subjects) == 0 {
		subjects = []string{defaultSubject}
	}
	g, err := s.svc.CreateGame(ctx, playerID, subjects, tier)
	if err != nil {
		s.logger.Error("game create failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeSnapshot(ctx, w, g.Code, false)
}

func (s *Server) writeSnapshot(ctx context.Context, w http.ResponseWriter, code string, spectator bool) {
	snap, err := s.svc.Snapshot(ctx, code)
	if err != nil {
		s.logger.Error("snapshot failed", zap.String("code", code), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(gameResponse{Spectator: spectator, GameUpdatePayload: snap})
}

type analysisResponse struct {
	Status  string             `json:"status"`
	PerMove []domain.MoveScore `json:"per_move,omitempty"`
}

// handleAnalysis serves the stored engine evaluation for an archived game.
// Games still being analyzed answer 202 with the current status.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/game/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "analysis" {
		http.NotFound(w, r)
		return
	}
	code := parts[0]
	ctx := r.Context()

	g, err := s.repo.GetGame(ctx, code)
	if err != nil {
		s.logger.Error("archive lookup failed", zap.String("code", code), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if g == nil {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if g.AnalysisStatus != domain.AnalysisCompleted {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(analysisResponse{Status: string(g.AnalysisStatus)})
		return
	}
	scores, err := s.repo.GetAnalysis(ctx, code)
	if err != nil {
		s.logger.Error("analysis lookup failed", zap.String("code", code), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(analysisResponse{
		Status:  string(g.AnalysisStatus),
		PerMove: scores,
	})
}
