package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/capricechess/caprice/internal/hub"
	"github.com/capricechess/caprice/internal/position"
	"github.com/capricechess/caprice/internal/quiz"
	"github.com/capricechess/caprice/internal/session"
	"github.com/capricechess/caprice/pkg/wire"
)

const maxFrameBytes = 4096

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	code := gameCodeFromPath(r.URL.Path)
	if code == "" {
		http.Error(w, "game code required", http.StatusNotFound)
		return
	}
	playerID := strings.TrimSpace(r.URL.Query().Get("player"))
	if playerID == "" {
		// Anonymous visitors spectate under a throwaway id.
		playerID = "guest-" + uuid.NewString()[:8]
	}

	snap, err := s.svc.Snapshot(r.Context(), code)
	if errors.Is(err, session.ErrGameNotFound) {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := hub.NewClient(playerID, code)
	s.hub.Register(client)

	isPlayer := playerID == snap.WhiteID || (snap.BlackID != "" && playerID == snap.BlackID)
	joinColor := ""
	if playerID == snap.WhiteID {
		joinColor = "white"
	} else if playerID == snap.BlackID {
		joinColor = "black"
	}

	defer func() {
		s.hub.Unregister(client)
		if !isPlayer {
			s.hub.ToGame(code, wire.MustMarshal(wire.TypeSpectatorLeft, &wire.PlayerEventPayload{PlayerID: playerID}))
		}
		// A host walking out on an unjoined game tears it down.
		if playerID == snap.WhiteID {
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := s.svc.Abort(cleanupCtx, code, playerID)
			if err != nil && !errors.Is(err, session.ErrGameNotActive) && !errors.Is(err, session.ErrGameNotFound) {
				s.logger.Warn("abort on disconnect failed", zap.String("code", code), zap.Error(err))
			}
			cleanupCancel()
		}
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	go s.writeLoop(ctx, conn, client, cancel)

	client.Offer(wire.MustMarshal(wire.TypeGameUpdate, snap))
	if isPlayer {
		s.hub.ToGame(code, wire.MustMarshal(wire.TypePlayerJoined, &wire.PlayerEventPayload{PlayerID: playerID, Color: joinColor}))
	} else {
		s.hub.ToGame(code, wire.MustMarshal(wire.TypeSpectatorJoined, &wire.PlayerEventPayload{PlayerID: playerID}))
	}

	s.logger.Info("game connection opened",
		zap.String("code", code),
		zap.String("player", playerID),
		zap.Bool("is_player", isPlayer))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		s.dispatchGame(ctx, client, code, playerID, data)
	}
}

// writeLoop drains the hub queue onto the socket. A write failure tears the
// whole connection down.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-client.Frames():
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchGame(ctx context.Context, client *hub.Client, code, playerID string, data []byte) {
	t, payload, err := wire.Decode(data)
	if err != nil {
		client.Offer(wire.MustMarshal(wire.TypeError, &wire.ErrorPayload{Message: err.Error()}))
		return
	}

	switch t {
	case wire.TypeMove:
		p := payload.(*wire.MovePayload)
		if err := s.svc.ApplyMove(ctx, code, playerID, p.From, p.To, p.Promotion); err != nil {
			s.replyMoveError(client, p, err)
		}
	case wire.TypeQuizAnswer:
		p := payload.(*wire.QuizAnswerPayload)
		if err := s.svc.AnswerQuiz(ctx, code, playerID, p.QuizID, p.Answer); err != nil {
			s.replyError(client, err)
		}
	case wire.TypeResign:
		if err := s.svc.Resign(ctx, code, playerID); err != nil {
			s.replyError(client, err)
		}
	case wire.TypeDrawOffer:
		if err := s.svc.OfferDraw(ctx, code, playerID); err != nil {
			s.replyError(client, err)
		}
	case wire.TypeDrawAccept:
		if err := s.svc.AcceptDraw(ctx, code, playerID); err != nil {
			s.replyError(client, err)
		}
	case wire.TypeJoinAsBlack:
		if err := s.svc.ClaimBlackSlot(ctx, code, playerID); err != nil {
			s.replyError(client, err)
		}
	case wire.TypePing:
		client.Offer(wire.MustMarshal(wire.TypePong, nil))
	default:
		client.Offer(wire.MustMarshal(wire.TypeError, &wire.ErrorPayload{
			Message: "message type not supported on the game channel",
		}))
	}
}

func (s *Server) replyMoveError(client *hub.Client, p *wire.MovePayload, err error) {
	reason := ""
	switch {
	case errors.Is(err, position.ErrIllegalMove):
		reason = "illegal_move"
	case errors.Is(err, session.ErrNotYourTurn):
		reason = "not_your_turn"
	case errors.Is(err, session.ErrMoveBlocked):
		reason = "move_blocked"
	case errors.Is(err, session.ErrQuizPending):
		reason = "quiz_pending"
	case errors.Is(err, session.ErrGameNotActive):
		reason = "game_not_active"
	case errors.Is(err, session.ErrNotAPlayer):
		client.Offer(wire.MustMarshal(wire.TypePermissionDenied, &wire.PermissionDeniedPayload{
			Action: "move",
			Reason: "only seated players can move",
		}))
		return
	default:
		s.replyError(client, err)
		return
	}
	client.Offer(wire.MustMarshal(wire.TypeMoveInvalid, &wire.MoveInvalidPayload{
		From:   p.From,
		To:     p.To,
		Reason: reason,
	}))
}

// replyError maps domain errors onto protocol frames; anything unexpected is
// logged and reported generically.
func (s *Server) replyError(client *hub.Client, err error) {
	switch {
	case errors.Is(err, session.ErrNotAPlayer):
		client.Offer(wire.MustMarshal(wire.TypePermissionDenied, &wire.PermissionDeniedPayload{
			Reason: "not a player in this game",
		}))
	case errors.Is(err, session.ErrGameNotFound),
		errors.Is(err, session.ErrGameNotActive),
		errors.Is(err, session.ErrSlotTaken),
		errors.Is(err, session.ErrAlreadySeated),
		errors.Is(err, session.ErrNoDrawOffer),
		errors.Is(err, session.ErrSelfAccept),
		errors.Is(err, quiz.ErrNoPendingQuiz),
		errors.Is(err, quiz.ErrQuizMismatch),
		errors.Is(err, quiz.ErrNotYourQuiz):
		client.Offer(wire.MustMarshal(wire.TypeError, &wire.ErrorPayload{Message: err.Error()}))
	default:
		s.logger.Error("request failed", zap.Error(err))
		client.Offer(wire.MustMarshal(wire.TypeError, &wire.ErrorPayload{Message: "internal error"}))
	}
}
