package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/capricechess/caprice/internal/domain"
	"github.com/capricechess/caprice/internal/hub"
	"github.com/capricechess/caprice/internal/matchmaking"
	"github.com/capricechess/caprice/internal/rating"
	"github.com/capricechess/caprice/internal/repo"
	"github.com/capricechess/caprice/pkg/wire"
)

func (s *Server) handleMatchmaking(w http.ResponseWriter, r *http.Request) {
	playerID := strings.TrimSpace(r.URL.Query().Get("player"))
	if playerID == "" {
		http.Error(w, "player id required", http.StatusBadRequest)
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

	client := hub.NewClient(playerID, "")
	s.hub.Register(client)

	// searchID names the search this connection started, if any. Only the
	// read loop touches it.
	var searchID string
	defer func() {
		s.hub.Unregister(client)
		// A dropped connection abandons its own search.
		if searchID != "" {
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := s.matcher.Cancel(cleanupCtx, playerID, searchID); err != nil {
				s.logger.Warn("search cleanup failed", zap.String("player", playerID), zap.Error(err))
			}
			cleanupCancel()
		}
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	go s.writeLoop(ctx, conn, client, cancel)

	s.logger.Info("matchmaking connection opened", zap.String("player", playerID))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		s.dispatchMatchmaking(ctx, client, playerID, &searchID, data)
	}
}

func (s *Server) dispatchMatchmaking(ctx context.Context, client *hub.Client, playerID string, searchID *string, data []byte) {
	t, payload, err := wire.Decode(data)
	if err != nil {
		client.Offer(wire.MustMarshal(wire.TypeError, &wire.ErrorPayload{Message: err.Error()}))
		return
	}

	switch t {
	case wire.TypeFindGame:
		p := payload.(*wire.FindGamePayload)
		state, err := repo.RatingOrDefault(ctx, s.repo, playerID, rating.DefaultElo)
		if err != nil {
			s.replyError(client, err)
			return
		}
		entry := domain.SearchEntry{
			PlayerID:   playerID,
			Elo:        state.Elo,
			WinRatio:   state.WinRatio(),
			Subject:    p.Subject,
			EnqueuedAt: time.Now(),
		}
		id, err := s.matcher.Enqueue(ctx, entry)
		if err != nil {
			if errors.Is(err, matchmaking.ErrAlreadySearching) {
				client.Offer(wire.MustMarshal(wire.TypeError, &wire.ErrorPayload{Message: err.Error()}))
				return
			}
			s.replyError(client, err)
			return
		}
		*searchID = id
		client.Offer(wire.MustMarshal(wire.TypeSearchStarted, &wire.SearchStartedPayload{
			SearchID: id,
			Elo:      entry.Elo,
			WinRatio: entry.WinRatio,
		}))
	case wire.TypeCancelSearch:
		if _, err := s.matcher.Cancel(ctx, playerID, *searchID); err != nil {
			s.replyError(client, err)
			return
		}
		*searchID = ""
		client.Offer(wire.MustMarshal(wire.TypeSearchCancelled, nil))
	case wire.TypePing:
		client.Offer(wire.MustMarshal(wire.TypePong, nil))
	default:
		client.Offer(wire.MustMarshal(wire.TypeError, &wire.ErrorPayload{
			Message: "message type not supported on the matchmaking channel",
		}))
	}
}
