// Package hub fans out wire frames to connected clients, keyed by game
// code and by player id. Slow consumers are dropped-from rather than
// blocked-on: a full send buffer loses the frame.
package hub

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capricechess/caprice/internal/obslog"
)

const sendBuffer = 32

// Client is one websocket connection's outbound queue.
type Client struct {
	ID       string
	PlayerID string
	GameCode string

	send chan []byte
	once sync.Once
}

func NewClient(playerID, gameCode string) *Client {
	return &Client{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		GameCode: gameCode,
		send:     make(chan []byte, sendBuffer),
	}
}

// Frames is the channel the transport writer drains.
func (c *Client) Frames() <-chan []byte { return c.send }

// Offer queues a frame for this connection only. Reports false when the
// buffer is full and the frame was dropped.
func (c *Client) Offer(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	mu       sync.RWMutex
	byGame   map[string]map[*Client]bool
	byPlayer map[string]map[*Client]bool
	logger   *zap.Logger
}

func New() *Hub {
	return &Hub{
		byGame:   make(map[string]map[*Client]bool),
		byPlayer: make(map[string]map[*Client]bool),
		logger:   obslog.L().Named("hub"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.GameCode != "" {
		if h.byGame[c.GameCode] == nil {
			h.byGame[c.GameCode] = make(map[*Client]bool)
		}
		h.byGame[c.GameCode][c] = true
	}
	if c.PlayerID != "" {
		if h.byPlayer[c.PlayerID] == nil {
			h.byPlayer[c.PlayerID] = make(map[*Client]bool)
		}
		h.byPlayer[c.PlayerID][c] = true
	}
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.byGame[c.GameCode]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byGame, c.GameCode)
		}
	}
	if set, ok := h.byPlayer[c.PlayerID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byPlayer, c.PlayerID)
		}
	}
	c.close()
}

// ToGame delivers a frame to everyone watching the game.
func (h *Hub) ToGame(code string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byGame[code] {
		h.offer(c, frame)
	}
}

// ToPlayer delivers a frame to all of one player's connections.
func (h *Hub) ToPlayer(playerID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byPlayer[playerID] {
		h.offer(c, frame)
	}
}

func (h *Hub) offer(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.logger.Warn("send buffer full, dropping frame",
			zap.String("client", c.ID),
			zap.String("game", c.GameCode))
	}
}

// GameClients reports how many connections watch a game.
func (h *Hub) GameClients(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byGame[code])
}
