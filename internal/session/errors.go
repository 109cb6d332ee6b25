package session

import "errors"

var (
	ErrGameNotFound  = errors.New("game not found")
	ErrGameNotActive = errors.New("game is not active")
	ErrNotAPlayer    = errors.New("not a player in this game")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrQuizPending   = errors.New("answer the pending quiz first")
	ErrMoveBlocked   = errors.New("move pair is blocked")
	ErrSlotTaken     = errors.New("black slot already taken")
	ErrAlreadySeated = errors.New("already seated in this game")
	ErrNoDrawOffer   = errors.New("no draw offer to accept")
	ErrSelfAccept    = errors.New("cannot accept your own draw offer")
)
