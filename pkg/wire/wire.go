// Package wire defines the websocket message protocol. Every frame is an
// Envelope carrying a type tag and a typed payload; Decode maps inbound
// frames onto the closed set of client message types.
package wire

import (
	"encoding/json"
	"fmt"
)

type Type string

// Client -> server.
const (
	TypeMove         Type = "move"
	TypeQuizAnswer   Type = "quiz_answer"
	TypeResign       Type = "resign"
	TypeDrawOffer    Type = "draw_offer"
	TypeDrawAccept   Type = "draw_accept"
	TypeJoinAsBlack  Type = "join_as_black"
	TypePing         Type = "ping"
	TypeFindGame     Type = "find_game"
	TypeCancelSearch Type = "cancel_search"
)

// Server -> client.
const (
	TypeGameUpdate        Type = "game_update"
	TypeMoveMade          Type = "move"
	TypeMoveInvalid       Type = "move_invalid"
	TypeQuizRequired      Type = "quiz_required"
	TypeQuizFailed        Type = "quiz_failed"
	TypeGameOver          Type = "game_over"
	TypePermissionDenied  Type = "permission_denied"
	TypePlayerJoined      Type = "player_joined"
	TypeSpectatorJoined   Type = "spectator_joined"
	TypeSpectatorLeft     Type = "spectator_left"
	TypeBlackPlayerJoined Type = "black_player_joined"
	TypePong              Type = "pong"
	TypeError             Type = "error"
	TypeSearchStarted     Type = "search_started"
	TypeSearchCancelled   Type = "search_cancelled"
	TypeGameFound         Type = "game_found"
)

type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UnknownTypeError reports a frame whose type tag is outside the protocol.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", string(e.Type))
}

// Decode parses an inbound frame into its typed payload. The returned value
// is a pointer to the payload struct for the tag, or nil for payload-less
// types (resign, draw_offer, draw_accept, join_as_black, ping,
// cancel_search).
func Decode(data []byte) (Type, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("decode frame: %w", err)
	}
	switch env.Type {
	case TypeMove:
		p := new(MovePayload)
		if err := unmarshalPayload(env.Payload, p); err != nil {
			return env.Type, nil, err
		}
		return env.Type, p, nil
	case TypeQuizAnswer:
		p := new(QuizAnswerPayload)
		if err := unmarshalPayload(env.Payload, p); err != nil {
			return env.Type, nil, err
		}
		return env.Type, p, nil
	case TypeFindGame:
		p := new(FindGamePayload)
		if err := unmarshalPayload(env.Payload, p); err != nil {
			return env.Type, nil, err
		}
		return env.Type, p, nil
	case TypeResign, TypeDrawOffer, TypeDrawAccept, TypeJoinAsBlack, TypePing, TypeCancelSearch:
		return env.Type, nil, nil
	default:
		return env.Type, nil, &UnknownTypeError{Type: env.Type}
	}
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Marshal builds an outbound frame.
func Marshal(t Type, payload any) ([]byte, error) {
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// MustMarshal is Marshal for payloads that cannot fail to encode.
func MustMarshal(t Type, payload any) []byte {
	data, err := Marshal(t, payload)
	if err != nil {
		panic(err)
	}
	return data
}
