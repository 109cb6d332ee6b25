package wire

// Inbound payloads.

type MovePayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type QuizAnswerPayload struct {
	QuizID string `json:"quiz_id"`
	Answer int    `json:"answer"`
}

type FindGamePayload struct {
	Subject string `json:"subject,omitempty"`
}

// Outbound payloads.

type GameUpdatePayload struct {
	Code           string   `json:"code"`
	FEN            string   `json:"fen"`
	Status         string   `json:"status"`
	WhiteID        string   `json:"white_id"`
	BlackID        string   `json:"black_id,omitempty"`
	Turn           string   `json:"turn"`
	MoveCount      int      `json:"move_count"`
	EngineTier     string   `json:"engine_tier,omitempty"`
	QuizSubjects   []string `json:"quiz_subjects,omitempty"`
	DrawOfferBy    string   `json:"draw_offer_by,omitempty"`
	AnalysisStatus string   `json:"analysis_status,omitempty"`
}

type MoveMadePayload struct {
	FromSquare    string `json:"from_square"`
	ToSquare      string `json:"to_square"`
	Piece         string `json:"piece"`
	MoveNumber    int    `json:"move_number"`
	FENAfter      string `json:"fen_after"`
	CapturedPiece string `json:"captured_piece,omitempty"`
	UUID          string `json:"uuid"`
	Score         int    `json:"score"`
}

type MoveInvalidPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type QuizRequiredPayload struct {
	QuizID     string   `json:"quiz_id"`
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	MoveNumber int      `json:"move_number"`
	Subject    string   `json:"subject,omitempty"`
	DeadlineMS int64    `json:"deadline_ms"`
}

type QuizFailedPayload struct {
	QuizID     string `json:"quiz_id"`
	PlayerID   string `json:"player_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	FEN        string `json:"fen"`
	Reason     string `json:"reason"`
	BlockedSec int    `json:"blocked_sec"`
}

type GameOverPayload struct {
	Result    string         `json:"result"`
	Winner    string         `json:"winner,omitempty"`
	EloDeltas map[string]int `json:"elo_deltas,omitempty"`
}

type PermissionDeniedPayload struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

type PlayerEventPayload struct {
	PlayerID string `json:"player_id"`
	Color    string `json:"color,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type SearchStartedPayload struct {
	SearchID string  `json:"search_id"`
	Elo      int     `json:"elo"`
	WinRatio float64 `json:"win_ratio"`
}

type GameFoundPayload struct {
	Code       string `json:"code"`
	Color      string `json:"color"`
	OpponentID string `json:"opponent_id"`
}
