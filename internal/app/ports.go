package app

import (
	"context"
	"time"

	"trivia-session-service/internal/domain"
)

// QuestionSource supplies the ordered question list for a quiz
// (redis-cached postgres loader in production, memory in tests).
type QuestionSource interface {
	Questions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// Store is the durable history collaborator. Writes are best-effort from the
// session's point of view: failures are logged, never fatal to the game.
type Store interface {
	CreateSession(ctx context.Context, header domain.SessionHeader) error
	SessionByID(ctx context.Context, id string) (domain.SessionHeader, error)
	SessionByCode(ctx context.Context, code string) (domain.SessionHeader, error)
	UpdatePhase(ctx context.Context, sessionID string, phase domain.Phase, questionIndex int, at time.Time) error
	SaveParticipant(ctx context.Context, sessionID string, p domain.Participant) error
	RecordAnswer(ctx context.Context, sessionID string, rec domain.AnswerRecord) error
	AddScore(ctx context.Context, sessionID, participantID string, delta int) error
}

// Broadcaster fans events out to connected clients. Implemented by the
// websocket hub; a nil-safe no-op implementation backs tests.
type Broadcaster interface {
	ToSession(sessionID, event string, payload any)
	ToOperator(sessionID, event string, payload any)
	ToParticipant(participantID, event string, payload any)
}

// CodeReserver optionally marks join codes live in a shared store so two
// processes do not hand out the same PIN. May be nil.
type CodeReserver interface {
	Reserve(ctx context.Context, code, sessionID string) (bool, error)
	Release(ctx context.Context, code string) error
}

// Event names on the server-to-client surface.
const (
	EvtSessionSnapshot   = "session-snapshot"
	EvtSessionCreated    = "session-created"
	EvtJoined            = "joined"
	EvtGameStarted       = "game-started"
	EvtQuestion          = "question"
	EvtAnswerProgress    = "answer-progress"
	EvtAnswerOutcome     = "answer-outcome"
	EvtEliminateResult   = "eliminate-result"
	EvtJokerState        = "joker-state"
	EvtQuestionResults   = "question-results"
	EvtGameEnded         = "game-ended"
	EvtParticipantJoined = "participant-joined"
	EvtParticipantLeft   = "participant-left"
)

// Event pairs a wire event name with its payload.
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// QuestionPayload is broadcast to the whole session when a question opens.
type QuestionPayload struct {
	Index      int                 `json:"questionIndex"`
	Total      int                 `json:"totalQuestions"`
	QuestionID string              `json:"questionId"`
	Prompt     string              `json:"prompt"`
	Kind       domain.QuestionKind `json:"kind"`
	Options    []string            `json:"options"`
	TimeSec    int                 `json:"timeSec"`
	ImageURL   string              `json:"imageUrl,omitempty"`
}

// ResultsPayload is broadcast when a question closes.
type ResultsPayload struct {
	QuestionID     string                    `json:"questionId"`
	Prompt         string                    `json:"prompt"`
	Kind           domain.QuestionKind       `json:"kind"`
	Options        []string                  `json:"options"`
	CorrectIndex   int                       `json:"correctIndex"`
	CorrectText    string                    `json:"correctText,omitempty"`
	Leaderboard    []domain.LeaderboardEntry `json:"leaderboard"`
	IsLastQuestion bool                      `json:"isLastQuestion"`
	AutoAdvanceSec int                       `json:"autoAdvanceSec"`
}

// AnswerOutcome is delivered privately to the answering participant.
type AnswerOutcome struct {
	Correct    bool `json:"correct"`
	Points     int  `json:"points"`
	Streak     int  `json:"streak"`
	TotalScore int  `json:"totalScore"`
	WasSkip    bool `json:"wasSkip,omitempty"`
}

// AnswerProgress keeps the operator view current while a question is open.
type AnswerProgress struct {
	AnsweredCount     int `json:"answeredCount"`
	TotalParticipants int `json:"totalParticipants"`
}

// GameStarted announces the effective power-up gating to everyone.
type GameStarted struct {
	Jokers domain.JokerSettings `json:"jokersEnabled"`
}

// GameEnded carries the final leaderboard.
type GameEnded struct {
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

// JokerState is replayed privately to a reconnecting participant.
type JokerState struct {
	Enabled domain.JokerSettings `json:"jokersEnabled"`
	Used    domain.JokerUsage    `json:"jokersUsed"`
}

// EliminateResult carries the two eliminated wrong option indices, private to
// the invoking participant.
type EliminateResult struct {
	EliminatedIndices []int `json:"eliminatedIndices"`
}

// RosterEntry is the operator-facing view of one participant.
type RosterEntry struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	TotalScore    int    `json:"totalScore"`
	Avatar        string `json:"avatar,omitempty"`
	Connected     bool   `json:"connected"`
}

// SessionSnapshot is returned to an operator attaching to a session.
type SessionSnapshot struct {
	Session       domain.SessionHeader `json:"session"`
	Roster        []RosterEntry        `json:"roster"`
	QuestionCount int                  `json:"questionCount"`
	Settings      domain.GameSettings  `json:"gameSettings"`
}

// JoinResult is returned to a joining (or reconnecting) participant. Replay
// carries the private events needed to resume mid-game and is written
// directly on the new connection by the transport.
type JoinResult struct {
	SessionID        string       `json:"sessionId"`
	ParticipantID    string       `json:"participantId"`
	DisplayName      string       `json:"displayName"`
	Avatar           string       `json:"avatar,omitempty"`
	Phase            domain.Phase `json:"phase"`
	ParticipantCount int          `json:"participantCount"`
	Reconnected      bool         `json:"reconnected,omitempty"`
	Replay           []Event      `json:"-"`
}

// ParticipantEvent is the operator-facing roster change notification.
type ParticipantEvent struct {
	ParticipantID    string `json:"participantId"`
	DisplayName      string `json:"displayName"`
	Avatar           string `json:"avatar,omitempty"`
	ParticipantCount int    `json:"participantCount"`
}
