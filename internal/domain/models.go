package domain

import (
	"strings"
	"time"
)

// Phase is the lifecycle state of a game session.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseQuestion Phase = "question"
	PhaseResults  Phase = "results"
	PhaseEnded    Phase = "ended"
)

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool { return p == PhaseEnded }

// QuestionKind discriminates how answers are matched.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindTrueFalse      QuestionKind = "true_false"
	KindOpenText       QuestionKind = "open_text"
)

// Question is one quiz question, immutable for the lifetime of a session.
type Question struct {
	ID           string       `json:"id"`
	Prompt       string       `json:"prompt"`
	Kind         QuestionKind `json:"kind"`
	Options      []string     `json:"options"` // empty for open_text
	CorrectIndex int          `json:"correctIndex"`
	CorrectText  string       `json:"correctText,omitempty"`
	BaseScore    int          `json:"baseScore"`
	TimeSec      int          `json:"timeSec"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	Position     int          `json:"position"`
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Participant is one joined player. Disconnects never delete a participant;
// only the transport binding is cleared.
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	TotalScore  int       `json:"totalScore"`
	Avatar      string    `json:"avatar,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// AnswerRecord is one ledger entry: the scored outcome of a participant's
// submission (or skip joker) for a question. At most one exists per
// (question, participant) pair.
type AnswerRecord struct {
	ParticipantID string    `json:"participantId"`
	QuestionID    string    `json:"questionId"`
	ChosenIndex   int       `json:"chosenIndex"` // -1 for open text, -2 for skip
	ChosenText    string    `json:"chosenText,omitempty"`
	Correct       bool      `json:"correct"`
	Points        int       `json:"points"`
	Order         int       `json:"order"` // 1-based arrival order within the question
	WasSkip       bool      `json:"wasSkip,omitempty"`
	AnsweredAt    time.Time `json:"answeredAt"`
}

// LeaderboardEntry is a derived ranking row. Ties on total score keep the
// join order of the tied participants.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	TotalScore    int    `json:"totalScore"`
	QuestionScore int    `json:"questionScore"`
	ChosenIndex   *int   `json:"chosenIndex,omitempty"`
	ChosenText    string `json:"chosenText,omitempty"`
	Correct       bool   `json:"correct"`
	Avatar        string `json:"avatar,omitempty"`
}

// JokerUsage tracks the one-shot power-ups per participant per session.
type JokerUsage struct {
	Skip      bool `json:"skip"`
	Eliminate bool `json:"eliminate"`
}

// JokerSettings gates the power-ups for one game.
type JokerSettings struct {
	SkipEnabled      bool `json:"skipEnabled" yaml:"skip_enabled"`
	EliminateEnabled bool `json:"eliminateEnabled" yaml:"eliminate_enabled"`
}

// GameSettings is the effective scoring/power-up configuration of a game.
// The operator may override the process-wide defaults at start; the session
// keeps a snapshot so later default changes do not leak into running games.
type GameSettings struct {
	SpeedBonuses        []int         `json:"speedBonuses" yaml:"speed_bonuses"`
	DefaultSpeedBonus   int           `json:"defaultSpeedBonus" yaml:"default_speed_bonus"`
	StreakBonusEnabled  bool          `json:"streakBonusEnabled" yaml:"streak_bonus_enabled"`
	StreakMinimum       int           `json:"streakMinimum" yaml:"streak_minimum"`
	StreakBonusPerLevel int           `json:"streakBonusPerLevel" yaml:"streak_bonus_per_level"`
	BaseScoreOverride   int           `json:"baseScoreOverride" yaml:"base_score_override"` // skip joker award; 0 = question's own base score
	AutoAdvanceSec      int           `json:"autoAdvanceSec" yaml:"auto_advance_sec"`       // 0 = manual advance only
	AllowLateJoin       bool          `json:"allowLateJoin" yaml:"allow_late_join"`
	MaxParticipants     int           `json:"maxParticipants" yaml:"max_participants"` // 0 = unlimited
	Jokers              JokerSettings `json:"jokers" yaml:"jokers"`
}

// SessionHeader is the durable view of a session held by the archive.
type SessionHeader struct {
	ID            string    `json:"id"`
	QuizID        string    `json:"quizId"`
	JoinCode      string    `json:"joinCode"`
	Phase         Phase     `json:"phase"`
	QuestionIndex int       `json:"questionIndex"` // -1 before start
	CreatedAt     time.Time `json:"createdAt"`
}

// CleanDisplayName trims and caps a requested display name. Names are the
// reconnect key, so normalization happens once at the join boundary.
func CleanDisplayName(raw string) string {
	name := strings.TrimSpace(raw)
	if runes := []rune(name); len(runes) > 24 {
		name = string(runes[:24])
	}
	return name
}
