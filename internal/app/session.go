package app

import (
	"sort"
	"sync"
	"time"

	"trivia-session-service/internal/domain"
)

// participantState couples a participant's durable identity with its live
// transport binding. connID is empty while disconnected.
type participantState struct {
	domain.Participant
	connID string
}

// session is the single unit of mutation for one running game. Every
// state-changing operation (answers, jokers, phase transitions, timer
// callbacks) holds mu for the duration of the mutation; I/O to the store and
// the broadcaster happens after the lock is released.
type session struct {
	mu sync.Mutex

	id        string
	quizID    string
	joinCode  string
	questions []domain.Question
	settings  domain.GameSettings
	createdAt time.Time

	phase domain.Phase
	index int // -1 before start

	roster []*participantState // join order, never shrinks
	byID   map[string]*participantState
	byName map[string]*participantState

	// ledger: questionID → participantID → scored outcome. At most one entry
	// per pair; later submissions are no-ops.
	ledger       map[string]map[string]*domain.AnswerRecord
	correctCount map[string]int // questionID → correct answers so far (speed rank)
	streaks      map[string]int // participantID → consecutive correct answers
	jokers       map[string]*domain.JokerUsage
	eliminated   map[string][]int // participantID → cached 50/50 picks, current question only

	questionTimer *time.Timer
	resultsTimer  *time.Timer

	lastQuestion *QuestionPayload
	lastResults  *ResultsPayload
}

func newLiveSession(header domain.SessionHeader, questions []domain.Question, settings domain.GameSettings) *session {
	return &session{
		id:           header.ID,
		quizID:       header.QuizID,
		joinCode:     header.JoinCode,
		questions:    questions,
		settings:     settings,
		createdAt:    header.CreatedAt,
		phase:        header.Phase,
		index:        header.QuestionIndex,
		byID:         make(map[string]*participantState),
		byName:       make(map[string]*participantState),
		ledger:       make(map[string]map[string]*domain.AnswerRecord),
		correctCount: make(map[string]int),
		streaks:      make(map[string]int),
		jokers:       make(map[string]*domain.JokerUsage),
		eliminated:   make(map[string][]int),
	}
}

func (s *session) header() domain.SessionHeader {
	return domain.SessionHeader{
		ID:            s.id,
		QuizID:        s.quizID,
		JoinCode:      s.joinCode,
		Phase:         s.phase,
		QuestionIndex: s.index,
		CreatedAt:     s.createdAt,
	}
}

// currentQuestion returns the active question, or nil outside the question
// and results phases.
func (s *session) currentQuestion() *domain.Question {
	if s.index < 0 || s.index >= len(s.questions) {
		return nil
	}
	return &s.questions[s.index]
}

func (s *session) connectedCount() int {
	n := 0
	for _, p := range s.roster {
		if p.connID != "" {
			n++
		}
	}
	return n
}

func (s *session) entriesFor(questionID string) map[string]*domain.AnswerRecord {
	entries, ok := s.ledger[questionID]
	if !ok {
		entries = make(map[string]*domain.AnswerRecord)
		s.ledger[questionID] = entries
	}
	return entries
}

func (s *session) jokerUsage(participantID string) *domain.JokerUsage {
	usage, ok := s.jokers[participantID]
	if !ok {
		usage = &domain.JokerUsage{}
		s.jokers[participantID] = usage
	}
	return usage
}

// rosterAnswered reports whether every currently connected participant has a
// ledger entry for the question. False while nobody is connected, so a fully
// disconnected roster never force-closes a question.
func (s *session) rosterAnswered(questionID string) bool {
	connected := s.connectedCount()
	if connected == 0 {
		return false
	}
	answered := 0
	for _, p := range s.roster {
		if p.connID == "" {
			continue
		}
		if _, ok := s.ledger[questionID][p.ID]; ok {
			answered++
		}
	}
	return answered >= connected
}

// leaderboard ranks the roster by total score, descending. The sort is
// stable over the roster in join order, so participants with equal scores
// rank by who joined first. q, when non-nil, fills the per-question columns
// from that question's ledger.
func (s *session) leaderboard(q *domain.Question) []domain.LeaderboardEntry {
	ordered := make([]*participantState, len(s.roster))
	copy(ordered, s.roster)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TotalScore > ordered[j].TotalScore
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ordered))
	for i, p := range ordered {
		entry := domain.LeaderboardEntry{
			Rank:          i + 1,
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			TotalScore:    p.TotalScore,
			Avatar:        p.Avatar,
		}
		if q != nil {
			if rec, ok := s.ledger[q.ID][p.ID]; ok {
				idx := rec.ChosenIndex
				entry.ChosenIndex = &idx
				entry.ChosenText = rec.ChosenText
				entry.Correct = rec.Correct
				entry.QuestionScore = rec.Points
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

func (s *session) rosterSnapshot() []RosterEntry {
	entries := make([]RosterEntry, 0, len(s.roster))
	for _, p := range s.roster {
		entries = append(entries, RosterEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			TotalScore:    p.TotalScore,
			Avatar:        p.Avatar,
			Connected:     p.connID != "",
		})
	}
	return entries
}

func (s *session) stopQuestionTimer() {
	if s.questionTimer != nil {
		s.questionTimer.Stop()
		s.questionTimer = nil
	}
}

func (s *session) stopResultsTimer() {
	if s.resultsTimer != nil {
		s.resultsTimer.Stop()
		s.resultsTimer = nil
	}
}
