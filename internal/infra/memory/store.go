package memory

import (
	"context"
	"sync"
	"time"

	"trivia-session-service/internal/domain"
)

// Store is an in-memory implementation of app.Store: session headers,
// participants, answer records and a status transition log. It backs tests
// and the no-postgres demo mode.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]domain.SessionHeader
	participants map[string]map[string]domain.Participant // sessionID → participantID → participant
	answers      map[string][]domain.AnswerRecord         // sessionID → records in write order
	scores       map[string]map[string]int                // sessionID → participantID → cumulative score
	statusLog    map[string][]StatusEntry
}

// StatusEntry is one recorded phase transition.
type StatusEntry struct {
	Phase         domain.Phase
	QuestionIndex int
	At            time.Time
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]domain.SessionHeader),
		participants: make(map[string]map[string]domain.Participant),
		answers:      make(map[string][]domain.AnswerRecord),
		scores:       make(map[string]map[string]int),
		statusLog:    make(map[string][]StatusEntry),
	}
}

func (s *Store) CreateSession(_ context.Context, header domain.SessionHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[header.ID] = header
	return nil
}

func (s *Store) SessionByID(_ context.Context, id string) (domain.SessionHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	header, ok := s.sessions[id]
	if !ok {
		return domain.SessionHeader{}, domain.ErrSessionNotFound
	}
	return header, nil
}

func (s *Store) SessionByCode(_ context.Context, code string) (domain.SessionHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, header := range s.sessions {
		if header.JoinCode == code && !header.Phase.Terminal() {
			return header, nil
		}
	}
	return domain.SessionHeader{}, domain.ErrSessionNotFound
}

func (s *Store) UpdatePhase(_ context.Context, sessionID string, phase domain.Phase, questionIndex int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	header, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	header.Phase = phase
	header.QuestionIndex = questionIndex
	s.sessions[sessionID] = header
	s.statusLog[sessionID] = append(s.statusLog[sessionID], StatusEntry{
		Phase:         phase,
		QuestionIndex: questionIndex,
		At:            at,
	})
	return nil
}

func (s *Store) SaveParticipant(_ context.Context, sessionID string, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[sessionID]; !ok {
		s.participants[sessionID] = make(map[string]domain.Participant)
	}
	s.participants[sessionID][p.ID] = p
	return nil
}

func (s *Store) RecordAnswer(_ context.Context, sessionID string, rec domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// one scoring record per (question, participant)
	for _, existing := range s.answers[sessionID] {
		if existing.QuestionID == rec.QuestionID && existing.ParticipantID == rec.ParticipantID {
			return nil
		}
	}
	s.answers[sessionID] = append(s.answers[sessionID], rec)
	return nil
}

func (s *Store) AddScore(_ context.Context, sessionID, participantID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scores[sessionID]; !ok {
		s.scores[sessionID] = make(map[string]int)
	}
	s.scores[sessionID][participantID] += delta
	return nil
}

// Answers returns the recorded ledger entries for a session, in write order.
func (s *Store) Answers(sessionID string) []domain.AnswerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AnswerRecord, len(s.answers[sessionID]))
	copy(out, s.answers[sessionID])
	return out
}

// Score returns the recorded cumulative score of a participant.
func (s *Store) Score(sessionID, participantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores[sessionID][participantID]
}

// StatusLog returns the recorded phase transitions for a session.
func (s *Store) StatusLog(sessionID string) []StatusEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StatusEntry, len(s.statusLog[sessionID]))
	copy(out, s.statusLog[sessionID])
	return out
}
