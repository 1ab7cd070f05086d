package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-session-service/internal/domain"
)

// Store is the Postgres implementation of app.Store: durable session
// headers, players, one scoring record per ledger entry, and a status
// transition log.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateSession(ctx context.Context, header domain.SessionHeader) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, quiz_id, pin, status, question_index, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		header.ID, header.QuizID, header.JoinCode, string(header.Phase), header.QuestionIndex, header.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) SessionByID(ctx context.Context, id string) (domain.SessionHeader, error) {
	return s.scanSession(s.pool.QueryRow(ctx,
		`SELECT id, quiz_id, pin, status, question_index, created_at FROM sessions WHERE id=$1`, id))
}

func (s *Store) SessionByCode(ctx context.Context, code string) (domain.SessionHeader, error) {
	// Codes are only unique among non-terminal sessions; pick the newest.
	return s.scanSession(s.pool.QueryRow(ctx,
		`SELECT id, quiz_id, pin, status, question_index, created_at
		 FROM sessions WHERE pin=$1 AND status != 'ended'
		 ORDER BY created_at DESC LIMIT 1`, code))
}

func (s *Store) scanSession(row pgx.Row) (domain.SessionHeader, error) {
	var header domain.SessionHeader
	var status string
	err := row.Scan(&header.ID, &header.QuizID, &header.JoinCode, &status, &header.QuestionIndex, &header.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SessionHeader{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionHeader{}, fmt.Errorf("scan session: %w", err)
	}
	header.Phase = domain.Phase(status)
	return header, nil
}

func (s *Store) UpdatePhase(ctx context.Context, sessionID string, phase domain.Phase, questionIndex int, at time.Time) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status=$2, question_index=$3 WHERE id=$1`,
		sessionID, string(phase), questionIndex); err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO session_status_log (session_id, status, question_index, recorded_at)
		 VALUES ($1, $2, $3, $4)`,
		sessionID, string(phase), questionIndex, at); err != nil {
		return fmt.Errorf("log session status: %w", err)
	}
	return nil
}

func (s *Store) SaveParticipant(ctx context.Context, sessionID string, p domain.Participant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO players (id, session_id, username, avatar, total_score, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username, avatar=EXCLUDED.avatar`,
		p.ID, sessionID, p.DisplayName, p.Avatar, p.TotalScore, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("save participant: %w", err)
	}
	return nil
}

func (s *Store) RecordAnswer(ctx context.Context, sessionID string, rec domain.AnswerRecord) error {
	// The unique constraint makes a replayed write a no-op, keeping exactly
	// one scoring record per (question, participant).
	_, err := s.pool.Exec(ctx,
		`INSERT INTO answers (session_id, question_id, player_id, chosen_index, chosen_text, is_correct, points, answer_order, was_skip, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_id, question_id, player_id) DO NOTHING`,
		sessionID, rec.QuestionID, rec.ParticipantID, rec.ChosenIndex, rec.ChosenText,
		rec.Correct, rec.Points, rec.Order, rec.WasSkip, rec.AnsweredAt)
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

func (s *Store) AddScore(ctx context.Context, sessionID, participantID string, delta int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE players SET total_score = total_score + $3 WHERE id=$2 AND session_id=$1`,
		sessionID, participantID, delta)
	if err != nil {
		return fmt.Errorf("add score: %w", err)
	}
	return nil
}

// TotalScore reads back a participant's recorded cumulative score.
func (s *Store) TotalScore(ctx context.Context, sessionID, participantID string) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT total_score FROM players WHERE id=$2 AND session_id=$1`,
		sessionID, participantID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrParticipantNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read score: %w", err)
	}
	return total, nil
}
