package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"trivia-session-service/internal/domain"
)

func TestStoreSessionLookups(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	header := domain.SessionHeader{
		ID:        "s1",
		QuizID:    "quiz-1",
		JoinCode:  "123456",
		Phase:     domain.PhaseWaiting,
		CreatedAt: time.Now(),
	}
	if err := store.CreateSession(ctx, header); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := store.SessionByID(ctx, "s1")
	if err != nil {
		t.Fatalf("SessionByID: %v", err)
	}
	if got.JoinCode != "123456" {
		t.Fatalf("JoinCode = %q, want 123456", got.JoinCode)
	}

	got, err = store.SessionByCode(ctx, "123456")
	if err != nil {
		t.Fatalf("SessionByCode: %v", err)
	}
	if got.ID != "s1" {
		t.Fatalf("ID = %q, want s1", got.ID)
	}

	if _, err := store.SessionByID(ctx, "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestStoreEndedSessionNotFoundByCode(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	header := domain.SessionHeader{ID: "s1", JoinCode: "123456", Phase: domain.PhaseWaiting}
	if err := store.CreateSession(ctx, header); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := store.UpdatePhase(ctx, "s1", domain.PhaseEnded, 2, time.Now()); err != nil {
		t.Fatalf("UpdatePhase: %v", err)
	}

	// The code is free for reuse once the session is terminal.
	if _, err := store.SessionByCode(ctx, "123456"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}

	log := store.StatusLog("s1")
	if len(log) != 1 || log[0].Phase != domain.PhaseEnded || log[0].QuestionIndex != 2 {
		t.Fatalf("unexpected status log: %+v", log)
	}
}

func TestStoreAnswerDedupAndScores(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	rec := domain.AnswerRecord{ParticipantID: "p1", QuestionID: "q1", ChosenIndex: 1, Correct: true, Points: 700}
	if err := store.RecordAnswer(ctx, "s1", rec); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	dup := rec
	dup.Points = 9999
	if err := store.RecordAnswer(ctx, "s1", dup); err != nil {
		t.Fatalf("RecordAnswer dup: %v", err)
	}

	answers := store.Answers("s1")
	if len(answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(answers))
	}
	if answers[0].Points != 700 {
		t.Fatalf("Points = %d, want the first write to win", answers[0].Points)
	}

	if err := store.AddScore(ctx, "s1", "p1", 700); err != nil {
		t.Fatalf("AddScore: %v", err)
	}
	if err := store.AddScore(ctx, "s1", "p1", 300); err != nil {
		t.Fatalf("AddScore: %v", err)
	}
	if got := store.Score("s1", "p1"); got != 1000 {
		t.Fatalf("Score = %d, want 1000", got)
	}
}
