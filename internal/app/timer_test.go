package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"trivia-session-service/internal/domain"
	"trivia-session-service/internal/infra/memory"
)

type countingBroadcaster struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingBroadcaster() *countingBroadcaster {
	return &countingBroadcaster{counts: make(map[string]int)}
}

func (b *countingBroadcaster) ToSession(_, event string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[event]++
}

func (b *countingBroadcaster) ToOperator(_, event string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[event]++
}

func (b *countingBroadcaster) ToParticipant(_, event string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[event]++
}

func (b *countingBroadcaster) count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[event]
}

func newTimerTestService(bc Broadcaster) *GameService {
	quizzes := map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{ID: "q1", Kind: domain.KindMultipleChoice, Options: []string{"a", "b", "c"}, CorrectIndex: 0, BaseScore: 100, TimeSec: 3600},
				{ID: "q2", Kind: domain.KindMultipleChoice, Options: []string{"a", "b", "c"}, CorrectIndex: 1, BaseScore: 100, TimeSec: 3600},
			},
		},
	}
	return NewGameService(ServiceConfig{
		Registry:      NewRegistry(),
		Questions:     memory.NewQuestionCache(memory.NewStaticQuizLoader(quizzes), time.Minute),
		Store:         memory.NewStore(),
		Broadcast:     bc,
		OperatorToken: "t",
	})
}

func startedSession(t *testing.T, svc *GameService) *session {
	t.Helper()
	ctx := context.Background()
	header, err := svc.CreateSession(ctx, "quiz-1", "t")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.Join(ctx, header.JoinCode, "Alice", "", "c1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.Join(ctx, header.JoinCode, "Bob", "", "c2"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.Start(ctx, header.ID, "t", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, ok := svc.registry.sessionByID(header.ID)
	if !ok {
		t.Fatal("session missing from registry")
	}
	return sess
}

func TestQuestionTimeoutFiresOnce(t *testing.T) {
	bc := newCountingBroadcaster()
	svc := newTimerTestService(bc)
	sess := startedSession(t, svc)

	svc.questionTimeout(sess, "q1")
	svc.questionTimeout(sess, "q1")

	if got := bc.count(EvtQuestionResults); got != 1 {
		t.Fatalf("question-results fired %d times, want 1", got)
	}
	if sess.phase != domain.PhaseResults {
		t.Fatalf("phase = %s, want %s", sess.phase, domain.PhaseResults)
	}
}

func TestQuestionTimeoutIgnoresEarlierQuestion(t *testing.T) {
	bc := newCountingBroadcaster()
	svc := newTimerTestService(bc)
	sess := startedSession(t, svc)
	ctx := context.Background()

	svc.questionTimeout(sess, "q1")
	if err := svc.Advance(ctx, sess.id, "t"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// A stale callback from the already-closed first question must not close
	// the second one.
	svc.questionTimeout(sess, "q1")
	if sess.phase != domain.PhaseQuestion {
		t.Fatalf("phase = %s, want %s", sess.phase, domain.PhaseQuestion)
	}
	if got := bc.count(EvtQuestionResults); got != 1 {
		t.Fatalf("question-results fired %d times, want 1", got)
	}
}

func TestAutoAdvanceOnlyFromResults(t *testing.T) {
	bc := newCountingBroadcaster()
	svc := newTimerTestService(bc)
	sess := startedSession(t, svc)

	// During a question the auto-advance callback is a no-op.
	svc.autoAdvance(sess)
	if got := bc.count(EvtQuestion); got != 1 {
		t.Fatalf("question broadcast %d times, want 1", got)
	}

	svc.questionTimeout(sess, "q1")
	svc.autoAdvance(sess)
	if got := bc.count(EvtQuestion); got != 2 {
		t.Fatalf("question broadcast %d times, want 2", got)
	}
	// The manual-advance path already consumed the results phase; a second
	// callback does nothing.
	svc.autoAdvance(sess)
	if got := bc.count(EvtQuestion); got != 2 {
		t.Fatalf("question broadcast %d times, want 2", got)
	}
}

func TestAutoAdvanceTimerDrivesResultsPhase(t *testing.T) {
	bc := newCountingBroadcaster()
	svc := newTimerTestService(bc)
	sess := startedSession(t, svc)

	sess.mu.Lock()
	sess.settings.AutoAdvanceSec = 1
	sess.mu.Unlock()

	svc.questionTimeout(sess, "q1")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if bc.count(EvtQuestion) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := bc.count(EvtQuestion); got != 2 {
		t.Fatalf("auto-advance never opened the next question (question events: %d)", got)
	}
}

func TestGenerateCodeSkipsCollisions(t *testing.T) {
	bc := newCountingBroadcaster()
	svc := newTimerTestService(bc)

	codes := []string{"111111", "111111", "222222"}
	svc.newCode = func() string {
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code
	}

	ctx := context.Background()
	first, err := svc.CreateSession(ctx, "quiz-1", "t")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if first.JoinCode != "111111" {
		t.Fatalf("first join code = %q, want 111111", first.JoinCode)
	}

	second, err := svc.CreateSession(ctx, "quiz-1", "t")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if second.JoinCode != "222222" {
		t.Fatalf("second join code = %q, want 222222", second.JoinCode)
	}
}

func TestRegistryRemoveReleasesCode(t *testing.T) {
	r := NewRegistry()
	s := &session{id: "s1", joinCode: "123456"}
	r.add(s)

	if got := r.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
	if !r.hasCode("123456") {
		t.Fatal("expected code to be registered")
	}

	r.remove("s1")
	if r.hasCode("123456") {
		t.Fatal("code still registered after remove")
	}
	if _, ok := r.sessionByID("s1"); ok {
		t.Fatal("session still resolvable after remove")
	}
	if got := r.Len(); got != 0 {
		t.Fatalf("Len = %d, want 0", got)
	}
}
