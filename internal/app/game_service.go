package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"trivia-session-service/internal/domain"
)

// defaultQuestionTimeSec backs questions imported without a time limit.
const defaultQuestionTimeSec = 20

const joinCodeAttempts = 100

// GameService runs live game sessions: it owns the phase state machine, the
// answer ledger, scoring and the joker subsystem, and coordinates the
// question/auto-advance timers against participant-driven transitions.
type GameService struct {
	registry *Registry
	source   QuestionSource
	store    Store
	bc       Broadcaster
	codes    CodeReserver // may be nil

	token           string
	defaults        domain.GameSettings
	questionTimeSec int

	// injectable for deterministic tests
	now     func() time.Time
	newID   func() string
	newCode func() string
	shuffle func(n int, swap func(i, j int))
}

// ServiceConfig wires the service's collaborators.
type ServiceConfig struct {
	Registry        *Registry
	Questions       QuestionSource
	Store           Store
	Broadcast       Broadcaster
	Codes           CodeReserver // optional
	OperatorToken   string
	Defaults        domain.GameSettings
	QuestionTimeSec int
}

func NewGameService(cfg ServiceConfig) *GameService {
	qt := cfg.QuestionTimeSec
	if qt <= 0 {
		qt = defaultQuestionTimeSec
	}
	return &GameService{
		registry:        cfg.Registry,
		source:          cfg.Questions,
		store:           cfg.Store,
		bc:              cfg.Broadcast,
		codes:           cfg.Codes,
		token:           cfg.OperatorToken,
		defaults:        cfg.Defaults,
		questionTimeSec: qt,
		now:             time.Now,
		newID:           uuid.NewString,
		newCode:         func() string { return fmt.Sprintf("%06d", rand.Intn(1000000)) },
		shuffle:         rand.Shuffle,
	}
}

// SettingsOverride is the operator's optional per-game configuration. Nil
// fields fall back to the process-wide defaults; the session snapshots the
// merged result at start.
type SettingsOverride struct {
	SpeedBonuses        []int                 `json:"speedBonuses,omitempty"`
	DefaultSpeedBonus   *int                  `json:"defaultSpeedBonus,omitempty"`
	StreakBonusEnabled  *bool                 `json:"streakBonusEnabled,omitempty"`
	StreakMinimum       *int                  `json:"streakMinimum,omitempty"`
	StreakBonusPerLevel *int                  `json:"streakBonusPerLevel,omitempty"`
	BaseScoreOverride   *int                  `json:"baseScoreOverride,omitempty"`
	AutoAdvanceSec      *int                  `json:"autoAdvanceSec,omitempty"`
	AllowLateJoin       *bool                 `json:"allowLateJoin,omitempty"`
	Jokers              *domain.JokerSettings `json:"jokersEnabled,omitempty"`
}

func (o *SettingsOverride) applyTo(s *domain.GameSettings) {
	if o == nil {
		return
	}
	if o.SpeedBonuses != nil {
		s.SpeedBonuses = o.SpeedBonuses
	}
	if o.DefaultSpeedBonus != nil {
		s.DefaultSpeedBonus = *o.DefaultSpeedBonus
	}
	if o.StreakBonusEnabled != nil {
		s.StreakBonusEnabled = *o.StreakBonusEnabled
	}
	if o.StreakMinimum != nil {
		s.StreakMinimum = *o.StreakMinimum
	}
	if o.StreakBonusPerLevel != nil {
		s.StreakBonusPerLevel = *o.StreakBonusPerLevel
	}
	if o.BaseScoreOverride != nil {
		s.BaseScoreOverride = *o.BaseScoreOverride
	}
	if o.AutoAdvanceSec != nil {
		s.AutoAdvanceSec = *o.AutoAdvanceSec
	}
	if o.AllowLateJoin != nil {
		s.AllowLateJoin = *o.AllowLateJoin
	}
	if o.Jokers != nil {
		s.Jokers = *o.Jokers
	}
}

func (g *GameService) checkToken(token string) error {
	if g.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(g.token)) != 1 {
		return domain.ErrUnauthorized
	}
	return nil
}

// pending accumulates the side effects of one locked mutation. The store
// writes and broadcasts run after the session mutex is released, persistence
// first, both best-effort.
type pending struct {
	persists      []func(context.Context) error
	emits         []emitOp
	removeSession string // session id to drop from the registry, if any
}

type emitOp struct {
	toSession     string
	toOperator    string
	toParticipant string
	event         string
	payload       any
}

func (p *pending) persist(fn func(context.Context) error) {
	p.persists = append(p.persists, fn)
}

func (p *pending) toSession(sessionID, event string, payload any) {
	p.emits = append(p.emits, emitOp{toSession: sessionID, event: event, payload: payload})
}

func (p *pending) toOperator(sessionID, event string, payload any) {
	p.emits = append(p.emits, emitOp{toOperator: sessionID, event: event, payload: payload})
}

func (p *pending) toParticipant(participantID, event string, payload any) {
	p.emits = append(p.emits, emitOp{toParticipant: participantID, event: event, payload: payload})
}

func (g *GameService) flush(ctx context.Context, p *pending) {
	for _, fn := range p.persists {
		if err := fn(ctx); err != nil {
			log.Printf("persist failed: %v", err)
		}
	}
	for _, e := range p.emits {
		switch {
		case e.toSession != "":
			g.bc.ToSession(e.toSession, e.event, e.payload)
		case e.toOperator != "":
			g.bc.ToOperator(e.toOperator, e.event, e.payload)
		case e.toParticipant != "":
			g.bc.ToParticipant(e.toParticipant, e.event, e.payload)
		}
	}
	if p.removeSession != "" {
		g.registry.remove(p.removeSession)
	}
}

// CreateSession allocates a new session for a quiz, generating a join code
// that collides with no live session.
func (g *GameService) CreateSession(ctx context.Context, quizID, token string) (domain.SessionHeader, error) {
	if err := g.checkToken(token); err != nil {
		return domain.SessionHeader{}, err
	}
	questions, err := g.source.Questions(ctx, quizID)
	if err != nil {
		return domain.SessionHeader{}, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return domain.SessionHeader{}, domain.ErrQuizNotFound
	}

	header := domain.SessionHeader{
		ID:            g.newID(),
		QuizID:        quizID,
		Phase:         domain.PhaseWaiting,
		QuestionIndex: -1,
		CreatedAt:     g.now(),
	}
	header.JoinCode, err = g.generateCode(ctx, header.ID)
	if err != nil {
		return domain.SessionHeader{}, err
	}
	if err := g.store.CreateSession(ctx, header); err != nil {
		return domain.SessionHeader{}, fmt.Errorf("create session: %w", err)
	}

	g.registry.add(newLiveSession(header, questions, g.defaults))
	return header, nil
}

func (g *GameService) generateCode(ctx context.Context, sessionID string) (string, error) {
	for i := 0; i < joinCodeAttempts; i++ {
		code := g.newCode()
		if g.registry.hasCode(code) {
			continue
		}
		if hdr, err := g.store.SessionByCode(ctx, code); err == nil && !hdr.Phase.Terminal() {
			continue
		}
		if g.codes != nil {
			ok, err := g.codes.Reserve(ctx, code, sessionID)
			if err != nil {
				log.Printf("reserve join code: %v", err)
			} else if !ok {
				continue
			}
		}
		return code, nil
	}
	return "", errors.New("could not allocate a join code")
}

// OperatorJoin attaches the operator view to a session, rehydrating registry
// state from the archive when the process has none.
func (g *GameService) OperatorJoin(ctx context.Context, sessionID, token string) (SessionSnapshot, error) {
	if err := g.checkToken(token); err != nil {
		return SessionSnapshot{}, err
	}
	sess, err := g.liveByID(ctx, sessionID)
	if err != nil {
		return SessionSnapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return SessionSnapshot{
		Session:       sess.header(),
		Roster:        sess.rosterSnapshot(),
		QuestionCount: len(sess.questions),
		Settings:      sess.settings,
	}, nil
}

// Start moves a waiting session into the first question. It snapshots the
// effective game settings and resets all joker usage.
func (g *GameService) Start(ctx context.Context, sessionID, token string, override *SettingsOverride) error {
	if err := g.checkToken(token); err != nil {
		return err
	}
	sess, err := g.liveByID(ctx, sessionID)
	if err != nil {
		return err
	}

	p := &pending{}
	sess.mu.Lock()
	err = func() error {
		if sess.phase != domain.PhaseWaiting {
			return domain.ErrInvalidState
		}
		if len(sess.roster) == 0 {
			return fmt.Errorf("no participants joined: %w", domain.ErrInvalidState)
		}

		settings := g.defaults
		override.applyTo(&settings)
		sess.settings = settings
		sess.jokers = make(map[string]*domain.JokerUsage)
		sess.eliminated = make(map[string][]int)
		sess.streaks = make(map[string]int)

		p.toSession(sess.id, EvtGameStarted, GameStarted{Jokers: settings.Jokers})
		g.openQuestionLocked(sess, p, 0)
		return nil
	}()
	sess.mu.Unlock()
	if err != nil {
		return err
	}
	g.flush(ctx, p)
	return nil
}

// Advance moves a results-phase session to the next question, or ends the
// game after the last one. Any pending auto-advance timer is cancelled.
func (g *GameService) Advance(ctx context.Context, sessionID, token string) error {
	if err := g.checkToken(token); err != nil {
		return err
	}
	sess, err := g.liveByID(ctx, sessionID)
	if err != nil {
		return err
	}

	p := &pending{}
	sess.mu.Lock()
	if sess.phase != domain.PhaseResults {
		sess.mu.Unlock()
		return domain.ErrInvalidState
	}
	g.advanceLocked(sess, p)
	sess.mu.Unlock()
	g.flush(ctx, p)
	return nil
}

// ForceEnd terminates the game from any non-terminal phase.
func (g *GameService) ForceEnd(ctx context.Context, sessionID, token string) error {
	if err := g.checkToken(token); err != nil {
		return err
	}
	sess, err := g.liveByID(ctx, sessionID)
	if err != nil {
		return err
	}

	p := &pending{}
	sess.mu.Lock()
	if sess.phase.Terminal() {
		sess.mu.Unlock()
		return domain.ErrInvalidState
	}
	g.endLocked(sess, p)
	sess.mu.Unlock()
	g.flush(ctx, p)
	return nil
}

// openQuestionLocked enters the question phase at the given index: it clears
// leftover timers and per-question elimination caches, broadcasts the
// question payload and arms the countdown.
func (g *GameService) openQuestionLocked(sess *session, p *pending, index int) {
	sess.stopResultsTimer()
	sess.stopQuestionTimer()
	sess.eliminated = make(map[string][]int)
	sess.index = index
	sess.phase = domain.PhaseQuestion
	sess.lastResults = nil

	q := sess.questions[index]
	timeSec := q.TimeSec
	if timeSec <= 0 {
		timeSec = g.questionTimeSec
	}

	payload := &QuestionPayload{
		Index:      index,
		Total:      len(sess.questions),
		QuestionID: q.ID,
		Prompt:     q.Prompt,
		Kind:       q.Kind,
		Options:    q.Options,
		TimeSec:    timeSec,
		ImageURL:   q.ImageURL,
	}
	sess.lastQuestion = payload

	sessionID, questionID, at := sess.id, q.ID, g.now()
	p.persist(func(ctx context.Context) error {
		return g.store.UpdatePhase(ctx, sessionID, domain.PhaseQuestion, index, at)
	})
	p.toSession(sess.id, EvtQuestion, payload)

	sess.questionTimer = time.AfterFunc(time.Duration(timeSec)*time.Second, func() {
		g.questionTimeout(sess, questionID)
	})
}

// questionTimeout is the countdown callback. It races against the
// "last connected participant answered" path; the phase and question checks
// under the session mutex make the transition fire exactly once.
func (g *GameService) questionTimeout(sess *session, questionID string) {
	p := &pending{}
	sess.mu.Lock()
	q := sess.currentQuestion()
	if sess.phase == domain.PhaseQuestion && q != nil && q.ID == questionID {
		g.closeQuestionLocked(sess, p)
	}
	sess.mu.Unlock()
	g.flush(context.Background(), p)
}

// closeQuestionLocked enters the results phase: it snapshots the leaderboard,
// broadcasts the results payload and arms the auto-advance timer when one is
// configured (zero means manual advance only).
func (g *GameService) closeQuestionLocked(sess *session, p *pending) {
	sess.stopQuestionTimer()
	q := sess.currentQuestion()
	if q == nil {
		return
	}

	payload := &ResultsPayload{
		QuestionID:     q.ID,
		Prompt:         q.Prompt,
		Kind:           q.Kind,
		Options:        q.Options,
		CorrectIndex:   q.CorrectIndex,
		CorrectText:    q.CorrectText,
		Leaderboard:    sess.leaderboard(q),
		IsLastQuestion: sess.index >= len(sess.questions)-1,
		AutoAdvanceSec: sess.settings.AutoAdvanceSec,
	}
	sess.phase = domain.PhaseResults
	sess.lastResults = payload

	sessionID, index, at := sess.id, sess.index, g.now()
	p.persist(func(ctx context.Context) error {
		return g.store.UpdatePhase(ctx, sessionID, domain.PhaseResults, index, at)
	})
	p.toSession(sess.id, EvtQuestionResults, payload)

	if sess.settings.AutoAdvanceSec > 0 {
		sess.resultsTimer = time.AfterFunc(time.Duration(sess.settings.AutoAdvanceSec)*time.Second, func() {
			g.autoAdvance(sess)
		})
	}
}

func (g *GameService) autoAdvance(sess *session) {
	p := &pending{}
	sess.mu.Lock()
	if sess.phase == domain.PhaseResults {
		g.advanceLocked(sess, p)
	}
	sess.mu.Unlock()
	g.flush(context.Background(), p)
}

func (g *GameService) advanceLocked(sess *session, p *pending) {
	sess.stopResultsTimer()
	next := sess.index + 1
	if next >= len(sess.questions) {
		g.endLocked(sess, p)
		return
	}
	g.openQuestionLocked(sess, p, next)
}

// endLocked finalizes the session: timers cancelled, terminal status
// persisted, final leaderboard broadcast, registry entry released.
func (g *GameService) endLocked(sess *session, p *pending) {
	sess.stopQuestionTimer()
	sess.stopResultsTimer()
	sess.phase = domain.PhaseEnded

	sessionID, index, at := sess.id, sess.index, g.now()
	p.persist(func(ctx context.Context) error {
		return g.store.UpdatePhase(ctx, sessionID, domain.PhaseEnded, index, at)
	})
	if g.codes != nil {
		code := sess.joinCode
		p.persist(func(ctx context.Context) error {
			return g.codes.Release(ctx, code)
		})
	}
	p.toSession(sess.id, EvtGameEnded, GameEnded{Leaderboard: sess.leaderboard(nil)})
	p.removeSession = sess.id
}

// liveByID resolves a session from the registry, falling back to the archive
// so that a session created before a restart can be referenced again. Only
// the durable header survives such a restart; in-flight game state does not.
func (g *GameService) liveByID(ctx context.Context, sessionID string) (*session, error) {
	if sess, ok := g.registry.sessionByID(sessionID); ok {
		return sess, nil
	}
	header, err := g.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, domain.ErrSessionNotFound
	}
	return g.rehydrate(ctx, header)
}

func (g *GameService) liveByCode(ctx context.Context, code string) (*session, error) {
	if sess, ok := g.registry.sessionByCode(code); ok {
		return sess, nil
	}
	header, err := g.store.SessionByCode(ctx, code)
	if err != nil {
		return nil, domain.ErrSessionNotFound
	}
	return g.rehydrate(ctx, header)
}

func (g *GameService) rehydrate(ctx context.Context, header domain.SessionHeader) (*session, error) {
	if header.Phase.Terminal() {
		return nil, domain.ErrSessionNotFound
	}
	questions, err := g.source.Questions(ctx, header.QuizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	sess := newLiveSession(header, questions, g.defaults)
	g.registry.add(sess)
	return sess, nil
}
