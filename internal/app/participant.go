package app

import (
	"context"
	"fmt"

	"trivia-session-service/internal/domain"
)

// Join admits a participant by (join code, display name). The name is the
// reconnect key: a second join for a known name while its previous connection
// is gone rebinds the transport and replays the current game state; a join
// against a still-live connection is rejected with ErrNameTaken.
func (g *GameService) Join(ctx context.Context, joinCode, displayName, avatar, connID string) (JoinResult, error) {
	name := domain.CleanDisplayName(displayName)
	if name == "" {
		return JoinResult{}, fmt.Errorf("display name required: %w", domain.ErrInvalidState)
	}

	sess, err := g.liveByCode(ctx, joinCode)
	if err != nil {
		return JoinResult{}, err
	}

	p := &pending{}
	sess.mu.Lock()
	result, err := g.joinLocked(sess, p, name, avatar, connID)
	sess.mu.Unlock()
	if err != nil {
		return JoinResult{}, err
	}
	g.flush(ctx, p)
	return result, nil
}

func (g *GameService) joinLocked(sess *session, p *pending, name, avatar, connID string) (JoinResult, error) {
	if sess.phase.Terminal() {
		return JoinResult{}, domain.ErrSessionNotFound
	}

	if existing, ok := sess.byName[name]; ok {
		if existing.connID != "" {
			return JoinResult{}, domain.ErrNameTaken
		}
		return g.reconnectLocked(sess, p, existing, avatar, connID), nil
	}

	if sess.phase != domain.PhaseWaiting && !sess.settings.AllowLateJoin {
		return JoinResult{}, domain.ErrGameInProgress
	}
	if max := sess.settings.MaxParticipants; max > 0 && len(sess.roster) >= max {
		return JoinResult{}, domain.ErrSessionFull
	}

	participant := &participantState{
		Participant: domain.Participant{
			ID:          g.newID(),
			DisplayName: name,
			Avatar:      avatar,
			JoinedAt:    g.now(),
		},
		connID: connID,
	}
	sess.roster = append(sess.roster, participant)
	sess.byID[participant.ID] = participant
	sess.byName[name] = participant

	sessionID, snapshot := sess.id, participant.Participant
	p.persist(func(ctx context.Context) error {
		return g.store.SaveParticipant(ctx, sessionID, snapshot)
	})
	p.toOperator(sess.id, EvtParticipantJoined, ParticipantEvent{
		ParticipantID:    participant.ID,
		DisplayName:      name,
		Avatar:           avatar,
		ParticipantCount: len(sess.roster),
	})

	return JoinResult{
		SessionID:        sess.id,
		ParticipantID:    participant.ID,
		DisplayName:      name,
		Avatar:           avatar,
		Phase:            sess.phase,
		ParticipantCount: len(sess.roster),
	}, nil
}

// reconnectLocked rebinds the transport and builds the private replay: joker
// availability, then either the open question (plus any cached elimination
// for this participant) or the last results payload.
func (g *GameService) reconnectLocked(sess *session, p *pending, participant *participantState, avatar, connID string) JoinResult {
	participant.connID = connID
	if avatar != "" {
		participant.Avatar = avatar
	}

	result := JoinResult{
		SessionID:        sess.id,
		ParticipantID:    participant.ID,
		DisplayName:      participant.DisplayName,
		Avatar:           participant.Avatar,
		Phase:            sess.phase,
		ParticipantCount: len(sess.roster),
		Reconnected:      true,
	}

	if sess.phase == domain.PhaseQuestion || sess.phase == domain.PhaseResults {
		result.Replay = append(result.Replay, Event{Name: EvtJokerState, Payload: JokerState{
			Enabled: sess.settings.Jokers,
			Used:    *sess.jokerUsage(participant.ID),
		}})
		switch sess.phase {
		case domain.PhaseQuestion:
			if sess.lastQuestion != nil {
				result.Replay = append(result.Replay, Event{Name: EvtQuestion, Payload: sess.lastQuestion})
			}
			if indices, ok := sess.eliminated[participant.ID]; ok {
				result.Replay = append(result.Replay, Event{Name: EvtEliminateResult, Payload: EliminateResult{EliminatedIndices: indices}})
			}
		case domain.PhaseResults:
			if sess.lastResults != nil {
				result.Replay = append(result.Replay, Event{Name: EvtQuestionResults, Payload: sess.lastResults})
			}
		}
	}

	p.toOperator(sess.id, EvtParticipantJoined, ParticipantEvent{
		ParticipantID:    participant.ID,
		DisplayName:      participant.DisplayName,
		Avatar:           participant.Avatar,
		ParticipantCount: len(sess.roster),
	})
	return result
}

// Disconnect clears the transport binding. The participant and its score
// survive; only the operator view is notified. A stale disconnect from a
// connection that was already replaced is ignored.
func (g *GameService) Disconnect(ctx context.Context, sessionID, participantID, connID string) {
	sess, ok := g.registry.sessionByID(sessionID)
	if !ok {
		return
	}

	p := &pending{}
	sess.mu.Lock()
	if participant, ok := sess.byID[participantID]; ok && participant.connID == connID {
		participant.connID = ""
		p.toOperator(sess.id, EvtParticipantLeft, ParticipantEvent{
			ParticipantID:    participant.ID,
			DisplayName:      participant.DisplayName,
			ParticipantCount: sess.connectedCount(),
		})
		// The departed participant may have been the last one holding the
		// question open.
		if q := sess.currentQuestion(); q != nil && sess.phase == domain.PhaseQuestion && sess.rosterAnswered(q.ID) {
			g.closeQuestionLocked(sess, p)
		}
	}
	sess.mu.Unlock()
	g.flush(ctx, p)
}

// SubmitAnswer scores the first submission per (question, participant) and
// appends it to the ledger; repeats are silent no-ops. Stale submissions
// (wrong phase or question) are dropped with ErrStaleRequest.
func (g *GameService) SubmitAnswer(ctx context.Context, sessionID, participantID, questionID string, chosenIndex int, chosenText string) error {
	sess, ok := g.registry.sessionByID(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}

	p := &pending{}
	sess.mu.Lock()
	err := g.submitLocked(sess, p, participantID, questionID, chosenIndex, chosenText)
	sess.mu.Unlock()
	if err != nil {
		return err
	}
	g.flush(ctx, p)
	return nil
}

func (g *GameService) submitLocked(sess *session, p *pending, participantID, questionID string, chosenIndex int, chosenText string) error {
	if sess.phase != domain.PhaseQuestion {
		return domain.ErrStaleRequest
	}
	q := sess.currentQuestion()
	if q == nil || q.ID != questionID {
		return domain.ErrStaleRequest
	}
	participant, ok := sess.byID[participantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}

	entries := sess.entriesFor(q.ID)
	if _, dup := entries[participantID]; dup {
		return nil
	}

	correct := AnswerIsCorrect(*q, chosenIndex, chosenText)
	points, newStreak := Score(*q, sess.streaks[participantID], sess.correctCount[q.ID], correct, sess.settings)
	sess.streaks[participantID] = newStreak
	if correct {
		sess.correctCount[q.ID]++
	}
	participant.TotalScore += points

	storedIndex := chosenIndex
	if q.Kind == domain.KindOpenText {
		storedIndex = -1
	}
	rec := &domain.AnswerRecord{
		ParticipantID: participantID,
		QuestionID:    q.ID,
		ChosenIndex:   storedIndex,
		ChosenText:    chosenText,
		Correct:       correct,
		Points:        points,
		Order:         len(entries) + 1,
		AnsweredAt:    g.now(),
	}
	entries[participantID] = rec

	g.recordOutcomeLocked(sess, p, participant, rec, AnswerOutcome{
		Correct:    correct,
		Points:     points,
		Streak:     newStreak,
		TotalScore: participant.TotalScore,
	})
	return nil
}

// recordOutcomeLocked shares the tail of the answer and skip paths: persist
// the ledger entry and score delta, notify the participant and the operator,
// and close the question if the ledger now covers the connected roster.
func (g *GameService) recordOutcomeLocked(sess *session, p *pending, participant *participantState, rec *domain.AnswerRecord, outcome AnswerOutcome) {
	sessionID, record := sess.id, *rec
	p.persist(func(ctx context.Context) error {
		return g.store.RecordAnswer(ctx, sessionID, record)
	})
	if record.Points > 0 {
		participantID, delta := participant.ID, record.Points
		p.persist(func(ctx context.Context) error {
			return g.store.AddScore(ctx, sessionID, participantID, delta)
		})
	}

	p.toParticipant(participant.ID, EvtAnswerOutcome, outcome)
	p.toOperator(sess.id, EvtAnswerProgress, AnswerProgress{
		AnsweredCount:     len(sess.ledger[rec.QuestionID]),
		TotalParticipants: sess.connectedCount(),
	})

	if sess.rosterAnswered(rec.QuestionID) {
		g.closeQuestionLocked(sess, p)
	}
}

// UseSkip spends the skip joker: a fixed award without correctness, counted
// toward roster completion but not toward the speed-bonus rank. Once per
// participant per session, only while a question is open and only before
// that participant has answered it.
func (g *GameService) UseSkip(ctx context.Context, sessionID, participantID string) error {
	sess, ok := g.registry.sessionByID(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}

	p := &pending{}
	sess.mu.Lock()
	err := g.skipLocked(sess, p, participantID)
	sess.mu.Unlock()
	if err != nil {
		return err
	}
	g.flush(ctx, p)
	return nil
}

func (g *GameService) skipLocked(sess *session, p *pending, participantID string) error {
	if sess.phase != domain.PhaseQuestion {
		return domain.ErrInvalidState
	}
	if !sess.settings.Jokers.SkipEnabled {
		return domain.ErrInvalidState
	}
	participant, ok := sess.byID[participantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	usage := sess.jokerUsage(participantID)
	if usage.Skip {
		return domain.ErrInvalidState
	}

	q := sess.currentQuestion()
	entries := sess.entriesFor(q.ID)
	if _, answered := entries[participantID]; answered {
		return domain.ErrInvalidState
	}
	usage.Skip = true

	award := sess.settings.BaseScoreOverride
	if award == 0 {
		award = q.BaseScore
	}
	participant.TotalScore += award

	rec := &domain.AnswerRecord{
		ParticipantID: participantID,
		QuestionID:    q.ID,
		ChosenIndex:   -2,
		Correct:       false,
		Points:        award,
		Order:         len(entries) + 1,
		WasSkip:       true,
		AnsweredAt:    g.now(),
	}
	entries[participantID] = rec

	g.recordOutcomeLocked(sess, p, participant, rec, AnswerOutcome{
		Correct:    false,
		Points:     award,
		Streak:     0,
		TotalScore: participant.TotalScore,
		WasSkip:    true,
	})
	return nil
}

// UseEliminate spends the 50/50 joker on a multiple-choice question: two
// distinct wrong option indices, drawn from a uniform shuffle, revealed only
// to the invoking participant. The picks are cached for the remainder of the
// question so a reconnect (or a repeated invocation) replays the identical
// pair instead of re-rolling.
func (g *GameService) UseEliminate(ctx context.Context, sessionID, participantID string) ([]int, error) {
	sess, ok := g.registry.sessionByID(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.phase != domain.PhaseQuestion {
		return nil, domain.ErrInvalidState
	}
	if !sess.settings.Jokers.EliminateEnabled {
		return nil, domain.ErrInvalidState
	}
	if _, ok := sess.byID[participantID]; !ok {
		return nil, domain.ErrParticipantNotFound
	}

	if indices, ok := sess.eliminated[participantID]; ok {
		return indices, nil
	}

	usage := sess.jokerUsage(participantID)
	if usage.Eliminate {
		return nil, domain.ErrInvalidState
	}

	q := sess.currentQuestion()
	if q.Kind != domain.KindMultipleChoice {
		return nil, domain.ErrInvalidState
	}
	if _, answered := sess.ledger[q.ID][participantID]; answered {
		return nil, domain.ErrInvalidState
	}

	wrong := make([]int, 0, len(q.Options)-1)
	for i := range q.Options {
		if i != q.CorrectIndex {
			wrong = append(wrong, i)
		}
	}
	if len(wrong) < 2 {
		return nil, domain.ErrInvalidState
	}
	g.shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })

	usage.Eliminate = true
	indices := wrong[:2]
	sess.eliminated[participantID] = indices
	return indices, nil
}
