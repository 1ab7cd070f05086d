package domain

import "errors"

var (
	// ErrUnauthorized is returned when an operator credential does not validate.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidState is returned for commands that have no meaning in the current phase.
	ErrInvalidState = errors.New("invalid session state")
	// ErrSessionNotFound is returned for unknown session ids or join codes.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrParticipantNotFound is returned when a participant id is unknown to the session.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrNameTaken is returned when a display name is already bound to a live connection.
	ErrNameTaken = errors.New("display name already taken")
	// ErrStaleRequest marks an answer for a question that is no longer active.
	ErrStaleRequest = errors.New("stale request")
	// ErrSessionFull is returned when the participant cap is reached.
	ErrSessionFull = errors.New("session is full")
	// ErrGameInProgress rejects new (non-reconnect) joins after start when late join is off.
	ErrGameInProgress = errors.New("game already in progress")
)
