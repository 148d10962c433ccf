package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session uses the given code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPlayerNotFound is returned when grading a name absent from the player map.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrQuizNotFound indicates the quiz document could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")

	ErrEmptyName      = errors.New("name cannot be empty")
	ErrInvalidName    = errors.New("name contains characters that are not allowed")
	ErrEmptySessionID = errors.New("session id cannot be empty")
	ErrEmptyTitle     = errors.New("quiz title cannot be empty")
	ErrEmptyAnswer    = errors.New("answer cannot be empty")

	// ErrSubmissionClosed is returned when a player submits outside the active window.
	ErrSubmissionClosed = errors.New("answers are not being accepted")

	ErrNoRounds           = errors.New("quiz has no rounds")
	ErrEmptyRound         = errors.New("round has no questions")
	ErrRoundInProgress    = errors.New("round already in progress")
	ErrRoundNotInProgress = errors.New("no round in progress")
	ErrNoMoreQuestions    = errors.New("no more questions in this round")
	ErrNoMoreRounds       = errors.New("no more rounds in this quiz")
	ErrGameFinished       = errors.New("game already finished")

	// ErrSessionCodesExhausted is returned when no free session code could be reserved.
	ErrSessionCodesExhausted = errors.New("could not allocate a session code")
)
