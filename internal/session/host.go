// Package session runs live quiz sessions on top of the realtime store: the
// host controller that publishes questions and grades answers, and the player
// client that mirrors the session and submits answers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"trivia-live/internal/domain"
	"trivia-live/internal/store"
)

// NextStep names the progression action available to the host.
type NextStep string

const (
	NextNone        NextStep = ""
	NextStartRound  NextStep = "startRound"
	NextQuestion    NextStep = "nextQuestion"
	NextFinishRound NextStep = "finishRound"
	NextFinishGame  NextStep = "finishGame"
)

// HostView is what a host screen renders.
type HostView struct {
	SessionID       string                    `json:"sessionId"`
	QuizID          string                    `json:"quizId"`
	QuizTitle       string                    `json:"quizTitle"`
	RoundIndex      int                       `json:"roundIndex"`
	RoundCount      int                       `json:"roundCount"`
	RoundTitle      string                    `json:"roundTitle"`
	QuestionIndex   int                       `json:"questionIndex"`
	QuestionCount   int                       `json:"questionCount"`
	TotalQuestions  int                       `json:"totalQuestions"`
	Question        *domain.Question          `json:"question,omitempty"`
	QuestionMedia   domain.MediaKind          `json:"questionMedia"`
	AnswerMedia     domain.MediaKind          `json:"answerMedia"`
	InProgress      bool                      `json:"inProgress"`
	Revealed        bool                      `json:"revealed"`
	Finished        bool                      `json:"finished"`
	TimeForQuestion int                       `json:"timeForQuestion"`
	TimeLeft        int                       `json:"timeLeft"`
	TimerRunning    bool                      `json:"timerRunning"`
	Next            NextStep                  `json:"next"`
	Players         []domain.Player           `json:"players"`
	Leaderboard     []domain.LeaderboardEntry `json:"leaderboard"`
}

// HostConfig configures StartHosting.
type HostConfig struct {
	SessionID string
	Quiz      domain.Quiz
	// TimeForQuestion is the per-question countdown in seconds.
	TimeForQuestion int
	Clock           clockwork.Clock
	Logger          zerolog.Logger
}

// HostController drives one live session. Every operation publishes to the
// store before updating local state, so a failed write leaves the session
// where it was.
type HostController struct {
	store           store.Store
	id              string
	quiz            domain.Quiz
	timeForQuestion int
	log             zerolog.Logger
	countdown       *Countdown
	updates         *broadcaster[HostView]
	sub             *store.Subscription
	closeOnce       sync.Once

	mu            sync.Mutex
	roundIndex    int
	questionIndex int
	inProgress    bool
	revealed      bool
	finished      bool
	players       map[string]domain.Player
}

// StartHosting writes a fresh session record and starts following its players.
func StartHosting(ctx context.Context, st store.Store, cfg HostConfig) (*HostController, error) {
	if cfg.SessionID == "" {
		return nil, domain.ErrEmptySessionID
	}
	if cfg.TimeForQuestion <= 0 {
		cfg.TimeForQuestion = DefaultTimeForQuestion
	}
	quiz := cfg.Quiz
	quiz.SortRoundsByOrder()

	h := &HostController{
		store:           st,
		id:              cfg.SessionID,
		quiz:            quiz,
		timeForQuestion: cfg.TimeForQuestion,
		log:             cfg.Logger.With().Str("session", cfg.SessionID).Logger(),
		updates:         newBroadcaster[HostView](),
		players:         make(map[string]domain.Player),
	}
	h.countdown = NewCountdown(cfg.Clock, func(int) { h.publish() }, func() {
		h.log.Debug().Msg("time is up")
	})

	record := map[string]any{
		FieldUID:             cfg.SessionID,
		FieldRoundTitle:      "",
		FieldQuestion:        "",
		FieldQuestionImage:   "",
		FieldAnswer:          "",
		FieldAnswerImage:     "",
		FieldTimeForQuestion: cfg.TimeForQuestion,
		FieldPlayers:         map[string]any{},
	}
	if err := st.Write(ctx, SessionPath(cfg.SessionID), record); err != nil {
		return nil, fmt.Errorf("create session %s: %w", cfg.SessionID, err)
	}

	sub, err := st.Subscribe(context.Background(), PlayersPath(cfg.SessionID), h.onPlayers)
	if err != nil {
		return nil, fmt.Errorf("subscribe players %s: %w", cfg.SessionID, err)
	}
	h.sub = sub
	h.log.Info().Str("quiz", quiz.ID).Int("rounds", len(quiz.Rounds)).Msg("hosting started")
	return h, nil
}

func (h *HostController) SessionID() string {
	return h.id
}

func (h *HostController) Quiz() domain.Quiz {
	return h.quiz
}

func (h *HostController) onPlayers(snap store.Snapshot) {
	players := make(map[string]domain.Player)
	if snap.Exists() {
		if err := snap.Decode(&players); err != nil {
			h.log.Warn().Err(err).Msg("decode players")
			return
		}
	}
	for name, p := range players {
		if p.Name == "" {
			p.Name = name
			players[name] = p
		}
	}

	h.mu.Lock()
	h.players = players
	view := h.viewLocked()
	h.mu.Unlock()
	h.updates.publish(view)
}

// StartRound publishes the current round's title and first question and
// starts the countdown.
func (h *HostController) StartRound(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		return domain.ErrGameFinished
	}
	if h.inProgress {
		return domain.ErrRoundInProgress
	}
	if len(h.quiz.Rounds) == 0 {
		return domain.ErrNoRounds
	}
	if h.roundIndex >= len(h.quiz.Rounds) {
		return domain.ErrNoMoreRounds
	}
	round := h.quiz.Rounds[h.roundIndex]
	if len(round.Questions) == 0 {
		return domain.ErrEmptyRound
	}
	q := round.Questions[0]

	err := h.store.Update(ctx, SessionPath(h.id), map[string]any{
		FieldRoundTitle:      round.Title,
		FieldTimeForQuestion: h.timeForQuestion,
		FieldQuestion:        q.Question,
		FieldQuestionImage:   q.QuestionImage,
		FieldAnswer:          "",
		FieldAnswerImage:     "",
	})
	if err != nil {
		return fmt.Errorf("start round: %w", err)
	}

	h.questionIndex = 0
	h.inProgress = true
	h.revealed = false
	h.countdown.Reset(h.timeForQuestion)
	h.log.Info().Int("round", h.roundIndex).Str("title", round.Title).Msg("round started")
	h.publishLocked()
	return nil
}

// AdvanceQuestion clears every player's answer and verdict, then publishes the
// next question of the round.
func (h *HostController) AdvanceQuestion(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.inProgress {
		return domain.ErrRoundNotInProgress
	}
	round := h.quiz.Rounds[h.roundIndex]
	if h.questionIndex+1 >= len(round.Questions) {
		return domain.ErrNoMoreQuestions
	}
	if err := h.resetPlayersLocked(ctx); err != nil {
		return err
	}

	q := round.Questions[h.questionIndex+1]
	err := h.store.Update(ctx, SessionPath(h.id), map[string]any{
		FieldQuestion:      q.Question,
		FieldQuestionImage: q.QuestionImage,
		FieldAnswer:        "",
		FieldAnswerImage:   "",
	})
	if err != nil {
		return fmt.Errorf("advance question: %w", err)
	}

	h.questionIndex++
	h.revealed = false
	h.countdown.Reset(h.timeForQuestion)
	h.log.Debug().Int("round", h.roundIndex).Int("question", h.questionIndex).Msg("question published")
	h.publishLocked()
	return nil
}

// RevealAnswer publishes the current question's answer to players.
func (h *HostController) RevealAnswer(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.inProgress {
		return domain.ErrRoundNotInProgress
	}
	q := h.quiz.Rounds[h.roundIndex].Questions[h.questionIndex]
	err := h.store.Update(ctx, SessionPath(h.id), map[string]any{
		FieldAnswer:      q.Answer,
		FieldAnswerImage: q.AnswerImage,
	})
	if err != nil {
		return fmt.Errorf("reveal answer: %w", err)
	}
	h.revealed = true
	h.publishLocked()
	return nil
}

// HideAnswer hides the answer on the host screen only; players keep it.
func (h *HostController) HideAnswer() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.revealed = false
	h.publishLocked()
}

// FinishRound clears answers and verdicts and moves to the next round. The
// next round is published by StartRound.
func (h *HostController) FinishRound(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.inProgress {
		return domain.ErrRoundNotInProgress
	}
	if h.roundIndex+1 >= len(h.quiz.Rounds) {
		return domain.ErrNoMoreRounds
	}
	if err := h.resetPlayersLocked(ctx); err != nil {
		return err
	}
	h.roundIndex++
	h.questionIndex = 0
	h.inProgress = false
	h.revealed = false
	h.countdown.Reset(0)
	h.log.Info().Int("round", h.roundIndex-1).Msg("round finished")
	h.publishLocked()
	return nil
}

// FinishGame ends the session and returns the final leaderboard.
func (h *HostController) FinishGame(_ context.Context) ([]domain.LeaderboardEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		return nil, domain.ErrGameFinished
	}
	h.finished = true
	h.inProgress = false
	h.revealed = false
	h.countdown.Stop()
	board := domain.Leaderboard(domain.PlayersInJoinOrder(h.players))
	h.log.Info().Int("players", len(board)).Msg("game finished")
	h.publishLocked()
	return board, nil
}

// GradeAnswer records the host's verdict for a player and adjusts the score.
// The transition is computed from the stored record, not the players cache,
// which may still hold a snapshot taken before the previous grade.
func (h *HostController) GradeAnswer(ctx context.Context, name string, correct bool) (domain.Player, error) {
	if domain.ValidatePlayerName(name) != nil {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	snap, err := h.store.Read(ctx, PlayerPath(h.id, name))
	if err != nil {
		return domain.Player{}, fmt.Errorf("read %s: %w", name, err)
	}
	if !snap.Exists() {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	var p domain.Player
	if err := snap.Decode(&p); err != nil {
		return domain.Player{}, fmt.Errorf("decode %s: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	updated, changed := Grade(p, correct)
	if !changed {
		return p, nil
	}
	err = h.store.Update(ctx, PlayerPath(h.id, name), map[string]any{
		"score":     updated.Score,
		"isCorrect": updated.IsCorrect,
	})
	if err != nil {
		return p, fmt.Errorf("grade %s: %w", name, err)
	}
	h.players[name] = updated
	h.log.Debug().Str("player", name).Bool("correct", correct).Int("score", updated.Score).Msg("graded")
	h.publishLocked()
	return updated, nil
}

func (h *HostController) resetPlayersLocked(ctx context.Context) error {
	if len(h.players) == 0 {
		return nil
	}
	values := make(map[string]any, 2*len(h.players))
	for name := range h.players {
		values[name+"/answer"] = ""
		values[name+"/isCorrect"] = nil
	}
	if err := h.store.Update(ctx, PlayersPath(h.id), values); err != nil {
		return fmt.Errorf("reset answers: %w", err)
	}
	for name, p := range h.players {
		p.Answer = ""
		h.players[name] = p.WithVerdict(domain.VerdictUngraded)
	}
	return nil
}

// View returns the current host view.
func (h *HostController) View() HostView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewLocked()
}

// Updates streams host views, starting with the current one. The caller must
// invoke cancel to release the subscription.
func (h *HostController) Updates() (<-chan HostView, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.updates.subscribe(h.viewLocked())
}

// Close stops the countdown and the players subscription. The session record
// is left in the store.
func (h *HostController) Close() {
	h.closeOnce.Do(func() {
		h.sub.Cancel()
		h.countdown.Stop()
		h.updates.close()
		h.log.Info().Msg("hosting ended")
	})
}

func (h *HostController) publish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publishLocked()
}

func (h *HostController) publishLocked() {
	h.updates.publish(h.viewLocked())
}

func (h *HostController) viewLocked() HostView {
	players := domain.PlayersInJoinOrder(h.players)
	v := HostView{
		SessionID:       h.id,
		QuizID:          h.quiz.ID,
		QuizTitle:       h.quiz.Title,
		RoundIndex:      h.roundIndex,
		RoundCount:      len(h.quiz.Rounds),
		QuestionIndex:   h.questionIndex,
		TotalQuestions:  h.quiz.QuestionCount(),
		InProgress:      h.inProgress,
		Revealed:        h.revealed,
		Finished:        h.finished,
		TimeForQuestion: h.timeForQuestion,
		TimeLeft:        h.countdown.Remaining(),
		TimerRunning:    h.countdown.Running(),
		Players:         players,
		Leaderboard:     domain.Leaderboard(players),
		Next:            h.nextLocked(),
	}
	if h.roundIndex < len(h.quiz.Rounds) {
		round := h.quiz.Rounds[h.roundIndex]
		v.RoundTitle = round.Title
		v.QuestionCount = len(round.Questions)
		if h.inProgress && h.questionIndex < len(round.Questions) {
			q := round.Questions[h.questionIndex]
			v.Question = &q
			v.QuestionMedia = domain.ClassifyMedia(q.QuestionImage)
			v.AnswerMedia = domain.ClassifyMedia(q.AnswerImage)
		}
	}
	return v
}

func (h *HostController) nextLocked() NextStep {
	switch {
	case h.finished:
		return NextNone
	case !h.inProgress:
		if h.roundIndex < len(h.quiz.Rounds) {
			return NextStartRound
		}
		return NextFinishGame
	case h.questionIndex+1 < len(h.quiz.Rounds[h.roundIndex].Questions):
		return NextQuestion
	case h.roundIndex+1 < len(h.quiz.Rounds):
		return NextFinishRound
	default:
		return NextFinishGame
	}
}

// IsProgressionError reports whether err is a refused host action rather than
// a store failure.
func IsProgressionError(err error) bool {
	for _, target := range []error{
		domain.ErrNoRounds, domain.ErrEmptyRound, domain.ErrRoundInProgress, domain.ErrRoundNotInProgress,
		domain.ErrNoMoreQuestions, domain.ErrNoMoreRounds, domain.ErrGameFinished,
		domain.ErrPlayerNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
