package session

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"trivia-live/internal/domain"
	"trivia-live/internal/store"
)

// PlayerState is the answering state of a player screen.
type PlayerState int

const (
	// StateWaiting: no question has been published since joining.
	StateWaiting PlayerState = iota
	// StateActive: a question is open and the countdown is running.
	StateActive
	// StateSubmitted: an answer was written for the current question.
	StateSubmitted
	// StateLocked: the countdown ran out before an answer was submitted.
	StateLocked
)

func (s PlayerState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSubmitted:
		return "submitted"
	case StateLocked:
		return "locked"
	default:
		return "waiting"
	}
}

func (s PlayerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *PlayerState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "active":
		*s = StateActive
	case "submitted":
		*s = StateSubmitted
	case "locked":
		*s = StateLocked
	default:
		*s = StateWaiting
	}
	return nil
}

// PlayerView is what a player screen renders.
type PlayerView struct {
	SessionID       string           `json:"sessionId"`
	Name            string           `json:"name"`
	Color           string           `json:"color"`
	State           PlayerState      `json:"state"`
	RoundTitle      string           `json:"roundTitle"`
	Question        string           `json:"question"`
	QuestionImage   string           `json:"questionImage"`
	QuestionMedia   domain.MediaKind `json:"questionMedia"`
	TimeForQuestion int              `json:"timeForQuestion"`
	TimeLeft        int              `json:"timeLeft"`
	Revealed        bool             `json:"revealed"`
	Answer          string           `json:"answer"`
	AnswerImage     string           `json:"answerImage"`
	AnswerMedia     domain.MediaKind `json:"answerMedia"`
	Submitted       string           `json:"submitted"`
	Score           int              `json:"score"`
	Verdict         domain.Verdict   `json:"verdict"`
}

// PlayerConfig configures Join and StartPlayer.
type PlayerConfig struct {
	SessionID string
	Name      string
	// Color is picked from the palette when empty.
	Color  string
	Clock  clockwork.Clock
	Logger zerolog.Logger
}

type sessionChanged struct{ snap store.Snapshot }

type submitRequest struct {
	ctx   context.Context
	text  string
	reply chan error
}

type countdownTicked struct{}

type countdownExpired struct{}

// PlayerClient mirrors one session for one player. All state changes happen
// on a single event loop fed by store snapshots, countdown events and
// submissions.
type PlayerClient struct {
	store     store.Store
	sessionID string
	name      string
	log       zerolog.Logger
	countdown *Countdown
	updates   *broadcaster[PlayerView]
	events    chan any
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	sub       *store.Subscription
	closeOnce sync.Once

	mu                sync.RWMutex
	view              PlayerView
	lastQuestion      string
	lastQuestionImage string
}

// Join validates the player, writes a fresh player record and starts a client
// for it. Joining under an existing name replaces that player's record.
func Join(ctx context.Context, st store.Store, cfg PlayerConfig) (*PlayerClient, error) {
	name := strings.TrimSpace(cfg.Name)
	if err := domain.ValidatePlayerName(name); err != nil {
		return nil, err
	}
	code, err := domain.NormalizeSessionCode(cfg.SessionID)
	if err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Color == "" {
		cfg.Color = domain.RandomColor(rand.New(rand.NewSource(cfg.Clock.Now().UnixNano())))
	}
	cfg.Name, cfg.SessionID = name, code

	record := domain.Player{
		UID:      uuid.NewString(),
		Name:     name,
		Color:    cfg.Color,
		JoinedAt: cfg.Clock.Now().UnixMilli(),
	}
	if err := st.Write(ctx, PlayerPath(code, name), record); err != nil {
		return nil, fmt.Errorf("join %s as %s: %w", code, name, err)
	}
	return StartPlayer(ctx, st, cfg)
}

// StartPlayer attaches a client to an existing player record.
func StartPlayer(ctx context.Context, st store.Store, cfg PlayerConfig) (*PlayerClient, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	c := &PlayerClient{
		store:     st,
		sessionID: cfg.SessionID,
		name:      cfg.Name,
		log:       cfg.Logger.With().Str("session", cfg.SessionID).Str("player", cfg.Name).Logger(),
		updates:   newBroadcaster[PlayerView](),
		events:    make(chan any, updateBuffer),
		ctx:       runCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		view: PlayerView{
			SessionID:       cfg.SessionID,
			Name:            cfg.Name,
			Color:           cfg.Color,
			TimeForQuestion: DefaultTimeForQuestion,
		},
	}
	c.countdown = NewCountdown(cfg.Clock, func(int) {
		select {
		case c.events <- countdownTicked{}:
		default:
		}
	}, func() {
		c.post(countdownExpired{})
	})

	snap, err := st.Read(ctx, SessionPath(cfg.SessionID))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("read session %s: %w", cfg.SessionID, err)
	}
	c.applySession(snap)

	sub, err := st.Subscribe(runCtx, SessionPath(cfg.SessionID), func(snap store.Snapshot) {
		c.post(sessionChanged{snap: snap})
	})
	if err != nil {
		cancel()
		c.countdown.Stop()
		return nil, fmt.Errorf("subscribe session %s: %w", cfg.SessionID, err)
	}
	c.sub = sub

	go c.run()
	c.log.Info().Msg("player joined")
	return c, nil
}

func (c *PlayerClient) Name() string {
	return c.name
}

func (c *PlayerClient) SessionID() string {
	return c.sessionID
}

// SubmitAnswer writes the trimmed answer to the player's record. It fails
// without writing when the text is blank or no question is open.
func (c *PlayerClient) SubmitAnswer(ctx context.Context, text string) error {
	req := submitRequest{ctx: ctx, text: text, reply: make(chan error, 1)}
	select {
	case c.events <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return domain.ErrSubmissionClosed
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return domain.ErrSubmissionClosed
	}
}

// View returns the current player view.
func (c *PlayerClient) View() PlayerView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewLocked()
}

// Updates streams player views, starting with the current one. The caller
// must invoke cancel to release the subscription.
func (c *PlayerClient) Updates() (<-chan PlayerView, func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updates.subscribe(c.viewLocked())
}

// Close stops the client. The player record stays in the session.
func (c *PlayerClient) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.sub.Cancel()
		c.countdown.Stop()
		<-c.done
		c.updates.close()
		c.log.Info().Msg("player left")
	})
}

func (c *PlayerClient) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *PlayerClient) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *PlayerClient) handle(ev any) {
	switch ev := ev.(type) {
	case sessionChanged:
		c.applySession(ev.snap)
	case submitRequest:
		ev.reply <- c.submit(ev.ctx, ev.text)
		return
	case countdownTicked:
	case countdownExpired:
		c.mu.Lock()
		if c.view.State == StateActive && c.countdown.Remaining() == 0 {
			c.view.State = StateLocked
			c.log.Debug().Msg("answers locked")
		}
		c.mu.Unlock()
	}
	c.publish()
}

func (c *PlayerClient) submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	c.mu.RLock()
	state := c.view.State
	c.mu.RUnlock()
	if state != StateActive {
		return domain.ErrSubmissionClosed
	}
	if text == "" {
		return domain.ErrEmptyAnswer
	}

	// only the event loop mutates the view, so the state cannot change during the write
	if err := c.store.Write(ctx, PlayerPath(c.sessionID, c.name)+"/answer", text); err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}

	c.mu.Lock()
	c.view.State = StateSubmitted
	c.view.Submitted = text
	c.countdown.Stop()
	c.mu.Unlock()
	c.log.Debug().Msg("answer submitted")
	c.publish()
	return nil
}

// applySession folds a session snapshot into the view. A newly published
// non-empty question or media reopens answering from any state.
func (c *PlayerClient) applySession(snap store.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := &c.view

	if n := snap.Child(FieldTimeForQuestion).Int(); n > 0 {
		v.TimeForQuestion = n
	}
	v.RoundTitle = snap.Child(FieldRoundTitle).Text()

	question := snap.Child(FieldQuestion).Text()
	image := snap.Child(FieldQuestionImage).Text()
	v.Question = question
	v.QuestionImage = image
	v.QuestionMedia = domain.ClassifyMedia(image)
	reopen := (question != "" && question != c.lastQuestion) || (image != "" && image != c.lastQuestionImage)
	c.lastQuestion, c.lastQuestionImage = question, image

	v.Answer = snap.Child(FieldAnswer).Text()
	v.AnswerImage = snap.Child(FieldAnswerImage).Text()
	v.AnswerMedia = domain.ClassifyMedia(v.AnswerImage)
	v.Revealed = v.Answer != "" || v.AnswerImage != ""

	var me domain.Player
	if rec := snap.Child(FieldPlayers + "/" + c.name); rec.Exists() {
		if err := rec.Decode(&me); err != nil {
			c.log.Warn().Err(err).Msg("decode player record")
		}
	}
	v.Submitted = me.Answer
	v.Score = me.Score
	v.Verdict = me.Verdict()
	if me.Color != "" {
		v.Color = me.Color
	}

	if reopen {
		v.State = StateActive
		c.countdown.Reset(v.TimeForQuestion)
	}
}

func (c *PlayerClient) publish() {
	c.mu.RLock()
	view := c.viewLocked()
	c.mu.RUnlock()
	c.updates.publish(view)
}

func (c *PlayerClient) viewLocked() PlayerView {
	v := c.view
	v.TimeLeft = c.countdown.Remaining()
	return v
}
