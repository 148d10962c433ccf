package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"trivia-live/internal/domain"
	"trivia-live/internal/session"
	"trivia-live/internal/store"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionRegistry abstracts how live session codes are reserved (in-memory, Redis, etc).
type SessionRegistry interface {
	Reserve(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
}

// maxCodeAttempts bounds retries when a generated code is already live.
const maxCodeAttempts = 10

// GameOptions tunes a GameService. Zero values fall back to defaults.
type GameOptions struct {
	TimeForQuestion int
	Clock           clockwork.Clock
	Logger          zerolog.Logger
	Rand            *rand.Rand
}

// GameService contains the live session use cases: hosting a quiz and
// joining a hosted one.
type GameService struct {
	store           store.Store
	quizzes         QuizRepository
	sessions        SessionRegistry
	clock           clockwork.Clock
	log             zerolog.Logger
	timeForQuestion int

	mu    sync.Mutex
	rnd   *rand.Rand
	hosts map[string]*session.HostController
}

func NewGameService(st store.Store, quizzes QuizRepository, sessions SessionRegistry, opts GameOptions) *GameService {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.TimeForQuestion <= 0 {
		opts.TimeForQuestion = session.DefaultTimeForQuestion
	}
	return &GameService{
		store:           st,
		quizzes:         quizzes,
		sessions:        sessions,
		clock:           opts.Clock,
		log:             opts.Logger,
		timeForQuestion: opts.TimeForQuestion,
		rnd:             opts.Rand,
		hosts:           make(map[string]*session.HostController),
	}
}

// HostQuiz loads a quiz, reserves a free session code and starts hosting.
// timeForQuestion <= 0 uses the configured default.
func (s *GameService) HostQuiz(ctx context.Context, quizID string, timeForQuestion int) (*session.HostController, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	code, err := s.reserveCode(ctx)
	if err != nil {
		return nil, err
	}
	if timeForQuestion <= 0 {
		timeForQuestion = s.timeForQuestion
	}

	host, err := session.StartHosting(ctx, s.store, session.HostConfig{
		SessionID:       code,
		Quiz:            quiz,
		TimeForQuestion: timeForQuestion,
		Clock:           s.clock,
		Logger:          s.log,
	})
	if err != nil {
		if relErr := s.sessions.Release(ctx, code); relErr != nil {
			s.log.Error().Err(relErr).Str("session", code).Msg("release session code")
		}
		return nil, err
	}

	s.mu.Lock()
	s.hosts[code] = host
	s.mu.Unlock()
	return host, nil
}

// Host returns the controller of a session hosted by this process.
func (s *GameService) Host(code string) (*session.HostController, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hosts[code]
	return h, ok
}

// EndHosting stops a hosted session and frees its code. The session record is
// left for players still looking at it.
func (s *GameService) EndHosting(ctx context.Context, code string) error {
	s.mu.Lock()
	h, ok := s.hosts[code]
	delete(s.hosts, code)
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	h.Close()
	if err := s.sessions.Release(ctx, code); err != nil {
		return fmt.Errorf("release %s: %w", code, err)
	}
	return nil
}

// Join adds a player to an existing session.
func (s *GameService) Join(ctx context.Context, code, name string) (*session.PlayerClient, error) {
	code, err := domain.NormalizeSessionCode(code)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Read(ctx, session.SessionPath(code)+"/"+session.FieldUID)
	if err != nil {
		return nil, fmt.Errorf("lookup session %s: %w", code, err)
	}
	if !snap.Exists() {
		return nil, domain.ErrSessionNotFound
	}

	s.mu.Lock()
	color := domain.RandomColor(s.rnd)
	s.mu.Unlock()

	return session.Join(ctx, s.store, session.PlayerConfig{
		SessionID: code,
		Name:      name,
		Color:     color,
		Clock:     s.clock,
		Logger:    s.log,
	})
}

// Shutdown ends every session hosted by this process.
func (s *GameService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	codes := make([]string, 0, len(s.hosts))
	for code := range s.hosts {
		codes = append(codes, code)
	}
	s.mu.Unlock()
	for _, code := range codes {
		if err := s.EndHosting(ctx, code); err != nil {
			s.log.Warn().Err(err).Str("session", code).Msg("end hosting on shutdown")
		}
	}
}

func (s *GameService) reserveCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		s.mu.Lock()
		code := domain.NewSessionCode(s.rnd)
		s.mu.Unlock()

		ok, err := s.sessions.Reserve(ctx, code)
		if err != nil {
			return "", fmt.Errorf("reserve session code: %w", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", domain.ErrSessionCodesExhausted
}
