package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"trivia-live/internal/domain"
)

// QuizDocuments is the persistent quiz document collection.
type QuizDocuments interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListByAuthor(ctx context.Context, author string) ([]domain.Quiz, error)
	Create(ctx context.Context, quiz domain.Quiz) error
	SaveRounds(ctx context.Context, quizID, author string, rounds []domain.Round) error
	Delete(ctx context.Context, quizID, author string) error
}

// QuizCache is the read-through cache sessions load quizzes from.
type QuizCache interface {
	Invalidate(ctx context.Context, quizID string) error
}

// QuizEditor contains the authoring use cases. Every operation is scoped to
// the calling author.
type QuizEditor struct {
	docs  QuizDocuments
	cache QuizCache
	clock clockwork.Clock
	log   zerolog.Logger
}

func NewQuizEditor(docs QuizDocuments, cache QuizCache, clock clockwork.Clock, logger zerolog.Logger) *QuizEditor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &QuizEditor{docs: docs, cache: cache, clock: clock, log: logger}
}

// Create stores an empty quiz owned by author.
func (e *QuizEditor) Create(ctx context.Context, author, title string) (domain.Quiz, error) {
	return e.Import(ctx, author, domain.Quiz{Title: title})
}

// Import stores a complete quiz owned by author, assigning missing ids.
func (e *QuizEditor) Import(ctx context.Context, author string, quiz domain.Quiz) (domain.Quiz, error) {
	quiz.Title = strings.TrimSpace(quiz.Title)
	if quiz.Title == "" {
		return domain.Quiz{}, domain.ErrEmptyTitle
	}
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	quiz.Author = author
	quiz.CreatedAt = e.clock.Now().UTC()
	quiz.Rounds = prepareRounds(quiz.Rounds)

	if err := e.docs.Create(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	e.log.Info().Str("quiz", quiz.ID).Str("author", author).Int("rounds", len(quiz.Rounds)).Msg("quiz created")
	return quiz, nil
}

// List returns the author's quizzes, newest first.
func (e *QuizEditor) List(ctx context.Context, author string) ([]domain.Quiz, error) {
	return e.docs.ListByAuthor(ctx, author)
}

// Get returns one of the author's quizzes.
func (e *QuizEditor) Get(ctx context.Context, author, quizID string) (domain.Quiz, error) {
	quiz, err := e.docs.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.Author != author {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

// SaveRounds replaces the quiz's rounds. New rounds and questions get uids and
// rounds are stable-sorted by order.
func (e *QuizEditor) SaveRounds(ctx context.Context, author, quizID string, rounds []domain.Round) (domain.Quiz, error) {
	rounds = prepareRounds(rounds)
	if err := e.docs.SaveRounds(ctx, quizID, author, rounds); err != nil {
		return domain.Quiz{}, err
	}
	e.invalidate(ctx, quizID)
	return e.Get(ctx, author, quizID)
}

func (e *QuizEditor) Delete(ctx context.Context, author, quizID string) error {
	if err := e.docs.Delete(ctx, quizID, author); err != nil {
		return err
	}
	e.invalidate(ctx, quizID)
	e.log.Info().Str("quiz", quizID).Msg("quiz deleted")
	return nil
}

func (e *QuizEditor) invalidate(ctx context.Context, quizID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, quizID); err != nil {
		e.log.Warn().Err(err).Str("quiz", quizID).Msg("invalidate quiz cache")
	}
}

func prepareRounds(rounds []domain.Round) []domain.Round {
	out := make([]domain.Round, len(rounds))
	for i, r := range rounds {
		if r.UID == "" {
			r.UID = uuid.NewString()
		}
		questions := make([]domain.Question, len(r.Questions))
		for j, q := range r.Questions {
			if q.UID == "" {
				q.UID = uuid.NewString()
			}
			questions[j] = q
		}
		r.Questions = questions
		out[i] = r
	}
	quiz := domain.Quiz{Rounds: out}
	quiz.SortRoundsByOrder()
	return quiz.Rounds
}
