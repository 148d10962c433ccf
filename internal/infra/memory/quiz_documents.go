package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"trivia-live/internal/domain"
)

// QuizDocuments keeps quiz documents in process. It satisfies both the
// editor's document repository and the session-side QuizLoader.
type QuizDocuments struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

// NewQuizDocuments seeds the store with the given quizzes.
func NewQuizDocuments(seed ...domain.Quiz) *QuizDocuments {
	d := &QuizDocuments{quizzes: make(map[string]domain.Quiz)}
	for _, q := range seed {
		d.quizzes[q.ID] = clone(q)
	}
	return d
}

func (d *QuizDocuments) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if quiz, ok := d.quizzes[quizID]; ok {
		return clone(quiz), nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// ListByAuthor returns an author's quizzes, newest first.
func (d *QuizDocuments) ListByAuthor(_ context.Context, author string) ([]domain.Quiz, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Quiz, 0)
	for _, q := range d.quizzes {
		if q.Author == author {
			out = append(out, clone(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (d *QuizDocuments) Create(_ context.Context, quiz domain.Quiz) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quizzes[quiz.ID] = clone(quiz)
	return nil
}

func (d *QuizDocuments) SaveRounds(_ context.Context, quizID, author string, rounds []domain.Round) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	quiz, ok := d.quizzes[quizID]
	if !ok || quiz.Author != author {
		return domain.ErrQuizNotFound
	}
	quiz.Rounds = rounds
	d.quizzes[quizID] = clone(quiz)
	return nil
}

func (d *QuizDocuments) Delete(_ context.Context, quizID, author string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	quiz, ok := d.quizzes[quizID]
	if !ok || quiz.Author != author {
		return domain.ErrQuizNotFound
	}
	delete(d.quizzes, quizID)
	return nil
}

// clone detaches stored documents from caller-owned slices.
func clone(q domain.Quiz) domain.Quiz {
	raw, err := json.Marshal(q)
	if err != nil {
		return q
	}
	var out domain.Quiz
	if err := json.Unmarshal(raw, &out); err != nil {
		return q
	}
	return out
}
