package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"trivia-live/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewQuizDocuments(sampleQuiz())}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if quiz.Rounds[0].Questions[0].Answer != "4" {
		t.Fatalf("unexpected cached quiz %+v", quiz)
	}
}

func TestQuizRepositoryInvalidate(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewQuizDocuments(sampleQuiz())}
	repo := NewQuizRepository(loader, time.Minute)

	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	_ = repo.Invalidate(context.Background(), "quiz-1")
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d calls", loader.calls)
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewQuizDocuments(sampleQuiz())}
	clock := clockwork.NewFakeClock()
	repo := NewQuizRepositoryWithClock(loader, time.Minute, clock)

	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	clock.Advance(50 * time.Second)
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit before expiry, got %d calls", loader.calls)
	}
	// past the largest jittered ttl
	clock.Advance(20 * time.Second)
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, got %d calls", loader.calls)
	}
}

func TestQuizRepositoryZeroTTLKeepsEntries(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewQuizDocuments(sampleQuiz())}
	clock := clockwork.NewFakeClock()
	repo := NewQuizRepositoryWithClock(loader, 0, clock)

	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	clock.Advance(24 * time.Hour)
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if loader.calls != 1 {
		t.Fatalf("expected entry kept without ttl, got %d calls", loader.calls)
	}
}

func TestQuizRepositoryUnknownQuiz(t *testing.T) {
	repo := NewQuizRepository(NewQuizDocuments(), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "missing"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:        "quiz-1",
		Title:     "Pub night",
		Author:    "host-1",
		CreatedAt: time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC),
		Rounds: []domain.Round{
			{
				UID:   "r1",
				Title: "Warm up",
				Order: 1,
				Questions: []domain.Question{
					{UID: "q1", Question: "What is 2 + 2?", Answer: "4"},
				},
			},
		},
	}
}
