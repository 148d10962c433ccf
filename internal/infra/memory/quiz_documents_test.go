package memory

import (
	"context"
	"testing"
	"time"

	"trivia-live/internal/domain"
)

func TestQuizDocumentsCRUD(t *testing.T) {
	ctx := context.Background()
	docs := NewQuizDocuments(sampleQuiz())

	newer := domain.Quiz{ID: "quiz-2", Title: "Movies", Author: "host-1", CreatedAt: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)}
	if err := docs.Create(ctx, newer); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = docs.Create(ctx, domain.Quiz{ID: "quiz-3", Title: "Other", Author: "host-2"})

	list, err := docs.ListByAuthor(ctx, "host-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "quiz-2" || list[1].ID != "quiz-1" {
		t.Fatalf("expected newest first for host-1, got %+v", list)
	}

	rounds := []domain.Round{{UID: "r9", Title: "Finale", Order: 1}}
	if err := docs.SaveRounds(ctx, "quiz-2", "host-2", rounds); err != domain.ErrQuizNotFound {
		t.Fatalf("expected other authors to be rejected, got %v", err)
	}
	if err := docs.SaveRounds(ctx, "quiz-2", "host-1", rounds); err != nil {
		t.Fatalf("save rounds: %v", err)
	}
	rounds[0].Title = "mutated by caller"
	loaded, _ := docs.LoadQuiz(ctx, "quiz-2")
	if len(loaded.Rounds) != 1 || loaded.Rounds[0].Title != "Finale" {
		t.Fatalf("unexpected stored rounds %+v", loaded.Rounds)
	}

	if err := docs.Delete(ctx, "quiz-2", "host-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := docs.LoadQuiz(ctx, "quiz-2"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected deleted quiz to be gone, got %v", err)
	}
}
