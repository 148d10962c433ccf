package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"trivia-live/internal/domain"
)

// quizData is the JSONB payload of a quiz row.
type quizData struct {
	Rounds []domain.Round `json:"rounds"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID        string    `bun:"id,pk"`
	Title     string    `bun:"title,notnull"`
	Author    string    `bun:"author,notnull"`
	Data      quizData  `bun:"data,type:jsonb,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (r quizRow) quiz() domain.Quiz {
	rounds := r.Data.Rounds
	if rounds == nil {
		rounds = []domain.Round{}
	}
	return domain.Quiz{ID: r.ID, Title: r.Title, Author: r.Author, CreatedAt: r.CreatedAt, Rounds: rounds}
}

// QuizDocuments is the editor-side quiz collection on bun.
type QuizDocuments struct {
	db *bun.DB
}

func NewQuizDocuments(db *bun.DB) *QuizDocuments {
	return &QuizDocuments{db: db}
}

func (d *QuizDocuments) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	row := new(quizRow)
	err := d.db.NewSelect().Model(row).Where("id = ?", quizID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("select quiz: %w", err)
	}
	return row.quiz(), nil
}

// ListByAuthor returns an author's quizzes, newest first.
func (d *QuizDocuments) ListByAuthor(ctx context.Context, author string) ([]domain.Quiz, error) {
	var rows []quizRow
	err := d.db.NewSelect().Model(&rows).
		Where("author = ?", author).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	out := make([]domain.Quiz, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.quiz())
	}
	return out, nil
}

func (d *QuizDocuments) Create(ctx context.Context, quiz domain.Quiz) error {
	row := &quizRow{
		ID:        quiz.ID,
		Title:     quiz.Title,
		Author:    quiz.Author,
		Data:      quizData{Rounds: quiz.Rounds},
		CreatedAt: quiz.CreatedAt,
	}
	if _, err := d.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (d *QuizDocuments) SaveRounds(ctx context.Context, quizID, author string, rounds []domain.Round) error {
	raw, err := json.Marshal(quizData{Rounds: rounds})
	if err != nil {
		return fmt.Errorf("encode rounds: %w", err)
	}
	res, err := d.db.NewUpdate().
		Model((*quizRow)(nil)).
		Set("data = ?::jsonb", string(raw)).
		Where("id = ? AND author = ?", quizID, author).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	return requireRow(res)
}

func (d *QuizDocuments) Delete(ctx context.Context, quizID, author string) error {
	res, err := d.db.NewDelete().
		Model((*quizRow)(nil)).
		Where("id = ? AND author = ?", quizID, author).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}
