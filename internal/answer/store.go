package answer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/victornm/einterview/internal/domain"
	"github.com/victornm/einterview/internal/errors"
	"github.com/victornm/einterview/internal/telemetry"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Config struct {
	DB DB
}

// Store is the append-only log of confirmed answers.
type Store struct {
	db DB
}

func NewStore(c Config) *Store {
	return &Store{db: c.DB}
}

// Save writes rec and returns its id. The creation time is assigned by the database.
func (s *Store) Save(ctx context.Context, rec domain.AnswerRecord) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Persistence(fmt.Errorf("generate answer ID: %w", err))
	}

	const stmt = `
INSERT INTO user_answers (answer_id, interview_id, question, correct_answer, user_answer, feedback, rating, user_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING create_time;`

	err = s.db.QueryRow(ctx, stmt,
		id, rec.InterviewID, rec.Question, rec.ModelAnswer, rec.UserAnswer, rec.Feedback, rec.Rating, rec.UserID,
	).Scan(&rec.CreateTime)
	if err != nil {
		telemetry.AnswersSaved.WithLabelValues("error").Inc()
		slog.ErrorContext(ctx, "answer: save failed",
			"interview_id", rec.InterviewID,
			"user_id", rec.UserID,
			"error", err,
		)
		return "", errors.Persistence(fmt.Errorf("insert answer: %w", err))
	}

	telemetry.AnswersSaved.WithLabelValues("ok").Inc()
	return id.String(), nil
}

type ListAnswersRequest struct {
	InterviewID string
	UserID      string
}

// ListAnswers returns the saved answers of an interview in the order they were confirmed.
func (s *Store) ListAnswers(ctx context.Context, req ListAnswersRequest) ([]domain.AnswerRecord, error) {
	const stmt = `
SELECT answer_id, interview_id, question, correct_answer, user_answer, feedback, rating, user_id, create_time
FROM user_answers
WHERE interview_id = $1 AND user_id = $2
ORDER BY create_time, answer_id;`

	rows, err := s.db.Query(ctx, stmt, req.InterviewID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.AnswerRecord, error) {
		var (
			rec domain.AnswerRecord
			id  uuid.UUID
		)
		if err := r.Scan(&id, &rec.InterviewID, &rec.Question, &rec.ModelAnswer, &rec.UserAnswer,
			&rec.Feedback, &rec.Rating, &rec.UserID, &rec.CreateTime); err != nil {
			return domain.AnswerRecord{}, err
		}
		rec.RecordID = id.String()
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	return records, nil
}
