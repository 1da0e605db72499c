package interview

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/victornm/einterview/internal/domain"
	"github.com/victornm/einterview/internal/errors"
)

// DB is the subset of *pgxpool.Pool the service uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Config struct {
	DB   DB
	Bank *Bank
}

type Service struct {
	db   DB
	bank *Bank
}

func NewService(c Config) *Service {
	bank := c.Bank
	if bank == nil {
		bank = &Bank{}
	}

	return &Service{
		db:   c.DB,
		bank: bank,
	}
}

// CreateInterviewRequest represents a request to create a mock interview.
type CreateInterviewRequest struct {
	UserID string
	Title  string
	// Bank names a question set of the question bank. Ignored when Questions is set.
	Bank      string
	Questions []domain.Question
}

// CreateInterview stores a new interview with its ordered questions.
func (s *Service) CreateInterview(ctx context.Context, req CreateInterviewRequest) (*domain.Interview, error) {
	iv := &domain.Interview{
		Title:     req.Title,
		UserID:    req.UserID,
		Questions: req.Questions,
	}

	if len(iv.Questions) == 0 && req.Bank != "" {
		set, ok := s.bank.Get(req.Bank)
		if !ok {
			return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("question bank not found: %s", req.Bank))
		}
		iv.Questions = set.Questions
		if iv.Title == "" {
			iv.Title = set.Title
		}
	}

	if err := validateQuestions(iv.Questions); err != nil {
		return nil, err
	}

	if err := s.insertInterview(ctx, iv); err != nil {
		return nil, err
	}

	return iv, nil
}

func validateQuestions(qs []domain.Question) error {
	if len(qs) == 0 {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("an interview needs at least one question"))
	}

	for i, q := range qs {
		if strings.TrimSpace(q.Question) == "" {
			return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question #%d is empty", i+1))
		}
	}

	return nil
}

func (s *Service) insertInterview(ctx context.Context, iv *domain.Interview) (err error) {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate interview ID: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const insInterviewStmt = `INSERT INTO interviews (interview_id, user_id, title) VALUES ($1, $2, $3) RETURNING create_time;`

	if err = tx.QueryRow(ctx, insInterviewStmt, id, iv.UserID, iv.Title).Scan(&iv.CreateTime); err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}

	rows := make([][]any, 0, len(iv.Questions))
	for i, q := range iv.Questions {
		rows = append(rows, []any{id, i, q.Question, q.Answer})
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"interview_questions"},
		[]string{"interview_id", "position", "question", "answer"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	iv.InterviewID = id.String()
	return nil
}

type GetInterviewRequest struct {
	InterviewID string
	// UserID is the caller. An interview owned by someone else is reported as not found.
	UserID string
}

// GetInterview returns an interview of the caller and its questions in order.
func (s *Service) GetInterview(ctx context.Context, req GetInterviewRequest) (*domain.Interview, error) {
	if _, err := uuid.Parse(req.InterviewID); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid interview id: %s", req.InterviewID))
	}

	const stmt = `
SELECT i.interview_id, i.user_id, i.title, i.create_time, q.question, q.answer
FROM interviews i
JOIN interview_questions q ON q.interview_id = i.interview_id
WHERE i.interview_id = $1
ORDER BY q.position;`

	rows, err := s.db.Query(ctx, stmt, req.InterviewID)
	if err != nil {
		return nil, fmt.Errorf("get interview: %w", err)
	}
	defer rows.Close()

	var iv *domain.Interview
	for rows.Next() {
		var (
			id uuid.UUID
			h  domain.Interview
			q  domain.Question
		)
		if err := rows.Scan(&id, &h.UserID, &h.Title, &h.CreateTime, &q.Question, &q.Answer); err != nil {
			return nil, fmt.Errorf("get interview: scan: %w", err)
		}

		if iv == nil {
			h.InterviewID = id.String()
			iv = &h
		}
		iv.Questions = append(iv.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get interview: %w", err)
	}

	if iv == nil || iv.UserID != req.UserID {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("interview not found: %s", req.InterviewID))
	}

	return iv, nil
}

// Questions implements the question source of answer sessions.
func (s *Service) Questions(ctx context.Context, interviewID, userID string) ([]domain.Question, error) {
	iv, err := s.GetInterview(ctx, GetInterviewRequest{InterviewID: interviewID, UserID: userID})
	if err != nil {
		return nil, err
	}
	return iv.Questions, nil
}
