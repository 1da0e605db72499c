package progress

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/victornm/einterview/internal/domain"
	"github.com/victornm/einterview/internal/errors"
	"github.com/victornm/einterview/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	progressTTL     = 7 * 24 * time.Hour
	averagePlaces   = 1
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service keeps the rating of every saved answer per interview and user.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameAnswerSaved, func(ctx context.Context, e event.Event) error {
		return s.RecordAnswer(ctx, e.(domain.EventAnswerSaved))
	})

	return s
}

type GetProgressRequest struct {
	InterviewID string
	UserID      string
}

// GetProgress returns the ratings collected so far, by question, and their average.
func (s *Service) GetProgress(ctx context.Context, req GetProgressRequest) (*domain.Progress, error) {
	res, err := s.redis.ZRangeWithScores(ctx, s.getRatingsKey(req.InterviewID, req.UserID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("progress not found: interview=%s user=%s", req.InterviewID, req.UserID))
	}

	p := &domain.Progress{
		InterviewID: req.InterviewID,
		UserID:      req.UserID,
		Entries:     make([]domain.ProgressEntry, 0, len(res)),
	}

	sum := decimal.Zero
	for _, z := range res {
		idx, err := strconv.Atoi(z.Member.(string))
		if err != nil {
			return nil, fmt.Errorf("get progress: bad member %v: %w", z.Member, err)
		}

		rating := decimal.NewFromFloat(z.Score)
		sum = sum.Add(rating)
		p.Entries = append(p.Entries, domain.ProgressEntry{
			QuestionIndex: idx,
			Rating:        int(rating.IntPart()),
		})
	}

	slices.SortFunc(p.Entries, func(a, b domain.ProgressEntry) int {
		return cmp.Compare(a.QuestionIndex, b.QuestionIndex)
	})
	p.Average = sum.Div(decimal.NewFromInt(int64(len(p.Entries)))).Round(averagePlaces)
	return p, nil
}

// RecordAnswer stores the rating of a saved answer. A re-saved question overwrites its rating.
func (s *Service) RecordAnswer(ctx context.Context, e domain.EventAnswerSaved) error {
	rec := e.Record
	key := s.getRatingsKey(rec.InterviewID, rec.UserID)

	pipe := s.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(rec.Rating),
		Member: strconv.Itoa(e.QuestionIndex),
	})
	pipe.Expire(ctx, key, progressTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}

	return s.schedulePublishProgress(ctx, rec.InterviewID, rec.UserID)
}

// schedulePublishProgress publishes at most one progress update per interval and user.
func (s *Service) schedulePublishProgress(ctx context.Context, interviewID, userID string) error {
	ok, err := s.redis.SetNX(ctx, s.getPublishKey(interviewID, userID), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	p, err := s.GetProgress(ctx, GetProgressRequest{InterviewID: interviewID, UserID: userID})
	if err != nil {
		return fmt.Errorf("get progress failed: interview=%s: %w", interviewID, err)
	}

	s.eb.Publish(ctx, domain.EventProgressUpdated{
		Progress: *p,
	})
	return nil
}

func (s *Service) getRatingsKey(interviewID, userID string) string {
	return fmt.Sprintf("%s:%s:%s:ratings", s.prefix, interviewID, userID)
}

func (s *Service) getPublishKey(interviewID, userID string) string {
	return fmt.Sprintf("%s:%s:%s:time", s.prefix, interviewID, userID)
}
