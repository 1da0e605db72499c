package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/victornm/einterview/internal/domain"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	AnswerScored struct {
		InterviewID   string `json:"interview_id"`
		QuestionIndex int    `json:"question_index"`
		Result        Result `json:"result"`
	}

	ScoringFailed struct {
		InterviewID   string `json:"interview_id"`
		QuestionIndex int    `json:"question_index"`
		Message       string `json:"message"`
	}

	InterviewCompleted struct {
		InterviewID string `json:"interview_id"`
		Redirect    string `json:"redirect"`
	}
)

func (a *API) PublishAnswerScored(ctx context.Context, e domain.EventAnswerScored) error {
	return a.publishNotification(ctx, e.UserID, e.Name(), AnswerScored{
		InterviewID:   e.InterviewID,
		QuestionIndex: e.QuestionIndex,
		Result:        Result{Rating: e.Result.Rating, Feedback: e.Result.Feedback},
	})
}

func (a *API) PublishScoringFailed(ctx context.Context, e domain.EventAnswerScoringFailed) error {
	return a.publishNotification(ctx, e.UserID, e.Name(), ScoringFailed{
		InterviewID:   e.InterviewID,
		QuestionIndex: e.QuestionIndex,
		Message:       e.Message,
	})
}

func (a *API) PublishInterviewCompleted(ctx context.Context, e domain.EventInterviewCompleted) error {
	return a.publishNotification(ctx, e.UserID, e.Name(), InterviewCompleted{
		InterviewID: e.InterviewID,
		Redirect:    e.Redirect,
	})
}

func (a *API) PublishProgressUpdated(ctx context.Context, e domain.EventProgressUpdated) error {
	return a.publishNotification(ctx, e.Progress.UserID, e.Name(), toProgress(e.Progress))
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, UserChannel(a.prefix, user), b).Err()
}

// UserChannel is the Redis channel a user's browser listens on.
func UserChannel(prefix, user string) string {
	return fmt.Sprintf("%s:user:%s", prefix, user)
}
