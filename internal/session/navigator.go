package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/victornm/einterview/internal/domain"
	"github.com/victornm/einterview/internal/event"
)

// DefaultFeedbackPath is where a finished interview sends the user. %s is the interview ID.
const DefaultFeedbackPath = "/generate/feedback/%s"

// EventNavigator signals completion as an interview.completed event.
type EventNavigator struct {
	eb   *event.Bus
	path string
}

func NewEventNavigator(eb *event.Bus, path string) *EventNavigator {
	if path == "" || !strings.Contains(path, "%s") {
		path = DefaultFeedbackPath
	}
	return &EventNavigator{eb: eb, path: path}
}

func (n *EventNavigator) Redirect(interviewID string) string {
	return fmt.Sprintf(n.path, interviewID)
}

func (n *EventNavigator) Navigate(ctx context.Context, interviewID, userID string) {
	n.eb.Publish(ctx, domain.EventInterviewCompleted{
		InterviewID: interviewID,
		UserID:      userID,
		Redirect:    n.Redirect(interviewID),
	})
}
