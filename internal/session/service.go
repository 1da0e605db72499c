package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/victornm/einterview/internal/domain"
	"github.com/victornm/einterview/internal/errors"
	"github.com/victornm/einterview/internal/event"
	"github.com/victornm/einterview/internal/speech"
	"github.com/victornm/einterview/internal/telemetry"
	"github.com/victornm/einterview/internal/transcript"
)

// QuestionSource loads the ordered questions of an interview owned by userID.
type QuestionSource interface {
	Questions(ctx context.Context, interviewID, userID string) ([]domain.Question, error)
}

type Config struct {
	EventBus    *event.Bus
	Questions   QuestionSource
	Scorer      Scorer
	Gateway     Gateway
	Recognizers speech.Factory
	Navigator   Navigator
}

// Key identifies the answer session of one user in one interview.
type Key struct {
	InterviewID string
	UserID      string
}

// Service keeps the open answer sessions and relays their outcomes on the event bus.
type Service struct {
	eb          *event.Bus
	questions   QuestionSource
	scorer      Scorer
	gateway     Gateway
	recognizers speech.Factory
	nav         Navigator

	mu       sync.Mutex
	sessions map[Key]*Controller

	// completed holds the interviews each user has finished; they cannot be reopened.
	completed map[Key]struct{}
}

func NewService(c Config) *Service {
	nav := c.Navigator
	if nav == nil {
		nav = NewEventNavigator(c.EventBus, DefaultFeedbackPath)
	}

	return &Service{
		eb:          c.EventBus,
		questions:   c.Questions,
		scorer:      c.Scorer,
		gateway:     c.Gateway,
		recognizers: c.Recognizers,
		nav:         nav,
		sessions:    make(map[Key]*Controller),
		completed:   make(map[Key]struct{}),
	}
}

// Open returns the session of k, creating it on first use. A completed interview is
// rejected with FailedPrecondition.
func (s *Service) Open(ctx context.Context, k Key) (*Controller, error) {
	if c, err := s.Get(k); err == nil {
		return c, nil
	}

	if s.isCompleted(k) {
		return nil, errCompleted(k)
	}

	qs, err := s.questions.Questions(ctx, k.InterviewID, k.UserID)
	if err != nil {
		return nil, err
	}

	rec, err := s.recognizers(k.InterviewID, k.UserID)
	if err != nil {
		return nil, errors.Service(fmt.Errorf("create recognizer: %w", err))
	}

	c, err := NewController(ControllerConfig{
		InterviewID: k.InterviewID,
		UserID:      k.UserID,
		Questions:   qs,
		Recognizer:  rec,
		Scorer:      s.scorer,
		Gateway:     s.gateway,
		Navigator:   s.nav,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Lost a race with a concurrent Open of the same session.
	if existing, ok := s.sessions[k]; ok {
		return existing, nil
	}
	if _, done := s.completed[k]; done {
		return nil, errCompleted(k)
	}

	s.sessions[k] = c
	telemetry.ActiveSessions.Inc()
	slog.InfoContext(ctx, "session: opened", "interview_id", k.InterviewID, "user_id", k.UserID, "questions", len(qs))
	return c, nil
}

// Get returns an open session.
func (s *Service) Get(k Key) (*Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sessions[k]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no open session: interview=%s user=%s", k.InterviewID, k.UserID))
	}
	return c, nil
}

// Close releases the session of k. Closing an unknown session is a no-op.
func (s *Service) Close(ctx context.Context, k Key) error {
	s.mu.Lock()
	c, ok := s.sessions[k]
	delete(s.sessions, k)
	s.mu.Unlock()

	if !ok {
		return nil
	}

	telemetry.ActiveSessions.Dec()
	if err := c.Close(); err != nil {
		slog.WarnContext(ctx, "session: release recognizer failed", "interview_id", k.InterviewID, "error", err)
	}
	return nil
}

// CloseAll releases every session, for shutdown.
func (s *Service) CloseAll(ctx context.Context) {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	for _, k := range keys {
		_ = s.Close(ctx, k)
	}
}

func (s *Service) StartCapture(ctx context.Context, k Key) (View, error) {
	c, err := s.Get(k)
	if err != nil {
		return View{}, err
	}

	if err := c.StartCapture(ctx); err != nil {
		return View{}, err
	}
	return c.View(), nil
}

// PushFragments feeds client-side recognition results into the live capture of k.
func (s *Service) PushFragments(ctx context.Context, k Key, fragments []transcript.Fragment) (View, error) {
	c, err := s.Get(k)
	if err != nil {
		return View{}, err
	}

	p, ok := c.Recognizer().(speech.Pusher)
	if !ok {
		return View{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("this session receives fragments from the speech bus"))
	}

	if err := p.Push(ctx, fragments...); err != nil {
		return View{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("not recording"), errors.WithCause(err))
	}
	return c.View(), nil
}

// StopCapture stops recording and scores the answer. Scoring outcomes are published.
func (s *Service) StopCapture(ctx context.Context, k Key) (View, error) {
	c, err := s.Get(k)
	if err != nil {
		return View{}, err
	}

	idx := c.View().QuestionIndex
	res, err := c.StopCapture(ctx)
	switch {
	case err == nil:
		s.eb.Publish(ctx, domain.EventAnswerScored{
			InterviewID:   k.InterviewID,
			UserID:        k.UserID,
			QuestionIndex: idx,
			Result:        res,
		})
	case errors.IsScoringFailure(err):
		s.eb.Publish(ctx, domain.EventAnswerScoringFailed{
			InterviewID:   k.InterviewID,
			UserID:        k.UserID,
			QuestionIndex: idx,
			Message:       errors.Convert(err).Message,
		})
	}

	return c.View(), err
}

// Confirm saves the scored answer. A completed session is released.
func (s *Service) Confirm(ctx context.Context, k Key) (Outcome, View, error) {
	c, err := s.Get(k)
	if err != nil {
		return Outcome{}, View{}, err
	}

	out, err := c.Confirm(ctx)
	if err != nil {
		return Outcome{}, c.View(), err
	}

	s.eb.Publish(ctx, domain.EventAnswerSaved{
		Record:        out.Record,
		QuestionIndex: out.QuestionIndex,
	})

	v := c.View()
	if out.Completed {
		s.mu.Lock()
		s.completed[k] = struct{}{}
		s.mu.Unlock()

		_ = s.Close(ctx, k)
	}
	return out, v, nil
}

func (s *Service) isCompleted(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.completed[k]
	return ok
}

func errCompleted(k Key) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("interview %s is already completed", k.InterviewID))
}

// SetWebcam toggles the webcam flag when on is nil, otherwise sets it.
func (s *Service) SetWebcam(k Key, on *bool) (View, error) {
	c, err := s.Get(k)
	if err != nil {
		return View{}, err
	}

	if on == nil {
		c.ToggleWebcam()
	} else {
		c.SetWebcam(*on)
	}
	return c.View(), nil
}
