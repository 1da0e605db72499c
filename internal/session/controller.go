package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/victornm/einterview/internal/domain"
	"github.com/victornm/einterview/internal/errors"
	"github.com/victornm/einterview/internal/scoring"
	"github.com/victornm/einterview/internal/speech"
	"github.com/victornm/einterview/internal/telemetry"
	"github.com/victornm/einterview/internal/transcript"
)

// State is a step of the answer workflow of the active question.
type State uint8

const (
	StateIdle State = iota
	StateCapturing
	StateScoring
	StateReviewing
	StatePersisting
	StateCompleted
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateCapturing:  "capturing",
	StateScoring:    "scoring",
	StateReviewing:  "reviewing",
	StatePersisting: "persisting",
	StateCompleted:  "completed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Scorer interface {
	Score(ctx context.Context, question, modelAnswer, candidateAnswer string) (domain.ScoringResult, error)
}

type Gateway interface {
	Save(ctx context.Context, rec domain.AnswerRecord) (string, error)
}

// Navigator leaves the workflow once the last answer is saved.
type Navigator interface {
	Navigate(ctx context.Context, interviewID, userID string)
}

type ControllerConfig struct {
	InterviewID string
	UserID      string
	Questions   []domain.Question
	Recognizer  speech.Recognizer
	Scorer      Scorer
	Gateway     Gateway
	Navigator   Navigator
}

// Controller drives one user's answers through an interview, one question at a time.
//
// Intents are serialized by mu; the lock is never held across a call to the recognizer,
// the scorer or the gateway.
type Controller struct {
	interviewID string
	userID      string
	questions   []domain.Question
	rec         speech.Recognizer
	scorer      Scorer
	gateway     Gateway
	nav         Navigator

	mu     sync.Mutex
	state  State
	index  int
	cycle  uint64
	acc    *transcript.Accumulator
	result *domain.ScoringResult
	webcam bool

	// drained is closed when the fragment consumer of the current capture exits.
	drained chan struct{}
	// cancelScoring aborts the scoring call of the current cycle.
	cancelScoring context.CancelFunc
}

func NewController(c ControllerConfig) (*Controller, error) {
	if len(c.Questions) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("interview %s has no questions", c.InterviewID))
	}

	return &Controller{
		interviewID: c.InterviewID,
		userID:      c.UserID,
		questions:   c.Questions,
		rec:         c.Recognizer,
		scorer:      c.Scorer,
		gateway:     c.Gateway,
		nav:         c.Navigator,
		acc:         transcript.NewAccumulator(),
	}, nil
}

// View is a snapshot of the controller for rendering.
type View struct {
	InterviewID   string
	State         State
	QuestionIndex int
	QuestionCount int
	Question      domain.Question
	Transcript    string
	Result        *domain.ScoringResult
	Webcam        bool
	CanRecord     bool
	CanConfirm    bool
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		InterviewID:   c.interviewID,
		State:         c.state,
		QuestionIndex: c.index,
		QuestionCount: len(c.questions),
		Question:      c.questions[c.index],
		Transcript:    c.acc.Text(),
		Webcam:        c.webcam,
		CanRecord:     c.canStart() || c.state == StateCapturing,
		CanConfirm:    c.state == StateReviewing && c.result != nil,
	}
	if c.result != nil {
		r := *c.result
		v.Result = &r
	}
	return v
}

func (c *Controller) canStart() bool {
	switch c.state {
	case StateIdle, StateReviewing, StateScoring:
		return true
	default:
		return false
	}
}

func (c *Controller) setState(s State) {
	telemetry.Transitions.WithLabelValues(c.state.String(), s.String()).Inc()
	c.state = s
}

func (c *Controller) illegal(intent string) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("cannot %s while %s", intent, c.state))
}

// StartCapture begins a new capture cycle for the active question.
//
// Re-recording from Reviewing drops the previous result; re-recording from Scoring also
// cancels the scoring call, whose late result is then discarded.
func (c *Controller) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.canStart() {
		return c.illegal("start recording")
	}

	frags, err := c.rec.Start(context.WithoutCancel(ctx))
	if err != nil {
		return errors.Service(fmt.Errorf("start recognizer: %w", err))
	}

	if c.cancelScoring != nil {
		c.cancelScoring()
		c.cancelScoring = nil
	}

	c.cycle++
	c.acc = transcript.NewAccumulator()
	c.result = nil
	c.drained = make(chan struct{})
	c.setState(StateCapturing)

	go c.consume(c.cycle, c.acc, frags, c.drained)

	slog.InfoContext(ctx, "session: capture started",
		"interview_id", c.interviewID,
		"question_index", c.index,
		"cycle", c.cycle,
	)
	return nil
}

func (c *Controller) consume(cycle uint64, acc *transcript.Accumulator, frags <-chan transcript.Fragment, drained chan<- struct{}) {
	defer close(drained)

	for f := range frags {
		telemetry.FragmentsReceived.WithLabelValues(f.Kind.String()).Inc()

		c.mu.Lock()
		if c.cycle == cycle {
			acc.Add(f)
		}
		c.mu.Unlock()
	}
}

// StopCapture ends the capture cycle and scores the transcript.
//
// A transcript shorter than scoring.MinAnswerLength returns to Idle with a validation error
// and is never scored. A scoring failure returns to Idle with the transcript kept.
func (c *Controller) StopCapture(ctx context.Context) (domain.ScoringResult, error) {
	c.mu.Lock()
	if c.state != StateCapturing {
		defer c.mu.Unlock()
		return domain.ScoringResult{}, c.illegal("stop recording")
	}
	cycle, drained := c.cycle, c.drained
	c.mu.Unlock()

	if err := c.rec.Stop(); err != nil {
		slog.WarnContext(ctx, "session: stop recognizer failed", "interview_id", c.interviewID, "error", err)
	}

	select {
	case <-drained:
	case <-ctx.Done():
		// Still Capturing with the recognizer stopped; a later stop finishes the drain.
		return domain.ScoringResult{}, errors.New(errors.CodeAborted,
			errors.WithMessagef("stopped waiting for the transcript"), errors.WithCause(ctx.Err()))
	}

	c.mu.Lock()
	if c.cycle != cycle {
		defer c.mu.Unlock()
		return domain.ScoringResult{}, errStale()
	}
	if c.state != StateCapturing {
		defer c.mu.Unlock()
		return domain.ScoringResult{}, c.illegal("stop recording")
	}

	answer := c.acc.Text()
	if err := scoring.ValidateAnswer(answer); err != nil {
		c.setState(StateIdle)
		c.mu.Unlock()
		return domain.ScoringResult{}, err
	}

	q := c.questions[c.index]
	sctx, cancel := context.WithCancel(ctx)
	c.cancelScoring = cancel
	c.setState(StateScoring)
	c.mu.Unlock()

	res, err := c.scorer.Score(sctx, q.Question, q.Answer, answer)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cycle != cycle {
		slog.InfoContext(ctx, "session: discarding stale scoring result",
			"interview_id", c.interviewID,
			"cycle", cycle,
		)
		return domain.ScoringResult{}, errStale()
	}
	c.cancelScoring = nil

	if err != nil {
		c.result = nil
		c.setState(StateIdle)
		slog.WarnContext(ctx, "session: scoring failed",
			"interview_id", c.interviewID,
			"question_index", c.index,
			"error", err,
		)
		return domain.ScoringResult{}, err
	}

	c.result = &res
	c.setState(StateReviewing)
	return res, nil
}

func errStale() error {
	return errors.New(errors.CodeAborted, errors.WithMessagef("a newer recording replaced this answer"))
}

// Outcome describes what a confirmed save led to.
type Outcome struct {
	RecordID      string
	QuestionIndex int
	NextIndex     int
	Completed     bool
	Record        domain.AnswerRecord
}

// Confirm persists the scored answer of the active question and advances.
//
// Without a scoring result it does nothing and returns a FailedPrecondition error. A failed
// write returns to Reviewing with nothing cleared.
func (c *Controller) Confirm(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.state != StateReviewing || c.result == nil {
		defer c.mu.Unlock()
		return Outcome{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("there is no scored answer to save"))
	}

	q, idx := c.questions[c.index], c.index
	rec := domain.AnswerRecord{
		InterviewID: c.interviewID,
		Question:    q.Question,
		ModelAnswer: q.Answer,
		UserAnswer:  c.acc.Text(),
		Feedback:    c.result.Feedback,
		Rating:      c.result.Rating,
		UserID:      c.userID,
	}
	c.setState(StatePersisting)
	c.mu.Unlock()

	id, err := c.gateway.Save(ctx, rec)

	c.mu.Lock()
	if err != nil {
		c.setState(StateReviewing)
		c.mu.Unlock()
		return Outcome{}, err
	}
	rec.RecordID = id

	c.cycle++
	c.acc = transcript.NewAccumulator()
	c.result = nil

	out := Outcome{RecordID: id, QuestionIndex: idx, Record: rec}
	if idx < len(c.questions)-1 {
		c.index++
		c.setState(StateIdle)
		out.NextIndex = c.index
		c.mu.Unlock()
		return out, nil
	}

	c.setState(StateCompleted)
	out.Completed = true
	out.NextIndex = idx
	c.mu.Unlock()

	slog.InfoContext(ctx, "session: interview completed", "interview_id", c.interviewID, "user_id", c.userID)
	if c.nav != nil {
		c.nav.Navigate(ctx, c.interviewID, c.userID)
	}
	return out, nil
}

// ToggleWebcam flips the webcam preview flag and returns the new value.
func (c *Controller) ToggleWebcam() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.webcam = !c.webcam
	return c.webcam
}

func (c *Controller) SetWebcam(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.webcam = on
}

// Close releases the recognizer of a live capture and cancels pending scoring.
func (c *Controller) Close() error {
	c.mu.Lock()
	capturing := c.state == StateCapturing
	if c.cancelScoring != nil {
		c.cancelScoring()
		c.cancelScoring = nil
	}
	c.cycle++
	c.mu.Unlock()

	if capturing {
		return c.rec.Stop()
	}
	return nil
}

// Recognizer returns the recognizer the controller captures from.
func (c *Controller) Recognizer() speech.Recognizer {
	return c.rec
}
