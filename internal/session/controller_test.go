package session_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/einterview/internal/domain"
	"github.com/victornm/einterview/internal/errors"
	"github.com/victornm/einterview/internal/session"
	"github.com/victornm/einterview/internal/speech"
	"github.com/victornm/einterview/internal/transcript"
)

var questions = []domain.Question{
	{Question: "How would you find duplicates in a large list?", Answer: "Use a hash map."},
	{Question: "What does context.Context carry?", Answer: "Deadlines, cancellation and values."},
}

func TestController_AnswerNonLastQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, questions)

	require.NoError(t, f.c.StartCapture(ctx))
	require.NoError(t, f.rec.Push(ctx,
		transcript.Status("listening"),
		transcript.Final("I would use a hash map"),
		transcript.Fragment{Kind: transcript.KindPartial, Text: "for O"},
		transcript.Final("for O(1) lookups"),
	))

	res, err := f.c.StopCapture(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ScoringResult{Rating: 8, Feedback: "Good reasoning."}, res)

	v := f.c.View()
	assert.Equal(t, session.StateReviewing, v.State)
	assert.True(t, v.CanConfirm)
	assert.Equal(t, "I would use a hash map for O(1) lookups", v.Transcript)
	require.Len(t, f.scorer.calls(), 1)
	assert.Equal(t, scoreCall{
		question:    questions[0].Question,
		modelAnswer: questions[0].Answer,
		candidate:   "I would use a hash map for O(1) lookups",
	}, f.scorer.calls()[0])

	out, err := f.c.Confirm(ctx)
	require.NoError(t, err)
	assert.False(t, out.Completed)
	assert.Equal(t, 0, out.QuestionIndex)
	assert.Equal(t, 1, out.NextIndex)
	assert.Equal(t, "rec-1", out.RecordID)

	require.Len(t, f.gateway.saved, 1)
	assert.Equal(t, domain.AnswerRecord{
		InterviewID: "interview-1",
		Question:    questions[0].Question,
		ModelAnswer: questions[0].Answer,
		UserAnswer:  "I would use a hash map for O(1) lookups",
		Feedback:    "Good reasoning.",
		Rating:      8,
		UserID:      "user-1",
	}, f.gateway.saved[0])

	v = f.c.View()
	assert.Equal(t, session.StateIdle, v.State)
	assert.Equal(t, 1, v.QuestionIndex)
	assert.Equal(t, questions[1], v.Question)
	assert.Empty(t, v.Transcript)
	assert.Nil(t, v.Result)
	assert.Zero(t, f.nav.count())
}

func TestController_LastQuestionCompletesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, questions[:1])

	f.answer(t, "I would use a hash map for O(1) lookups")

	out, err := f.c.Confirm(ctx)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, session.StateCompleted, f.c.View().State)
	assert.Equal(t, 1, f.nav.count())
	assert.Equal(t, []string{"interview-1/user-1"}, f.nav.targets())

	_, err = f.c.Confirm(ctx)
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)

	err = f.c.StartCapture(ctx)
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)

	assert.Equal(t, 1, f.nav.count(), "navigation must be signalled exactly once")
	assert.Len(t, f.gateway.saved, 1)
}

func TestController_ConfirmWithoutResultIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, questions)

	_, err := f.c.Confirm(ctx)
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)

	require.NoError(t, f.c.StartCapture(ctx))
	require.NoError(t, f.rec.Push(ctx, transcript.Final("a long enough transcript without a score")))

	_, err = f.c.Confirm(ctx)
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
	assert.Equal(t, session.StateCapturing, f.c.View().State)
	assert.False(t, f.c.View().CanConfirm)
	assert.Empty(t, f.gateway.saved)
}

func TestController_ShortAnswerIsNotScored(t *testing.T) {
	tests := map[string][]transcript.Fragment{
		"two characters": {transcript.Final("ok")},
		"empty":          nil,
		"only noise":     {transcript.Status("no-speech"), transcript.Status("aborted")},
	}

	for name, fragments := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, questions)

			require.NoError(t, f.c.StartCapture(ctx))
			require.NoError(t, f.rec.Push(ctx, fragments...))

			_, err := f.c.StopCapture(ctx)
			require.Error(t, err)
			assert.Equal(t, errors.KindValidation, errors.KindOf(err))
			assert.Empty(t, f.scorer.calls(), "scorer must not be invoked")
			assert.Equal(t, session.StateIdle, f.c.View().State)
		})
	}
}

func TestController_ScoringFailureReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, questions)
	f.scorer.err = errors.Parse(stderrors.New("not json"))

	require.NoError(t, f.c.StartCapture(ctx))
	require.NoError(t, f.rec.Push(ctx, transcript.Final("I would use a hash map for O(1) lookups")))

	_, err := f.c.StopCapture(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsScoringFailure(err))

	v := f.c.View()
	assert.Equal(t, session.StateIdle, v.State)
	assert.Equal(t, "I would use a hash map for O(1) lookups", v.Transcript, "transcript is kept")
	assert.Nil(t, v.Result)
	assert.True(t, v.CanRecord)

	// the user retries by recording again
	f.scorer.err = nil
	f.answer(t, "I would use a hash map, then scan once")
	assert.Equal(t, session.StateReviewing, f.c.View().State)
	assert.Equal(t, "I would use a hash map, then scan once", f.c.View().Transcript)
}

func TestController_PersistenceFailureStaysInReviewing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, questions)
	f.answer(t, "I would use a hash map for O(1) lookups")

	f.gateway.err = errors.Persistence(stderrors.New("permission denied"))
	_, err := f.c.Confirm(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.KindPersistence, errors.KindOf(err))

	v := f.c.View()
	assert.Equal(t, session.StateReviewing, v.State)
	assert.Equal(t, 0, v.QuestionIndex)
	require.NotNil(t, v.Result)
	assert.Equal(t, 8, v.Result.Rating)
	assert.Equal(t, "I would use a hash map for O(1) lookups", v.Transcript)

	f.gateway.err = nil
	out, err := f.c.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.NextIndex)
}

func TestController_RerecordDiscardsResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, questions)
	f.answer(t, "I would use a hash map for O(1) lookups")

	require.NoError(t, f.c.StartCapture(ctx))
	v := f.c.View()
	assert.Equal(t, session.StateCapturing, v.State)
	assert.Nil(t, v.Result)
	assert.Empty(t, v.Transcript)
}

func TestController_RerecordDuringScoringDiscardsLateResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, questions)
	f.scorer.waitCancel = true

	require.NoError(t, f.c.StartCapture(ctx))
	require.NoError(t, f.rec.Push(ctx, transcript.Final("first attempt at the answer")))

	type result struct {
		res domain.ScoringResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := f.c.StopCapture(ctx)
		done <- result{res, err}
	}()

	require.Eventually(t, func() bool {
		return f.c.View().State == session.StateScoring
	}, time.Second, time.Millisecond)

	require.NoError(t, f.c.StartCapture(ctx))

	select {
	case r := <-done:
		require.Error(t, r.err)
		assert.Equal(t, errors.CodeAborted, errors.Convert(r.err).Code)
	case <-time.After(2 * time.Second):
		t.Fatal("scoring call was not cancelled")
	}

	v := f.c.View()
	assert.Equal(t, session.StateCapturing, v.State)
	assert.Nil(t, v.Result, "late result must not be applied")
	assert.Empty(t, v.Transcript)
}

func TestController_IllegalTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, questions)

	_, err := f.c.StopCapture(ctx)
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)

	require.NoError(t, f.c.StartCapture(ctx))
	err = f.c.StartCapture(ctx)
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
}

func TestController_WebcamIsSessionWide(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, questions)

	assert.True(t, f.c.ToggleWebcam())
	f.answer(t, "I would use a hash map for O(1) lookups")
	assert.True(t, f.c.View().Webcam)

	_, err := f.c.Confirm(ctx)
	require.NoError(t, err)
	assert.True(t, f.c.View().Webcam, "webcam flag survives question transitions")

	f.c.SetWebcam(false)
	assert.False(t, f.c.View().Webcam)
}

func TestController_CloseReleasesRecognizer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, questions)

	require.NoError(t, f.c.StartCapture(ctx))
	require.NoError(t, f.c.Close())

	require.ErrorIs(t, f.rec.Push(ctx, transcript.Final("late")), speech.ErrNotStarted)
}

func TestController_StopCaptureCancelledWhileDraining(t *testing.T) {
	rec := &stuckRecognizer{}
	scorer := &fakeScorer{result: domain.ScoringResult{Rating: 6, Feedback: "Fine."}}
	c, err := session.NewController(session.ControllerConfig{
		InterviewID: "interview-1",
		UserID:      "user-1",
		Questions:   questions,
		Recognizer:  rec,
		Scorer:      scorer,
		Gateway:     &fakeGateway{},
	})
	require.NoError(t, err)
	require.NoError(t, c.StartCapture(context.Background()))

	rec.ch <- transcript.Final("Use a hash map keyed by the element.")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.StopCapture(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.CodeAborted, errors.Convert(err).Code)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, session.StateCapturing, c.View().State)
	assert.Empty(t, scorer.calls())

	// The stream ends later; stopping again scores the full transcript.
	close(rec.ch)
	res, err := c.StopCapture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Rating)
	assert.Equal(t, session.StateReviewing, c.View().State)
	require.Len(t, scorer.calls(), 1)
	assert.Equal(t, "Use a hash map keyed by the element.", scorer.calls()[0].candidate)
}

func TestNewController_NoQuestions(t *testing.T) {
	_, err := session.NewController(session.ControllerConfig{InterviewID: "i1"})
	assert.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
}

type fixture struct {
	c       *session.Controller
	rec     *speech.Push
	scorer  *fakeScorer
	gateway *fakeGateway
	nav     *fakeNavigator
}

func newFixture(t *testing.T, qs []domain.Question) *fixture {
	t.Helper()

	f := &fixture{
		rec:     speech.NewPush(),
		scorer:  &fakeScorer{result: domain.ScoringResult{Rating: 8, Feedback: "Good reasoning."}},
		gateway: &fakeGateway{},
		nav:     &fakeNavigator{},
	}

	c, err := session.NewController(session.ControllerConfig{
		InterviewID: "interview-1",
		UserID:      "user-1",
		Questions:   qs,
		Recognizer:  f.rec,
		Scorer:      f.scorer,
		Gateway:     f.gateway,
		Navigator:   f.nav,
	})
	require.NoError(t, err)
	f.c = c

	return f
}

// answer records text for the active question and stops, leaving the controller in Reviewing.
func (f *fixture) answer(t *testing.T, text string) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, f.c.StartCapture(ctx))
	require.NoError(t, f.rec.Push(ctx, transcript.Final(text)))
	_, err := f.c.StopCapture(ctx)
	require.NoError(t, err)
}

type scoreCall struct {
	question, modelAnswer, candidate string
}

type fakeScorer struct {
	mu         sync.Mutex
	result     domain.ScoringResult
	err        error
	waitCancel bool
	received   []scoreCall
}

func (s *fakeScorer) Score(ctx context.Context, question, modelAnswer, candidate string) (domain.ScoringResult, error) {
	s.mu.Lock()
	s.received = append(s.received, scoreCall{question, modelAnswer, candidate})
	res, err, wait := s.result, s.err, s.waitCancel
	s.mu.Unlock()

	if wait {
		<-ctx.Done()
		// a late reply that ignores cancellation
		return domain.ScoringResult{Rating: 9, Feedback: "late"}, nil
	}
	return res, err
}

func (s *fakeScorer) calls() []scoreCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scoreCall(nil), s.received...)
}

type fakeGateway struct {
	err   error
	saved []domain.AnswerRecord
}

func (g *fakeGateway) Save(_ context.Context, rec domain.AnswerRecord) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.saved = append(g.saved, rec)
	return "rec-" + string(rune('0'+len(g.saved))), nil
}

type fakeNavigator struct {
	mu   sync.Mutex
	seen []string
}

func (n *fakeNavigator) Navigate(_ context.Context, interviewID, userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, interviewID+"/"+userID)
}

func (n *fakeNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seen)
}

func (n *fakeNavigator) targets() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.seen...)
}

// stuckRecognizer never ends its fragment stream on Stop; the test closes it.
type stuckRecognizer struct {
	ch chan transcript.Fragment
}

func (r *stuckRecognizer) Start(_ context.Context) (<-chan transcript.Fragment, error) {
	r.ch = make(chan transcript.Fragment, 8)
	return r.ch, nil
}

func (r *stuckRecognizer) Stop() error { return nil }
