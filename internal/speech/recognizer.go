package speech

import (
	"context"
	"errors"

	"github.com/victornm/einterview/internal/transcript"
)

const fragmentBuffer = 64

var (
	ErrNotStarted     = errors.New("speech: recognizer not started")
	ErrAlreadyStarted = errors.New("speech: recognizer already started")
)

// Recognizer abstracts a speech-recognition engine for one session.
//
// Start begins a capture cycle and returns the fragments of that cycle in arrival order.
// Stop ends the cycle; the returned channel is closed once every fragment received before
// Stop has been delivered. A recognizer can be started again after Stop.
type Recognizer interface {
	Start(ctx context.Context) (<-chan transcript.Fragment, error)
	Stop() error
}

// Pusher is implemented by recognizers whose fragments are delivered by the caller.
type Pusher interface {
	Push(ctx context.Context, fragments ...transcript.Fragment) error
}

// Factory creates the recognizer of one interview session.
type Factory func(interviewID, userID string) (Recognizer, error)
