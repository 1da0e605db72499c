package speech

import (
	"context"
	"sync"

	"github.com/victornm/einterview/internal/transcript"
)

// Push is a recognizer fed by the client: the browser runs recognition and posts fragments.
type Push struct {
	mu sync.Mutex
	ch chan transcript.Fragment
}

func NewPush() *Push {
	return &Push{}
}

func (p *Push) Start(_ context.Context) (<-chan transcript.Fragment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		return nil, ErrAlreadyStarted
	}

	p.ch = make(chan transcript.Fragment, fragmentBuffer)
	return p.ch, nil
}

// Push delivers fragments to the running cycle. It blocks while the buffer is full.
func (p *Push) Push(ctx context.Context, fragments ...transcript.Fragment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return ErrNotStarted
	}

	for _, f := range fragments {
		select {
		case p.ch <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (p *Push) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return nil
	}

	close(p.ch)
	p.ch = nil
	return nil
}

// NewPushFactory returns a Factory of push recognizers.
func NewPushFactory() Factory {
	return func(_, _ string) (Recognizer, error) {
		return NewPush(), nil
	}
}
