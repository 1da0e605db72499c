package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/victornm/einterview/internal/transcript"
)

// Message is the JSON payload of a fragment published on NATS.
type Message struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// NATS receives fragments published by an external recognizer on a per-session subject.
type NATS struct {
	conn    *nats.Conn
	subject string

	mu  sync.Mutex
	sub *nats.Subscription
	ch  chan transcript.Fragment
}

func NewNATS(conn *nats.Conn, subject string) *NATS {
	return &NATS{conn: conn, subject: subject}
}

// Subject returns the subject a session's fragments are published on.
func Subject(prefix, interviewID, userID string) string {
	clean := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return fmt.Sprintf("%s.%s.%s", prefix, clean.Replace(interviewID), clean.Replace(userID))
}

func (n *NATS) Start(ctx context.Context) (<-chan transcript.Fragment, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch != nil {
		return nil, ErrAlreadyStarted
	}

	ch := make(chan transcript.Fragment, fragmentBuffer)
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.deliver(ctx, ch, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("speech: subscribe %s: %w", n.subject, err)
	}

	// Make sure the server knows about the subscription before fragments are published.
	if err := n.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("speech: flush %s: %w", n.subject, err)
	}

	n.sub, n.ch = sub, ch
	return ch, nil
}

func (n *NATS) deliver(ctx context.Context, ch chan transcript.Fragment, msg *nats.Msg) {
	f := decodeFragment(ctx, msg.Data)

	n.mu.Lock()
	defer n.mu.Unlock()

	// Stopped, or a newer cycle owns the subject.
	if n.ch != ch {
		return
	}

	ch <- f
}

func decodeFragment(ctx context.Context, data []byte) transcript.Fragment {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		slog.WarnContext(ctx, "speech: undecodable fragment", "error", err)
		return transcript.Status(string(data))
	}

	return transcript.Fragment{
		Kind: transcript.ParseKind(m.Kind),
		Text: m.Text,
	}
}

func (n *NATS) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch == nil {
		return nil
	}

	err := n.sub.Unsubscribe()
	close(n.ch)
	n.sub, n.ch = nil, nil

	if err != nil {
		return fmt.Errorf("speech: unsubscribe %s: %w", n.subject, err)
	}
	return nil
}

// NewNATSFactory returns a Factory of NATS recognizers sharing conn.
func NewNATSFactory(conn *nats.Conn, prefix string) Factory {
	return func(interviewID, userID string) (Recognizer, error) {
		if conn == nil {
			return nil, fmt.Errorf("speech: no NATS connection")
		}
		return NewNATS(conn, Subject(prefix, interviewID, userID)), nil
	}
}
