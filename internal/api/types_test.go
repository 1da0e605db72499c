package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/einterview/internal/domain"
	"github.com/victornm/einterview/internal/session"
)

func TestModelAnswersAreNeverRendered(t *testing.T) {
	q := domain.Question{Question: "What is a goroutine?", Answer: "A lightweight thread."}

	tests := map[string]any{
		"interview": toInterview(&domain.Interview{
			InterviewID: "i1",
			UserID:      "u1",
			Questions:   []domain.Question{q},
		}),
		"session": toSession(session.View{
			InterviewID:   "i1",
			QuestionCount: 1,
			Question:      q,
		}),
	}

	for name, v := range tests {
		t.Run(name, func(t *testing.T) {
			b, err := json.Marshal(v)
			require.NoError(t, err)
			assert.Contains(t, string(b), q.Question)
			assert.NotContains(t, string(b), q.Answer)
			assert.NotContains(t, string(b), `"answer"`)
		})
	}
}
