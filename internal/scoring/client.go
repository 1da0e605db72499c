package scoring

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/victornm/einterview/internal/domain"
	"github.com/victornm/einterview/internal/errors"
	"github.com/victornm/einterview/internal/genai"
	"github.com/victornm/einterview/internal/telemetry"
)

const (
	// MinAnswerLength is the shortest transcript, in characters, worth scoring.
	MinAnswerLength = 10

	minRating = 1
	maxRating = 10
)

const promptTemplate = `
Question: %q
User Answer: %q
Correct Answer: %q
Please provide a rating (from 1 to 10) for the user's answer and offer constructive feedback for improvement.
Return the result in JSON format with exactly two fields: "rating" (an integer from 1 to 10) and "feedback" (a string).
`

var fence = regexp.MustCompile("```json|```")

// ValidateAnswer rejects answers too short to be scored.
func ValidateAnswer(answer string) error {
	if utf8.RuneCountInString(answer) < MinAnswerLength {
		return errors.Validation("Your answer is too short. Please provide more detail.")
	}
	return nil
}

type Config struct {
	Generator genai.Generator
}

// Client asks a text-generation service to rate a candidate's answer.
type Client struct {
	gen genai.Generator
}

func NewClient(c Config) *Client {
	return &Client{gen: c.Generator}
}

// Score rates candidateAnswer against the model answer of question.
//
// A generator failure is returned as a Service error, an unusable reply as a Parse error.
func (c *Client) Score(ctx context.Context, question, modelAnswer, candidateAnswer string) (domain.ScoringResult, error) {
	if err := ValidateAnswer(candidateAnswer); err != nil {
		return domain.ScoringResult{}, err
	}

	start := time.Now()
	reply, err := c.gen.SendMessage(ctx, BuildPrompt(question, modelAnswer, candidateAnswer))
	telemetry.ScoringDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.ScoringRequests.WithLabelValues("service_error").Inc()
		return domain.ScoringResult{}, errors.Service(err)
	}

	res, err := ParseReply(reply)
	if err != nil {
		telemetry.ScoringRequests.WithLabelValues("parse_error").Inc()
		return domain.ScoringResult{}, err
	}

	telemetry.ScoringRequests.WithLabelValues("ok").Inc()
	return res, nil
}

func BuildPrompt(question, modelAnswer, candidateAnswer string) string {
	return fmt.Sprintf(promptTemplate, question, candidateAnswer, modelAnswer)
}

// StripFences removes markdown code-fence markers around a reply.
func StripFences(reply string) string {
	return strings.TrimSpace(fence.ReplaceAllString(reply, ""))
}

type reply struct {
	Rating   *json.Number `json:"rating"`
	Feedback *string      `json:"feedback"`
}

// ParseReply decodes a model reply into a ScoringResult.
func ParseReply(raw string) (domain.ScoringResult, error) {
	dec := json.NewDecoder(strings.NewReader(StripFences(raw)))
	dec.UseNumber()

	var r reply
	if err := dec.Decode(&r); err != nil {
		return domain.ScoringResult{}, errors.Parse(fmt.Errorf("decode reply: %w", err))
	}

	// The reply must be exactly one JSON object.
	if _, err := dec.Token(); !stderrors.Is(err, io.EOF) {
		return domain.ScoringResult{}, errors.Parse(fmt.Errorf("reply has content after the JSON object"))
	}

	if r.Rating == nil || r.Feedback == nil {
		return domain.ScoringResult{}, errors.Parse(fmt.Errorf("reply misses rating or feedback"))
	}

	rating, err := parseRating(*r.Rating)
	if err != nil {
		return domain.ScoringResult{}, errors.Parse(err)
	}

	return domain.ScoringResult{
		Rating:   rating,
		Feedback: strings.TrimSpace(*r.Feedback),
	}, nil
}

func parseRating(n json.Number) (int, error) {
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("rating %q: %w", n, err)
	}

	if f != math.Trunc(f) || f < minRating || f > maxRating {
		return 0, fmt.Errorf("rating %s is not an integer in [%d, %d]", n, minRating, maxRating)
	}

	return int(f), nil
}
