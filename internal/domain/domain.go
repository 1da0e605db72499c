package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Question is one interview question with its model answer.
type Question struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// Interview is an ordered set of questions practiced by one user.
type Interview struct {
	InterviewID string
	Title       string
	UserID      string
	Questions   []Question
	CreateTime  time.Time
}

// ScoringResult is the AI's verdict on one captured answer.
type ScoringResult struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

// AnswerRecord is a confirmed, scored answer. Records are write-once.
type AnswerRecord struct {
	RecordID    string
	InterviewID string
	Question    string
	ModelAnswer string
	UserAnswer  string
	Feedback    string
	Rating      int
	UserID      string
	CreateTime  time.Time
}

// Progress summarizes the ratings a user collected in an interview.
type Progress struct {
	InterviewID string
	UserID      string
	Entries     []ProgressEntry
	Average     decimal.Decimal
}

type ProgressEntry struct {
	QuestionIndex int
	Rating        int
}
