package api

import (
	"time"

	"github.com/victornm/einterview/internal/domain"
	"github.com/victornm/einterview/internal/session"
	"github.com/victornm/einterview/internal/transcript"
)

type (
	Question struct {
		Question string `json:"question" binding:"required"`
		// Answer is the model answer. It is accepted on create and never sent back.
		Answer string `json:"answer,omitempty"`
	}

	CreateInterviewRequest struct {
		Title     string     `json:"title"`
		Bank      string     `json:"bank"`
		Questions []Question `json:"questions" binding:"omitempty,dive"`
	}

	Interview struct {
		InterviewID string     `json:"interview_id"`
		Title       string     `json:"title"`
		UserID      string     `json:"user_id"`
		Questions   []Question `json:"questions"`
		CreateTime  time.Time  `json:"create_time"`
	}

	Fragment struct {
		Kind string `json:"kind" binding:"required"`
		Text string `json:"text"`
	}

	PushFragmentsRequest struct {
		Fragments []Fragment `json:"fragments" binding:"required,dive"`
	}

	SetWebcamRequest struct {
		// Enabled sets the flag; when omitted the flag is toggled.
		Enabled *bool `json:"enabled"`
	}

	Result struct {
		Rating   int    `json:"rating"`
		Feedback string `json:"feedback"`
	}

	Session struct {
		InterviewID   string   `json:"interview_id"`
		State         string   `json:"state"`
		QuestionIndex int      `json:"question_index"`
		QuestionCount int      `json:"question_count"`
		Question      Question `json:"question"`
		Transcript    string   `json:"transcript"`
		Result        *Result  `json:"result"`
		Webcam        bool     `json:"webcam"`
		CanRecord     bool     `json:"can_record"`
		CanConfirm    bool     `json:"can_confirm"`
	}

	ConfirmResponse struct {
		RecordID  string  `json:"record_id"`
		Completed bool    `json:"completed"`
		Redirect  string  `json:"redirect,omitempty"`
		Session   Session `json:"session"`
	}

	Answer struct {
		RecordID    string    `json:"record_id"`
		InterviewID string    `json:"interview_id"`
		Question    string    `json:"question"`
		ModelAnswer string    `json:"correct_answer"`
		UserAnswer  string    `json:"user_answer"`
		Feedback    string    `json:"feedback"`
		Rating      int       `json:"rating"`
		UserID      string    `json:"user_id"`
		CreateTime  time.Time `json:"create_time"`
	}

	ProgressEntry struct {
		QuestionIndex int `json:"question_index"`
		Rating        int `json:"rating"`
	}

	Progress struct {
		InterviewID string          `json:"interview_id"`
		Entries     []ProgressEntry `json:"entries"`
		Average     string          `json:"average"`
	}
)

func (r CreateInterviewRequest) domainQuestions() []domain.Question {
	if len(r.Questions) == 0 {
		return nil
	}

	qs := make([]domain.Question, 0, len(r.Questions))
	for _, q := range r.Questions {
		qs = append(qs, domain.Question{Question: q.Question, Answer: q.Answer})
	}
	return qs
}

func (r PushFragmentsRequest) fragments() []transcript.Fragment {
	fs := make([]transcript.Fragment, 0, len(r.Fragments))
	for _, f := range r.Fragments {
		fs = append(fs, transcript.Fragment{Kind: transcript.ParseKind(f.Kind), Text: f.Text})
	}
	return fs
}

func toInterview(iv *domain.Interview) Interview {
	out := Interview{
		InterviewID: iv.InterviewID,
		Title:       iv.Title,
		UserID:      iv.UserID,
		Questions:   make([]Question, 0, len(iv.Questions)),
		CreateTime:  iv.CreateTime,
	}
	for _, q := range iv.Questions {
		out.Questions = append(out.Questions, Question{Question: q.Question})
	}
	return out
}

func toSession(v session.View) Session {
	s := Session{
		InterviewID:   v.InterviewID,
		State:         v.State.String(),
		QuestionIndex: v.QuestionIndex,
		QuestionCount: v.QuestionCount,
		Question:      Question{Question: v.Question.Question},
		Transcript:    v.Transcript,
		Webcam:        v.Webcam,
		CanRecord:     v.CanRecord,
		CanConfirm:    v.CanConfirm,
	}
	if v.Result != nil {
		s.Result = &Result{Rating: v.Result.Rating, Feedback: v.Result.Feedback}
	}
	return s
}

func toAnswer(r domain.AnswerRecord) Answer {
	return Answer{
		RecordID:    r.RecordID,
		InterviewID: r.InterviewID,
		Question:    r.Question,
		ModelAnswer: r.ModelAnswer,
		UserAnswer:  r.UserAnswer,
		Feedback:    r.Feedback,
		Rating:      r.Rating,
		UserID:      r.UserID,
		CreateTime:  r.CreateTime,
	}
}

func toProgress(p domain.Progress) Progress {
	out := Progress{
		InterviewID: p.InterviewID,
		Entries:     make([]ProgressEntry, 0, len(p.Entries)),
		Average:     p.Average.String(),
	}
	for _, e := range p.Entries {
		out.Entries = append(out.Entries, ProgressEntry{QuestionIndex: e.QuestionIndex, Rating: e.Rating})
	}
	return out
}
