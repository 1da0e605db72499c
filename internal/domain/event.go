package domain

const (
	EventNameAnswerScored        = "answer.scored"
	EventNameAnswerScoringFailed = "answer.scoring_failed"
	EventNameAnswerSaved         = "answer.saved"
	EventNameInterviewCompleted  = "interview.completed"
	EventNameProgressUpdated     = "progress.updated"
)

type EventAnswerScored struct {
	InterviewID   string
	UserID        string
	QuestionIndex int
	Result        ScoringResult
}

func (EventAnswerScored) Name() string { return EventNameAnswerScored }

type EventAnswerScoringFailed struct {
	InterviewID   string
	UserID        string
	QuestionIndex int
	Message       string
}

func (EventAnswerScoringFailed) Name() string { return EventNameAnswerScoringFailed }

type EventAnswerSaved struct {
	Record        AnswerRecord
	QuestionIndex int
}

func (EventAnswerSaved) Name() string { return EventNameAnswerSaved }

// EventInterviewCompleted is the navigation signal sent once the last answer is saved.
type EventInterviewCompleted struct {
	InterviewID string
	UserID      string
	Redirect    string
}

func (EventInterviewCompleted) Name() string { return EventNameInterviewCompleted }

type EventProgressUpdated struct {
	Progress Progress
}

func (EventProgressUpdated) Name() string { return EventNameProgressUpdated }
