package model

import "time"

// ResultsExport is the top-level JSON structure for results export.
type ResultsExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	ExamID      int64           `json:"exam_id,omitempty"`
	Results     []StudentResult `json:"results"`
}

// StudentResult holds one completed submission for export.
type StudentResult struct {
	SubmissionID int64            `json:"submission_id"`
	Username     string           `json:"username"`
	FullName     string           `json:"full_name"`
	ExamID       int64            `json:"exam_id"`
	ExamTitle    string           `json:"exam_title"`
	StartedAt    time.Time        `json:"started_at"`
	SubmittedAt  *time.Time       `json:"submitted_at,omitempty"`
	Score        int              `json:"score"`
	Late         bool             `json:"late"`
	Questions    []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	QuestionID    int64        `json:"question_id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Points        int          `json:"points"`
	PointsAwarded int          `json:"points_awarded"`
	Answered      bool         `json:"answered"`
	Feedback      string       `json:"feedback,omitempty"`
}
