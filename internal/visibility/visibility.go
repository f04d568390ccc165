// Package visibility shapes exam content for a caller's role. Student
// views are built from types that have no answer-key fields at all.
package visibility

import "github.com/pavelanni/examdesk/internal/model"

// Option is an MCQ choice without its correctness flag.
type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"questionId"`
	Text       string `json:"text"`
}

// KeyedOption is an MCQ choice including the answer key.
type KeyedOption struct {
	Option
	IsCorrect bool `json:"isCorrect"`
}

// StudentQuestion is a question as shown to the student taking the exam.
type StudentQuestion struct {
	ID      int64              `json:"id"`
	ExamID  int64              `json:"examId"`
	Text    string             `json:"text"`
	Type    model.QuestionType `json:"type"`
	Points  int                `json:"points"`
	Options []Option           `json:"options"`
}

// AuthorQuestion is a question with its full answer key.
type AuthorQuestion struct {
	ID       int64              `json:"id"`
	ExamID   int64              `json:"examId"`
	Text     string             `json:"text"`
	Type     model.QuestionType `json:"type"`
	Points   int                `json:"points"`
	Options  []KeyedOption      `json:"options"`
	Keywords []string           `json:"keywords"`
}

// StudentExam is an exam safe to serve to students.
type StudentExam struct {
	model.Exam
	Questions []StudentQuestion `json:"questions"`
}

// AuthorExam is an exam with answer keys, for administrators.
type AuthorExam struct {
	model.Exam
	Questions []AuthorQuestion `json:"questions"`
}

// ForRole returns the view of d appropriate for role. Any role other than
// admin gets the student view.
func ForRole(d model.ExamDetail, role model.UserRole) any {
	if role == model.UserRoleAdmin {
		return ForAuthor(d)
	}
	return ForStudent(d)
}

// ForStudent strips every answer-key field from d.
func ForStudent(d model.ExamDetail) StudentExam {
	out := StudentExam{Exam: d.Exam, Questions: make([]StudentQuestion, 0, len(d.Questions))}
	for _, q := range d.Questions {
		sq := StudentQuestion{
			ID:      q.ID,
			ExamID:  q.ExamID,
			Text:    q.Text,
			Type:    q.Type(),
			Points:  q.Points,
			Options: []Option{},
		}
		switch b := q.Body.(type) {
		case model.MultipleChoice:
			for _, o := range b.Options {
				sq.Options = append(sq.Options, publicOption(o))
			}
		case model.ShortAnswer:
		}
		out.Questions = append(out.Questions, sq)
	}
	return out
}

// ForAuthor returns d unfiltered.
func ForAuthor(d model.ExamDetail) AuthorExam {
	out := AuthorExam{Exam: d.Exam, Questions: make([]AuthorQuestion, 0, len(d.Questions))}
	for _, q := range d.Questions {
		aq := AuthorQuestion{
			ID:       q.ID,
			ExamID:   q.ExamID,
			Text:     q.Text,
			Type:     q.Type(),
			Points:   q.Points,
			Options:  []KeyedOption{},
			Keywords: []string{},
		}
		switch b := q.Body.(type) {
		case model.MultipleChoice:
			for _, o := range b.Options {
				aq.Options = append(aq.Options, KeyedOption{Option: publicOption(o), IsCorrect: o.IsCorrect})
			}
		case model.ShortAnswer:
			aq.Keywords = append(aq.Keywords, b.Keywords...)
		}
		out.Questions = append(out.Questions, aq)
	}
	return out
}

func publicOption(o model.Option) Option {
	return Option{ID: o.ID, QuestionID: o.QuestionID, Text: o.Text}
}
