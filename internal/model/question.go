package model

import "strings"

// QuestionType names the variant of a question body.
type QuestionType string

const (
	QuestionMCQ         QuestionType = "MCQ"
	QuestionShortAnswer QuestionType = "SHORT_ANSWER"
)

// Question is one item of an exam. Body carries the type-specific payload
// and the answer key; it is either MultipleChoice or ShortAnswer.
type Question struct {
	ID       int64
	ExamID   int64
	Position int
	Text     string
	Points   int
	Body     QuestionBody
}

// Type returns the question's variant, or "" when Body is unset.
func (q Question) Type() QuestionType {
	if q.Body == nil {
		return ""
	}
	return q.Body.Type()
}

// QuestionBody is the closed set of question payloads.
type QuestionBody interface {
	Type() QuestionType
	isQuestionBody()
}

// Option is one choice of a multiple-choice question.
type Option struct {
	ID         int64
	QuestionID int64
	Text       string
	IsCorrect  bool
}

// MultipleChoice is an MCQ body: exactly one option is marked correct.
type MultipleChoice struct {
	Options []Option
}

func (MultipleChoice) Type() QuestionType { return QuestionMCQ }
func (MultipleChoice) isQuestionBody()    {}

// CorrectOption returns the ID of the single correct option. It reports
// false when the key is malformed (no correct option, or more than one).
func (m MultipleChoice) CorrectOption() (int64, bool) {
	var id int64
	n := 0
	for _, o := range m.Options {
		if o.IsCorrect {
			id = o.ID
			n++
		}
	}
	return id, n == 1
}

// HasOption reports whether id is one of this question's options.
func (m MultipleChoice) HasOption(id int64) bool {
	for _, o := range m.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// ShortAnswer is a free-text body graded by keyword overlap.
// An empty keyword list gives full credit for any non-empty answer.
type ShortAnswer struct {
	Keywords []string
}

func (ShortAnswer) Type() QuestionType { return QuestionShortAnswer }
func (ShortAnswer) isQuestionBody()    {}

// NormalizeKeywords lower-cases and trims keywords, dropping blanks and
// duplicates while keeping the first-seen order.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
