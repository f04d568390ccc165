// Package grading computes exam scores from question definitions and
// submitted answers. It performs no I/O.
package grading

import (
	"math"
	"strings"

	"github.com/pavelanni/examdesk/internal/model"
)

// QuestionResult is the outcome for a single question.
type QuestionResult struct {
	QuestionID int64
	Points     int
	Earned     int
	Answered   bool
	// Correct is nil for unanswered questions.
	Correct *bool
}

// Result is the outcome for a whole submission.
type Result struct {
	Score     int // percentage, 0-100
	Earned    int
	Possible  int
	Questions []QuestionResult
}

// Question returns the result for the given question ID.
func (r Result) Question(id int64) (QuestionResult, bool) {
	for _, q := range r.Questions {
		if q.QuestionID == id {
			return q, true
		}
	}
	return QuestionResult{}, false
}

// Score grades answers against questions. Questions are scored in order;
// unanswered questions earn nothing but still count toward the possible
// total. For each question only the first answer is considered; answers to
// unknown questions are ignored.
func Score(questions []model.Question, answers []model.Answer) Result {
	byQuestion := Dedupe(answers)

	res := Result{Questions: make([]QuestionResult, 0, len(questions))}
	for _, q := range questions {
		points := q.Points
		if points < 0 {
			points = 0
		}
		var qr QuestionResult
		if a, ok := byQuestion[q.ID]; ok {
			qr = scoreQuestion(q.Body, points, a)
		}
		qr.QuestionID = q.ID
		qr.Points = points

		res.Earned += qr.Earned
		res.Possible += points
		res.Questions = append(res.Questions, qr)
	}

	res.Score = Percentage(res.Earned, res.Possible)
	return res
}

// Dedupe indexes answers by question ID, keeping the first per question.
func Dedupe(answers []model.Answer) map[int64]model.Answer {
	m := make(map[int64]model.Answer, len(answers))
	for _, a := range answers {
		if _, ok := m[a.QuestionID]; ok {
			continue
		}
		m[a.QuestionID] = a
	}
	return m
}

// Percentage returns round(100*earned/possible) clamped to [0,100],
// or 0 when nothing was possible.
func Percentage(earned, possible int) int {
	if possible <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(earned) / float64(possible)))
	return clamp(p, 0, 100)
}

func scoreQuestion(body model.QuestionBody, points int, a model.Answer) QuestionResult {
	switch b := body.(type) {
	case model.MultipleChoice:
		return scoreMultipleChoice(b, points, a)
	case model.ShortAnswer:
		return scoreShortAnswer(b, points, a)
	default:
		return QuestionResult{}
	}
}

func scoreMultipleChoice(b model.MultipleChoice, points int, a model.Answer) QuestionResult {
	if a.SelectedOptionID == nil {
		return QuestionResult{}
	}
	correctID, ok := b.CorrectOption()
	correct := ok && *a.SelectedOptionID == correctID
	qr := QuestionResult{Answered: true, Correct: &correct}
	if correct {
		qr.Earned = points
	}
	return qr
}

func scoreShortAnswer(b model.ShortAnswer, points int, a model.Answer) QuestionResult {
	if a.TextAnswer == nil || strings.TrimSpace(*a.TextAnswer) == "" {
		return QuestionResult{}
	}
	text := strings.ToLower(*a.TextAnswer)

	keywords := model.NormalizeKeywords(b.Keywords)
	earned := points
	if len(keywords) > 0 {
		matched := 0
		for _, k := range keywords {
			if strings.Contains(text, k) {
				matched++
			}
		}
		earned = int(math.Round(float64(points*matched) / float64(len(keywords))))
	}
	earned = clamp(earned, 0, points)

	correct := earned == points
	return QuestionResult{Answered: true, Earned: earned, Correct: &correct}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
