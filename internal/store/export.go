package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/examdesk/internal/model"
)

// ExportResults builds export-ready results from completed submissions.
// A zero examID exports every exam.
func (s *Store) ExportResults(ctx context.Context, examID int64) ([]model.StudentResult, error) {
	subs, err := s.ListSubmissions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	details := make(map[int64]model.ExamDetail)
	users := make(map[int64]*model.User)

	results := []model.StudentResult{}
	for _, sub := range subs {
		if sub.Status != model.StatusCompleted {
			continue
		}
		if examID != 0 && sub.ExamID != examID {
			continue
		}

		detail, ok := details[sub.ExamID]
		if !ok {
			detail, err = s.GetExamDetail(ctx, sub.ExamID)
			if err != nil {
				return nil, fmt.Errorf("get exam %d: %w", sub.ExamID, err)
			}
			details[sub.ExamID] = detail
		}

		user, ok := users[sub.StudentID]
		if !ok {
			user, err = s.GetUserByID(ctx, sub.StudentID)
			if err != nil {
				return nil, fmt.Errorf("get user %d: %w", sub.StudentID, err)
			}
			users[sub.StudentID] = user
		}

		answers, err := s.ListAnswers(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("list answers of submission %d: %w", sub.ID, err)
		}
		byQuestion := make(map[int64]model.Answer, len(answers))
		for _, a := range answers {
			byQuestion[a.QuestionID] = a
		}

		questions := make([]model.QuestionResult, 0, len(detail.Questions))
		for _, q := range detail.Questions {
			qr := model.QuestionResult{
				QuestionID: q.ID,
				Text:       q.Text,
				Type:       q.Type(),
				Points:     q.Points,
			}
			if a, ok := byQuestion[q.ID]; ok {
				qr.Answered = true
				qr.PointsAwarded = a.PointsAwarded
				qr.Feedback = a.Feedback
			}
			questions = append(questions, qr)
		}

		r := model.StudentResult{
			SubmissionID: sub.ID,
			ExamID:       sub.ExamID,
			ExamTitle:    detail.Title,
			StartedAt:    sub.StartTime,
			SubmittedAt:  sub.EndTime,
			Late:         sub.Late,
			Questions:    questions,
		}
		if sub.Score != nil {
			r.Score = *sub.Score
		}
		if user != nil {
			r.Username = user.Username
			r.FullName = user.FullName
		}
		results = append(results, r)
	}
	return results, nil
}
