// Package session runs the lifecycle of a student's attempt at an exam:
// start, submit and grade.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/examdesk/internal/grading"
	"github.com/pavelanni/examdesk/internal/model"
)

// Store is the persistence the session service needs.
type Store interface {
	GetExamDetail(ctx context.Context, id int64) (model.ExamDetail, error)
	GetSubmission(ctx context.Context, id int64) (model.Submission, error)
	FindInProgress(ctx context.Context, examID, studentID int64) (*model.Submission, error)
	// CreateSubmission inserts an IN_PROGRESS submission unless one already
	// exists for the pair, in which case it returns that one and false.
	CreateSubmission(ctx context.Context, examID, studentID int64, start time.Time) (model.Submission, bool, error)
	// CompleteSubmission writes the answers and flips the status in one
	// transaction, guarded by status = IN_PROGRESS. It returns
	// model.ErrAlreadySubmitted if the guard fails.
	CompleteSubmission(ctx context.Context, c model.Completion) (model.Submission, error)
}

// Service implements the submission state machine.
type Service struct {
	store  Store
	policy model.LatePolicy
	grace  time.Duration
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLatePolicy sets how submissions past the exam duration are handled.
func WithLatePolicy(p model.LatePolicy, grace time.Duration) Option {
	return func(s *Service) {
		s.policy = p
		s.grace = grace
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a new Service.
func New(st Store, opts ...Option) *Service {
	s := &Service{store: st, policy: model.LateAccept, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Outcome is the result of a successful submit.
type Outcome struct {
	Submission model.Submission
	Result     grading.Result
}

// Start returns the student's IN_PROGRESS submission for the exam, creating
// it if needed. The boolean reports whether a new submission was created.
func (s *Service) Start(ctx context.Context, examID, studentID int64) (model.Submission, bool, error) {
	detail, err := s.store.GetExamDetail(ctx, examID)
	if err != nil {
		return model.Submission{}, false, fmt.Errorf("start exam %d: %w", examID, err)
	}
	if !detail.IsActive {
		return model.Submission{}, false, model.ErrExamInactive
	}

	existing, err := s.store.FindInProgress(ctx, examID, studentID)
	if err != nil {
		return model.Submission{}, false, fmt.Errorf("find in-progress submission: %w", err)
	}
	if existing != nil {
		return *existing, false, nil
	}

	sub, created, err := s.store.CreateSubmission(ctx, examID, studentID, s.now())
	if err != nil {
		return model.Submission{}, false, fmt.Errorf("create submission: %w", err)
	}
	if created {
		slog.Info("submission started", "submission_id", sub.ID, "exam_id", examID, "student_id", studentID)
	}
	return sub, created, nil
}

// Submit grades and completes a submission. The same call serves explicit
// submits and timer-driven auto-submits; whichever arrives second gets
// model.ErrAlreadySubmitted and changes nothing.
func (s *Service) Submit(ctx context.Context, submissionID, studentID int64, answers []model.Answer) (Outcome, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get submission %d: %w", submissionID, err)
	}
	if sub.StudentID != studentID {
		return Outcome{}, model.ErrForbidden
	}
	if sub.Status == model.StatusCompleted {
		return Outcome{}, model.ErrAlreadySubmitted
	}

	detail, err := s.store.GetExamDetail(ctx, sub.ExamID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get exam %d: %w", sub.ExamID, err)
	}

	end := s.now()
	late := s.isLate(sub.StartTime, end, detail.Duration)
	if late && s.policy == model.LateReject {
		return Outcome{}, model.ErrTimeExpired
	}

	kept := Normalize(detail, answers)
	result := grading.Score(detail.Questions, kept)
	for i := range kept {
		kept[i].SubmissionID = sub.ID
		if qr, ok := result.Question(kept[i].QuestionID); ok {
			kept[i].PointsAwarded = qr.Earned
			kept[i].IsCorrect = qr.Correct
		}
	}

	completed, err := s.store.CompleteSubmission(ctx, model.Completion{
		SubmissionID: sub.ID,
		Score:        result.Score,
		EndTime:      end,
		Late:         late,
		Answers:      kept,
	})
	if err != nil {
		if errors.Is(err, model.ErrAlreadySubmitted) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("complete submission %d: %w", sub.ID, err)
	}

	slog.Info("submission completed",
		"submission_id", sub.ID,
		"exam_id", sub.ExamID,
		"student_id", studentID,
		"score", result.Score,
		"late", late,
	)
	return Outcome{Submission: completed, Result: result}, nil
}

func (s *Service) isLate(start, end time.Time, durationMinutes int) bool {
	limit := time.Duration(durationMinutes)*time.Minute + s.grace
	return end.Sub(start) > limit
}

// Normalize prepares submitted answers for storage: it keeps the first
// answer per question, drops answers to questions outside the exam, and
// keeps only the field matching each question's type. A selected option
// that does not belong to the question is dropped.
func Normalize(detail model.ExamDetail, answers []model.Answer) []model.Answer {
	seen := make(map[int64]bool, len(answers))
	out := make([]model.Answer, 0, len(answers))
	for _, a := range answers {
		if seen[a.QuestionID] {
			continue
		}
		q, ok := detail.Question(a.QuestionID)
		if !ok {
			continue
		}
		seen[a.QuestionID] = true

		clean := model.Answer{QuestionID: a.QuestionID}
		switch b := q.Body.(type) {
		case model.MultipleChoice:
			if a.SelectedOptionID != nil && b.HasOption(*a.SelectedOptionID) {
				clean.SelectedOptionID = a.SelectedOptionID
			}
		case model.ShortAnswer:
			clean.TextAnswer = a.TextAnswer
		}
		out = append(out, clean)
	}
	return out
}
