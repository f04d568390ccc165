package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/examdesk/internal/model"
)

const submissionColumns = `id, exam_id, student_id, start_time, end_time, score, status, late`

func scanSubmission(row interface{ Scan(...any) error }) (model.Submission, error) {
	var sub model.Submission
	err := row.Scan(&sub.ID, &sub.ExamID, &sub.StudentID, &sub.StartTime, &sub.EndTime, &sub.Score, &sub.Status, &sub.Late)
	return sub, err
}

// CreateSubmission inserts an IN_PROGRESS submission. If the student
// already has one for this exam, that submission is returned with false.
func (s *Store) CreateSubmission(ctx context.Context, examID, studentID int64, start time.Time) (model.Submission, bool, error) {
	var (
		sub     model.Submission
		created bool
	)
	err := s.inTx(ctx, func(c conn) error {
		if err := lockExam(ctx, c, examID, false); err != nil {
			return err
		}
		var id int64
		err := c.queryRow(ctx,
			`INSERT INTO submissions (exam_id, student_id, start_time, status)
			 VALUES (?, ?, ?, 'IN_PROGRESS')
			 ON CONFLICT (exam_id, student_id) WHERE status = 'IN_PROGRESS' DO NOTHING
			 RETURNING id`,
			examID, studentID, start.UTC(),
		).Scan(&id)
		switch {
		case err == nil:
			created = true
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		sub, err = scanSubmission(c.queryRow(ctx,
			`SELECT `+submissionColumns+` FROM submissions
			 WHERE exam_id = ? AND student_id = ? AND status = 'IN_PROGRESS'`,
			examID, studentID,
		))
		return err
	})
	if err != nil {
		return model.Submission{}, false, err
	}
	return sub, created, nil
}

// GetSubmission returns a submission by ID.
func (s *Store) GetSubmission(ctx context.Context, id int64) (model.Submission, error) {
	sub, err := scanSubmission(s.conn().queryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, model.ErrNotFound
	}
	return sub, err
}

// FindInProgress returns the student's IN_PROGRESS submission for an
// exam, or nil if there is none.
func (s *Store) FindInProgress(ctx context.Context, examID, studentID int64) (*model.Submission, error) {
	sub, err := scanSubmission(s.conn().queryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE exam_id = ? AND student_id = ? AND status = 'IN_PROGRESS'`,
		examID, studentID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// HasSubmission reports whether the student has ever started the exam.
func (s *Store) HasSubmission(ctx context.Context, examID, studentID int64) (bool, error) {
	var n int
	err := s.conn().queryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id = ? AND student_id = ?`, examID, studentID,
	).Scan(&n)
	return n > 0, err
}

// CompleteSubmission marks a submission COMPLETED with its score and
// writes its answers, all in one transaction. The status change is
// conditional on the submission still being IN_PROGRESS, so of two
// concurrent calls exactly one succeeds; the other gets
// model.ErrAlreadySubmitted.
func (s *Store) CompleteSubmission(ctx context.Context, cp model.Completion) (model.Submission, error) {
	var sub model.Submission
	err := s.inTx(ctx, func(c conn) error {
		res, err := c.exec(ctx,
			`UPDATE submissions SET status = 'COMPLETED', score = ?, end_time = ?, late = ?
			 WHERE id = ? AND status = 'IN_PROGRESS'`,
			cp.Score, cp.EndTime.UTC(), cp.Late, cp.SubmissionID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var status string
			err := c.queryRow(ctx, `SELECT status FROM submissions WHERE id = ?`, cp.SubmissionID).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrNotFound
			}
			if err != nil {
				return err
			}
			return model.ErrAlreadySubmitted
		}

		for _, a := range cp.Answers {
			if _, err := c.exec(ctx,
				`INSERT INTO answers (submission_id, question_id, selected_option_id, text_answer, is_correct, points_awarded)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				cp.SubmissionID, a.QuestionID, a.SelectedOptionID, a.TextAnswer, a.IsCorrect, a.PointsAwarded,
			); err != nil {
				return fmt.Errorf("insert answer for question %d: %w", a.QuestionID, err)
			}
		}

		sub, err = scanSubmission(c.queryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, cp.SubmissionID))
		return err
	})
	if err != nil {
		return model.Submission{}, err
	}
	return sub, nil
}

// ListSubmissions returns submissions with their exam, oldest first. A
// zero studentID lists every student's submissions.
func (s *Store) ListSubmissions(ctx context.Context, studentID int64) ([]model.SubmissionWithExam, error) {
	query := `SELECT s.id, s.exam_id, s.student_id, s.start_time, s.end_time, s.score, s.status, s.late,
		       e.id, e.title, e.description, e.duration, e.is_active, e.created_by, e.created_at
		FROM submissions s LEFT JOIN exams e ON e.id = s.exam_id`
	var args []any
	if studentID != 0 {
		query += ` WHERE s.student_id = ?`
		args = append(args, studentID)
	}
	query += ` ORDER BY s.start_time, s.id`

	rows, err := s.conn().query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SubmissionWithExam{}
	for rows.Next() {
		var (
			sw     model.SubmissionWithExam
			examID sql.NullInt64
			title  sql.NullString
			desc   sql.NullString
			dur    sql.NullInt64
			active sql.NullBool
			by     sql.NullInt64
			at     sql.NullTime
		)
		if err := rows.Scan(
			&sw.ID, &sw.ExamID, &sw.StudentID, &sw.StartTime, &sw.EndTime, &sw.Score, &sw.Status, &sw.Late,
			&examID, &title, &desc, &dur, &active, &by, &at,
		); err != nil {
			return nil, err
		}
		if examID.Valid {
			sw.Exam = &model.Exam{
				ID:          examID.Int64,
				Title:       title.String,
				Description: desc.String,
				Duration:    int(dur.Int64),
				IsActive:    active.Bool,
				CreatedBy:   by.Int64,
				CreatedAt:   at.Time,
			}
		}
		out = append(out, sw)
	}
	return out, rows.Err()
}

// ListAnswers returns the recorded answers of a submission.
func (s *Store) ListAnswers(ctx context.Context, submissionID int64) ([]model.Answer, error) {
	rows, err := s.conn().query(ctx,
		`SELECT id, submission_id, question_id, selected_option_id, text_answer, is_correct, points_awarded, feedback
		 FROM answers WHERE submission_id = ? ORDER BY id`, submissionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	answers := []model.Answer{}
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.QuestionID, &a.SelectedOptionID, &a.TextAnswer, &a.IsCorrect, &a.PointsAwarded, &a.Feedback); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// SetAnswerFeedback stores narrative feedback on an answer. Points are
// never touched.
func (s *Store) SetAnswerFeedback(ctx context.Context, answerID int64, feedback string) error {
	res, err := s.conn().exec(ctx, `UPDATE answers SET feedback = ? WHERE id = ?`, feedback, answerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
