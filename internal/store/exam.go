package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/examdesk/internal/model"
)

const examColumns = `id, title, description, duration, is_active, created_by, created_at`

func scanExam(row interface{ Scan(...any) error }) (model.Exam, error) {
	var e model.Exam
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Duration, &e.IsActive, &e.CreatedBy, &e.CreatedAt)
	return e, err
}

// CreateExam stores an exam and its question tree in one transaction.
func (s *Store) CreateExam(ctx context.Context, exam model.Exam, questions []model.Question) (model.Exam, error) {
	exam.CreatedAt = time.Now().UTC()
	err := s.inTx(ctx, func(c conn) error {
		err := c.queryRow(ctx,
			`INSERT INTO exams (title, description, duration, is_active, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
			exam.Title, exam.Description, exam.Duration, exam.IsActive, exam.CreatedBy, exam.CreatedAt,
		).Scan(&exam.ID)
		if err != nil {
			return err
		}
		return insertQuestions(ctx, c, exam.ID, questions)
	})
	if err != nil {
		return model.Exam{}, err
	}
	return exam, nil
}

// ReplaceExam updates an exam's metadata and replaces its whole question
// tree. guard receives the exam's submission count within the same
// transaction and may veto the change.
func (s *Store) ReplaceExam(ctx context.Context, id int64, exam model.Exam, questions []model.Question, guard func(int) error) (model.Exam, error) {
	var updated model.Exam
	err := s.inTx(ctx, func(c conn) error {
		if err := lockExam(ctx, c, id, true); err != nil {
			return err
		}
		n, err := countSubmissions(ctx, c, id)
		if err != nil {
			return err
		}
		if err := guard(n); err != nil {
			return err
		}

		if _, err := c.exec(ctx,
			`UPDATE exams SET title = ?, description = ?, duration = ?, is_active = ? WHERE id = ?`,
			exam.Title, exam.Description, exam.Duration, exam.IsActive, id,
		); err != nil {
			return err
		}
		if _, err := c.exec(ctx,
			`DELETE FROM options WHERE question_id IN (SELECT id FROM questions WHERE exam_id = ?)`, id,
		); err != nil {
			return err
		}
		if _, err := c.exec(ctx, `DELETE FROM questions WHERE exam_id = ?`, id); err != nil {
			return err
		}
		if err := insertQuestions(ctx, c, id, questions); err != nil {
			return err
		}

		updated, err = scanExam(c.queryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
		return err
	})
	if err != nil {
		return model.Exam{}, err
	}
	return updated, nil
}

// SetExamActive opens or closes an exam for new starts. It touches no
// question data, so it is allowed on exams that have submissions.
func (s *Store) SetExamActive(ctx context.Context, id int64, active bool) (model.Exam, error) {
	res, err := s.conn().exec(ctx, `UPDATE exams SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return model.Exam{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Exam{}, err
	}
	if n == 0 {
		return model.Exam{}, model.ErrNotFound
	}
	return s.GetExam(ctx, id)
}

// DeleteExam removes an exam with its questions and options. guard
// receives the exam's submission count within the same transaction.
func (s *Store) DeleteExam(ctx context.Context, id int64, guard func(int) error) error {
	return s.inTx(ctx, func(c conn) error {
		if err := lockExam(ctx, c, id, true); err != nil {
			return err
		}
		n, err := countSubmissions(ctx, c, id)
		if err != nil {
			return err
		}
		if err := guard(n); err != nil {
			return err
		}
		if _, err := c.exec(ctx,
			`DELETE FROM options WHERE question_id IN (SELECT id FROM questions WHERE exam_id = ?)`, id,
		); err != nil {
			return err
		}
		if _, err := c.exec(ctx, `DELETE FROM questions WHERE exam_id = ?`, id); err != nil {
			return err
		}
		_, err = c.exec(ctx, `DELETE FROM exams WHERE id = ?`, id)
		return err
	})
}

func lockExam(ctx context.Context, c conn, id int64, exclusive bool) error {
	var got int64
	err := c.queryRow(ctx, `SELECT id FROM exams WHERE id = ?`+c.lockSuffix(exclusive), id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

func countSubmissions(ctx context.Context, c conn, examID int64) (int, error) {
	var n int
	err := c.queryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE exam_id = ?`, examID).Scan(&n)
	return n, err
}

func insertQuestions(ctx context.Context, c conn, examID int64, questions []model.Question) error {
	for i, q := range questions {
		keywords := []string{}
		if sa, ok := q.Body.(model.ShortAnswer); ok && sa.Keywords != nil {
			keywords = sa.Keywords
		}
		kw, err := json.Marshal(keywords)
		if err != nil {
			return err
		}

		var qID int64
		err = c.queryRow(ctx,
			`INSERT INTO questions (exam_id, position, text, type, points, keywords)
			 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
			examID, i, q.Text, q.Type(), q.Points, string(kw),
		).Scan(&qID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}

		mc, ok := q.Body.(model.MultipleChoice)
		if !ok {
			continue
		}
		for j, o := range mc.Options {
			if _, err := c.exec(ctx,
				`INSERT INTO options (question_id, position, text, is_correct) VALUES (?, ?, ?, ?)`,
				qID, j, o.Text, o.IsCorrect,
			); err != nil {
				return fmt.Errorf("insert option %d of question %d: %w", j, i, err)
			}
		}
	}
	return nil
}

// GetExam returns exam metadata by ID.
func (s *Store) GetExam(ctx context.Context, id int64) (model.Exam, error) {
	e, err := scanExam(s.conn().queryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exam{}, model.ErrNotFound
	}
	return e, err
}

// ListExams returns all exams, oldest first.
func (s *Store) ListExams(ctx context.Context) ([]model.Exam, error) {
	rows, err := s.conn().query(ctx, `SELECT `+examColumns+` FROM exams ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	exams := []model.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// GetExamDetail returns an exam with its ordered questions, options and
// answer keys.
func (s *Store) GetExamDetail(ctx context.Context, id int64) (model.ExamDetail, error) {
	exam, err := s.GetExam(ctx, id)
	if err != nil {
		return model.ExamDetail{}, err
	}
	c := s.conn()

	options := make(map[int64][]model.Option)
	optRows, err := c.query(ctx,
		`SELECT o.id, o.question_id, o.text, o.is_correct
		 FROM options o JOIN questions q ON q.id = o.question_id
		 WHERE q.exam_id = ? ORDER BY o.position, o.id`, id,
	)
	if err != nil {
		return model.ExamDetail{}, err
	}
	defer optRows.Close()
	for optRows.Next() {
		var o model.Option
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect); err != nil {
			return model.ExamDetail{}, err
		}
		options[o.QuestionID] = append(options[o.QuestionID], o)
	}
	if err := optRows.Err(); err != nil {
		return model.ExamDetail{}, err
	}

	rows, err := c.query(ctx,
		`SELECT id, exam_id, position, text, type, points, keywords
		 FROM questions WHERE exam_id = ? ORDER BY position, id`, id,
	)
	if err != nil {
		return model.ExamDetail{}, err
	}
	defer rows.Close()

	detail := model.ExamDetail{Exam: exam, Questions: []model.Question{}}
	for rows.Next() {
		var (
			q        model.Question
			qType    model.QuestionType
			keywords string
		)
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Position, &q.Text, &qType, &q.Points, &keywords); err != nil {
			return model.ExamDetail{}, err
		}
		switch qType {
		case model.QuestionMCQ:
			q.Body = model.MultipleChoice{Options: options[q.ID]}
		case model.QuestionShortAnswer:
			var kw []string
			if err := json.Unmarshal([]byte(keywords), &kw); err != nil {
				return model.ExamDetail{}, fmt.Errorf("decode keywords of question %d: %w", q.ID, err)
			}
			q.Body = model.ShortAnswer{Keywords: kw}
		default:
			return model.ExamDetail{}, fmt.Errorf("question %d has unknown type %q", q.ID, qType)
		}
		detail.Questions = append(detail.Questions, q)
	}
	return detail, rows.Err()
}

// CountSubmissions returns the number of submissions referencing an exam.
func (s *Store) CountSubmissions(ctx context.Context, examID int64) (int, error) {
	return countSubmissions(ctx, s.conn(), examID)
}
