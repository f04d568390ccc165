// Package authoring validates exam definitions and guards edits to exams
// that students have already attempted.
package authoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/examdesk/internal/model"
)

// Definition is the full authored content of an exam, as submitted on
// create, update and import. The validate tags cover per-field rules;
// Validate adds the cross-field invariants.
type Definition struct {
	Title       string               `json:"title" validate:"required"`
	Description string               `json:"description"`
	Duration    int                  `json:"duration" validate:"gt=0"`
	IsActive    bool                 `json:"isActive"`
	Questions   []QuestionDefinition `json:"questions" validate:"dive"`
}

// QuestionDefinition describes one question of a Definition.
type QuestionDefinition struct {
	Text     string             `json:"text" validate:"required"`
	Type     model.QuestionType `json:"type" validate:"oneof=MCQ SHORT_ANSWER"`
	Points   int                `json:"points" validate:"gte=0"`
	Options  []OptionDefinition `json:"options" validate:"dive"`
	Keywords []string           `json:"keywords"`
}

// OptionDefinition describes one MCQ option.
type OptionDefinition struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

// Validate checks the structural invariants of an exam definition. Field
// paths use the request's JSON names, e.g. "questions[2].options".
func Validate(def Definition) error {
	errs := model.ValidationErrors{}
	if strings.TrimSpace(def.Title) == "" {
		errs.Add("title", "required")
	}
	if def.Duration <= 0 {
		errs.Add("duration", "gt=0")
	}
	for i, q := range def.Questions {
		path := fmt.Sprintf("questions[%d]", i)
		if strings.TrimSpace(q.Text) == "" {
			errs.Add(path+".text", "required")
		}
		if q.Points < 0 {
			errs.Add(path+".points", "gte=0")
		}
		switch q.Type {
		case model.QuestionMCQ:
			validateOptions(errs, path, q.Options)
		case model.QuestionShortAnswer:
			if len(q.Options) > 0 {
				errs.Add(path+".options", "excluded")
			}
		default:
			errs.Add(path+".type", "oneof=MCQ SHORT_ANSWER")
		}
	}
	return errs.Err()
}

func validateOptions(errs model.ValidationErrors, path string, opts []OptionDefinition) {
	if len(opts) < 2 {
		errs.Add(path+".options", "min=2")
		return
	}
	correct := 0
	for j, o := range opts {
		if strings.TrimSpace(o.Text) == "" {
			errs.Add(fmt.Sprintf("%s.options[%d].text", path, j), "required")
		}
		if o.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		errs.Add(path+".options", "exactly_one_correct")
	}
}

// Build converts a validated definition into an exam and its ordered
// questions. IDs are left for the store to assign.
func (d Definition) Build(createdBy int64) (model.Exam, []model.Question) {
	exam := model.Exam{
		Title:       strings.TrimSpace(d.Title),
		Description: d.Description,
		Duration:    d.Duration,
		IsActive:    d.IsActive,
		CreatedBy:   createdBy,
	}
	questions := make([]model.Question, 0, len(d.Questions))
	for i, qd := range d.Questions {
		q := model.Question{Position: i, Text: qd.Text, Points: qd.Points}
		switch qd.Type {
		case model.QuestionMCQ:
			opts := make([]model.Option, 0, len(qd.Options))
			for _, od := range qd.Options {
				opts = append(opts, model.Option{Text: od.Text, IsCorrect: od.IsCorrect})
			}
			q.Body = model.MultipleChoice{Options: opts}
		case model.QuestionShortAnswer:
			q.Body = model.ShortAnswer{Keywords: append([]string{}, qd.Keywords...)}
		}
		questions = append(questions, q)
	}
	return exam, questions
}

// RequireNoSubmissions rejects changes to exams that have been attempted.
// Stores call it with the exam's submission count inside the transaction
// that performs the change.
func RequireNoSubmissions(submissions int) error {
	if submissions > 0 {
		return model.ErrExamHasSubmissions
	}
	return nil
}

// Store is the persistence the authoring service needs.
type Store interface {
	CreateExam(ctx context.Context, exam model.Exam, questions []model.Question) (model.Exam, error)
	ReplaceExam(ctx context.Context, id int64, exam model.Exam, questions []model.Question, guard func(int) error) (model.Exam, error)
	DeleteExam(ctx context.Context, id int64, guard func(int) error) error
	SetExamActive(ctx context.Context, id int64, active bool) (model.Exam, error)
	GetImportedFileHash(ctx context.Context, name string) (string, error)
	SetImportedFileHash(ctx context.Context, name, hash string) error
}

// Service creates, replaces and deletes exams.
type Service struct {
	store Store
}

// New creates a new Service.
func New(s Store) *Service {
	return &Service{store: s}
}

// Create validates def and stores it as a new exam owned by adminID.
func (s *Service) Create(ctx context.Context, adminID int64, def Definition) (model.Exam, error) {
	if err := Validate(def); err != nil {
		return model.Exam{}, err
	}
	exam, questions := def.Build(adminID)
	created, err := s.store.CreateExam(ctx, exam, questions)
	if err != nil {
		return model.Exam{}, fmt.Errorf("create exam: %w", err)
	}
	slog.Info("created exam", "exam_id", created.ID, "questions", len(questions), "by", adminID)
	return created, nil
}

// Update replaces the whole question tree of an exam. It fails with
// model.ErrExamHasSubmissions, leaving the exam untouched, once any
// student has started it.
func (s *Service) Update(ctx context.Context, examID int64, def Definition) (model.Exam, error) {
	if err := Validate(def); err != nil {
		return model.Exam{}, err
	}
	exam, questions := def.Build(0)
	updated, err := s.store.ReplaceExam(ctx, examID, exam, questions, RequireNoSubmissions)
	if err != nil {
		return model.Exam{}, fmt.Errorf("update exam %d: %w", examID, err)
	}
	slog.Info("updated exam", "exam_id", examID, "questions", len(questions))
	return updated, nil
}

// Delete removes an exam and its question tree. Exams with submissions
// are kept so graded history stays resolvable; deactivate them instead.
func (s *Service) Delete(ctx context.Context, examID int64) error {
	if err := s.store.DeleteExam(ctx, examID, RequireNoSubmissions); err != nil {
		return fmt.Errorf("delete exam %d: %w", examID, err)
	}
	slog.Info("deleted exam", "exam_id", examID)
	return nil
}

// SetActive opens or closes an exam for new starts. Unlike Update it is
// allowed after students have started the exam; submissions already in
// progress can still be completed.
func (s *Service) SetActive(ctx context.Context, examID int64, active bool) (model.Exam, error) {
	exam, err := s.store.SetExamActive(ctx, examID, active)
	if err != nil {
		return model.Exam{}, fmt.Errorf("set exam %d active: %w", examID, err)
	}
	slog.Info("changed exam availability", "exam_id", examID, "active", active)
	return exam, nil
}

// ImportResult reports what Import did with a file.
type ImportResult struct {
	// Skipped is set when the same file content was imported before.
	Skipped bool         `json:"skipped"`
	Exams   []model.Exam `json:"exams"`
}

// Import creates exams from a JSON array of definitions. Every definition
// is validated before any exam is stored. A file whose content hash matches
// the last import under the same name is skipped.
func (s *Service) Import(ctx context.Context, adminID int64, name string, data []byte) (ImportResult, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	stored, err := s.store.GetImportedFileHash(ctx, name)
	if err != nil {
		return ImportResult{}, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == hash {
		slog.Info("exam file unchanged, skipping", "name", name)
		return ImportResult{Skipped: true, Exams: []model.Exam{}}, nil
	}

	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return ImportResult{}, model.ValidationErrors{"file": "json"}
	}
	errs := model.ValidationErrors{}
	for i, def := range defs {
		var verrs model.ValidationErrors
		if err := Validate(def); err != nil && errors.As(err, &verrs) {
			for field, rule := range verrs {
				errs.Add(fmt.Sprintf("[%d].%s", i, field), rule)
			}
		}
	}
	if err := errs.Err(); err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{Exams: make([]model.Exam, 0, len(defs))}
	for _, def := range defs {
		exam, questions := def.Build(adminID)
		created, err := s.store.CreateExam(ctx, exam, questions)
		if err != nil {
			return res, fmt.Errorf("import %s: create exam %q: %w", name, def.Title, err)
		}
		res.Exams = append(res.Exams, created)
	}
	if err := s.store.SetImportedFileHash(ctx, name, hash); err != nil {
		return res, fmt.Errorf("record import for %s: %w", name, err)
	}
	slog.Info("imported exams", "name", name, "count", len(res.Exams), "by", adminID)
	return res, nil
}
