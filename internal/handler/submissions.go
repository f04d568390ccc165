package handler

import (
	"log/slog"
	"net/http"

	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/model"
	"github.com/pavelanni/examdesk/internal/visibility"
)

type answerRequest struct {
	QuestionID       int64   `json:"questionId"`
	SelectedOptionID *int64  `json:"selectedOptionId"`
	TextAnswer       *string `json:"textAnswer"`
}

type submitRequest struct {
	Answers []answerRequest `json:"answers" validate:"dive"`
}

type submissionResponse struct {
	model.Submission
	Exam    any            `json:"exam"`
	Answers []model.Answer `json:"answers"`
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var studentID int64
	if user.Role != model.UserRoleAdmin {
		studentID = user.ID
	}
	subs, err := h.store.ListSubmissions(r.Context(), studentID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// loadSubmission fetches a submission the caller may see: its owner or an
// admin.
func (h *Handler) loadSubmission(r *http.Request) (model.Submission, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return model.Submission{}, err
	}
	sub, err := h.store.GetSubmission(r.Context(), id)
	if err != nil {
		return model.Submission{}, err
	}
	user := model.UserFromContext(r.Context())
	if user.Role != model.UserRoleAdmin && sub.StudentID != user.ID {
		return model.Submission{}, model.ErrForbidden
	}
	return sub, nil
}

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.loadSubmission(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	detail, err := h.store.GetExamDetail(r.Context(), sub.ExamID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	answers, err := h.store.ListAnswers(r.Context(), sub.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user := model.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, submissionResponse{
		Submission: sub,
		Exam:       visibility.ForRole(detail, user.Role),
		Answers:    answers,
	})
}

// handleSubmit grades and completes the caller's submission. Explicit and
// timer-driven submits both land here.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req submitRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	answers := make([]model.Answer, 0, len(req.Answers))
	for _, a := range req.Answers {
		answers = append(answers, model.Answer{
			QuestionID:       a.QuestionID,
			SelectedOptionID: a.SelectedOptionID,
			TextAnswer:       a.TextAnswer,
		})
	}

	student := model.UserFromContext(r.Context())
	out, err := h.sessions.Submit(r.Context(), id, student.ID, answers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.ObserveCompletion(out.Result.Score, out.Submission.Late)

	title := ""
	if exam, err := h.store.GetExam(r.Context(), out.Submission.ExamID); err == nil {
		title = exam.Title
	}
	h.notify(r, model.Notification{
		UserID: student.ID,
		Title:  appI18n.T(r.Context(), "ResultTitle"),
		Message: appI18n.Td(r.Context(), "ResultMessage", map[string]any{
			"Score": out.Result.Score,
			"Title": title,
		}),
		Type: model.NotificationResult,
	})
	writeJSON(w, http.StatusOK, out.Submission)
}

// handleFeedback asks the feedback model to comment on every short answer
// of a completed submission and stores the text on each answer.
func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if h.feedback == nil {
		h.fail(w, r, model.ErrLLMDisabled)
		return
	}
	sub, err := h.loadSubmission(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sub.Status != model.StatusCompleted {
		h.fail(w, r, model.ErrSubmissionOpen)
		return
	}
	detail, err := h.store.GetExamDetail(r.Context(), sub.ExamID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	answers, err := h.store.ListAnswers(r.Context(), sub.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	for i, a := range answers {
		q, ok := detail.Question(a.QuestionID)
		if !ok || q.Type() != model.QuestionShortAnswer {
			continue
		}
		text, err := h.feedback.Feedback(r.Context(), q, a)
		if err != nil {
			slog.Error("feedback generation failed", "submission_id", sub.ID, "answer_id", a.ID, "error", err)
			continue
		}
		if err := h.store.SetAnswerFeedback(r.Context(), a.ID, text); err != nil {
			h.fail(w, r, err)
			return
		}
		answers[i].Feedback = text
	}
	writeJSON(w, http.StatusOK, answers)
}
