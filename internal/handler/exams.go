package handler

import (
	"net/http"

	"github.com/pavelanni/examdesk/internal/authoring"
	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/model"
	"github.com/pavelanni/examdesk/internal/visibility"
)

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListExams(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

// handleGetExam returns the exam with its questions, answer keys removed
// unless the caller is an admin. Students only see an inactive exam if
// they have a submission for it.
func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	detail, err := h.store.GetExamDetail(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user := model.UserFromContext(r.Context())
	if !detail.IsActive && user.Role != model.UserRoleAdmin {
		started, err := h.store.HasSubmission(r.Context(), id, user.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !started {
			h.fail(w, r, model.ErrNotFound)
			return
		}
	}
	writeJSON(w, http.StatusOK, visibility.ForRole(detail, user.Role))
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var def authoring.Definition
	if err := h.decode(w, r, &def); err != nil {
		h.fail(w, r, err)
		return
	}
	admin := model.UserFromContext(r.Context())
	exam, err := h.authoring.Create(r.Context(), admin.ID, def)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if exam.IsActive {
		h.announceExam(r, exam, len(def.Questions))
	}
	writeJSON(w, http.StatusCreated, exam)
}

func (h *Handler) handleUpdateExam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var def authoring.Definition
	if err := h.decode(w, r, &def); err != nil {
		h.fail(w, r, err)
		return
	}
	exam, err := h.authoring.Update(r.Context(), id, def)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

type activeRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// handleSetExamActive opens or closes an exam without touching its
// questions, so it works on exams students have already started.
func (h *Handler) handleSetExamActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req activeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	before, err := h.store.GetExam(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	exam, err := h.authoring.SetActive(r.Context(), id, *req.IsActive)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if exam.IsActive && !before.IsActive {
		h.announceExam(r, exam, 0)
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.authoring.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, r, http.StatusOK, "ExamDeleted")
}

// handleStartExam returns 201 with a new submission, or 200 with the
// student's IN_PROGRESS one.
func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	student := model.UserFromContext(r.Context())
	sub, created, err := h.sessions.Start(r.Context(), id, student.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sub)
}

// announceExam notifies every active student about a newly opened exam.
func (h *Handler) announceExam(r *http.Request, exam model.Exam, questions int) {
	msg := appI18n.Td(r.Context(), "NewExamMessage", map[string]any{"Title": exam.Title})
	if questions > 0 {
		msg += " " + appI18n.Tp(r.Context(), "QuestionsCount", questions)
	}
	h.notifyRole(r, model.UserRoleStudent, appI18n.T(r.Context(), "NewExamTitle"), msg, model.NotificationNewExam)
}
