package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/pavelanni/examdesk/internal/model"
)

type createUserRequest struct {
	Username string         `json:"username" validate:"required,min=3,max=64"`
	Password string         `json:"password" validate:"required,min=8"`
	FullName string         `json:"fullName" validate:"max=200"`
	Email    string         `json:"email" validate:"omitempty,email"`
	Role     model.UserRole `json:"role" validate:"required,oneof=ADMIN STUDENT"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.createUser(r, req.Username, req.Password, req.FullName, req.Email, req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleToggleUserActive flips a user's active flag. Admins cannot disable
// themselves.
func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if me := model.UserFromContext(r.Context()); me != nil && me.ID == id {
		h.fail(w, r, model.ErrForbidden)
		return
	}
	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if user == nil {
		h.fail(w, r, model.ErrNotFound)
		return
	}
	slog.Info("toggled user active", "id", id, "active", user.Active)
	writeJSON(w, http.StatusOK, user)
}

// handleImportExams creates exams from an uploaded JSON file of exam
// definitions, sent as the multipart field "exams_file".
func (h *Handler) handleImportExams(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		h.fail(w, r, model.ValidationErrors{"exams_file": "max=10MB"})
		return
	}
	file, header, err := r.FormFile("exams_file")
	if err != nil {
		h.fail(w, r, model.ValidationErrors{"exams_file": "required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	admin := model.UserFromContext(r.Context())
	res, err := h.authoring.Import(r.Context(), admin.ID, filepath.Base(header.Filename), data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, exam := range res.Exams {
		if exam.IsActive {
			h.announceExam(r, exam, 0)
		}
	}
	writeJSON(w, http.StatusOK, res)
}
