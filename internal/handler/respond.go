package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/model"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeMessage writes a localized error body.
func writeMessage(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorResponse{Message: appI18n.T(r.Context(), msgID)})
}

// fail maps a service error onto its HTTP status and a localized body.
// Unknown errors are logged and reported as a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verrs model.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Message: appI18n.T(r.Context(), "ValidationFailed"),
			Errors:  verrs,
		})
	case errors.Is(err, model.ErrAlreadySubmitted):
		writeMessage(w, r, http.StatusBadRequest, "AlreadySubmitted")
	case errors.Is(err, model.ErrExamHasSubmissions):
		writeMessage(w, r, http.StatusBadRequest, "ExamHasSubmissions")
	case errors.Is(err, model.ErrExamInactive):
		writeMessage(w, r, http.StatusBadRequest, "ExamInactive")
	case errors.Is(err, model.ErrTimeExpired):
		writeMessage(w, r, http.StatusBadRequest, "TimeExpired")
	case errors.Is(err, model.ErrSubmissionOpen):
		writeMessage(w, r, http.StatusBadRequest, "SubmissionInProgress")
	case errors.Is(err, model.ErrDuplicateUsername):
		writeMessage(w, r, http.StatusBadRequest, "DuplicateUsername")
	case errors.Is(err, model.ErrForbidden):
		writeMessage(w, r, http.StatusForbidden, "Forbidden")
	case errors.Is(err, model.ErrNotFound):
		writeMessage(w, r, http.StatusNotFound, "NotFound")
	case errors.Is(err, model.ErrLLMDisabled):
		writeMessage(w, r, http.StatusServiceUnavailable, "FeedbackDisabled")
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeMessage(w, r, http.StatusInternalServerError, "InternalError")
	}
}

// decode reads a JSON body into dst and runs its validate tags. Field
// errors are keyed by JSON path, e.g. "questions[0].options[1].text".
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return model.ValidationErrors{"body": "required"}
		}
		return model.ValidationErrors{"body": "json"}
	}
	return h.check(dst)
}

func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := model.ValidationErrors{}
	for _, fe := range fieldErrs {
		out.Add(fieldPath(fe.Namespace()), rule(fe))
	}
	return out
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func rule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.ValidationErrors{name: "numeric"}
	}
	return id, nil
}
