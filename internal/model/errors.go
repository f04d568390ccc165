package model

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadySubmitted   = errors.New("submission already completed")
	ErrExamHasSubmissions = errors.New("exam already has student submissions")
	ErrExamInactive       = errors.New("exam is not active")
	ErrTimeExpired        = errors.New("exam time limit exceeded")
	ErrSubmissionOpen     = errors.New("submission is still in progress")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrLLMDisabled        = errors.New("feedback model not configured")
)

// ValidationErrors maps a request field path to the rule it broke.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field error, keeping the first one reported for a field.
func (v ValidationErrors) Add(field, rule string) {
	if _, ok := v[field]; !ok {
		v[field] = rule
	}
}

// Err returns v as an error, or nil when empty.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
