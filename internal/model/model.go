package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent takes exams.
	UserRoleStudent UserRole = "STUDENT"
	// UserRoleAdmin authors exams and sees every submission.
	UserRoleAdmin UserRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == UserRoleStudent || r == UserRoleAdmin
}

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// SubmissionStatus represents the state of a student's attempt.
// A missing submission row is the implicit not-started state.
type SubmissionStatus string

const (
	StatusInProgress SubmissionStatus = "IN_PROGRESS"
	StatusCompleted  SubmissionStatus = "COMPLETED"
)

// Exam is an authored, timed assessment.
type Exam struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"` // minutes
	IsActive    bool      `json:"isActive"`
	CreatedBy   int64     `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ExamDetail is an exam with its ordered question tree, answer keys included.
type ExamDetail struct {
	Exam
	Questions []Question
}

// Question returns the question with the given ID.
func (d ExamDetail) Question(id int64) (Question, bool) {
	for _, q := range d.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Submission is one student's attempt at one exam.
type Submission struct {
	ID        int64            `json:"id"`
	ExamID    int64            `json:"examId"`
	StudentID int64            `json:"studentId"`
	StartTime time.Time        `json:"startTime"`
	EndTime   *time.Time       `json:"endTime"`
	Score     *int             `json:"score"`
	Status    SubmissionStatus `json:"status"`
	Late      bool             `json:"late"`
}

// Answer is a student's response to one question. Answers are written once,
// in bulk, when the submission completes.
type Answer struct {
	ID               int64   `json:"id"`
	SubmissionID     int64   `json:"submissionId"`
	QuestionID       int64   `json:"questionId"`
	SelectedOptionID *int64  `json:"selectedOptionId,omitempty"`
	TextAnswer       *string `json:"textAnswer,omitempty"`
	IsCorrect        *bool   `json:"isCorrect"`
	PointsAwarded    int     `json:"pointsAwarded"`
	Feedback         string  `json:"feedback,omitempty"`
}

// Completion is everything written atomically when a submission is graded.
type Completion struct {
	SubmissionID int64
	Score        int
	EndTime      time.Time
	Late         bool
	Answers      []Answer
}

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationWelcome NotificationType = "WELCOME"
	NotificationNewExam NotificationType = "NEW_EXAM"
	NotificationResult  NotificationType = "RESULT"
	NotificationSystem  NotificationType = "SYSTEM"
)

// Notification is a message shown in a user's notification list.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"userId"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// SubmissionWithExam pairs a submission with its exam metadata for listings.
type SubmissionWithExam struct {
	Submission
	Exam *Exam `json:"exam"`
}

// ServeConfig holds runtime parameters set via CLI flags.
type ServeConfig struct {
	Lang          string        // Default language when a request asks for none we support
	SecureCookies bool          // Set Secure flag on cookies (disable for local dev)
	LatePolicy    LatePolicy    // What to do with submissions past the duration
	LateGrace     time.Duration // Allowance on top of the exam duration
	LoginRate     int           // Login attempts per minute per client, 0 disables
}

// LatePolicy decides how submissions past the exam duration are treated.
type LatePolicy string

const (
	// LateAccept stores late submissions and flags them.
	LateAccept LatePolicy = "accept"
	// LateReject refuses late submissions.
	LateReject LatePolicy = "reject"
)

// Valid reports whether p is a known policy.
func (p LatePolicy) Valid() bool {
	return p == LateAccept || p == LateReject
}
