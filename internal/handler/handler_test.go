package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/model"
	"github.com/pavelanni/examdesk/internal/store"
	"github.com/pavelanni/examdesk/internal/visibility"
)

const testPassword = "password123"

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type testEnv struct {
	t   *testing.T
	srv *httptest.Server
	st  *store.Store
}

func newTestEnv(t *testing.T, cfg model.ServeConfig, fb FeedbackGenerator) *testEnv {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(New(st, fb, nil, cfg).Router())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, st: st}
}

func (e *testEnv) seedUser(username string, role model.UserRole) int64 {
	e.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		e.t.Fatalf("bcrypt: %v", err)
	}
	id, err := e.st.CreateUser(context.Background(), model.User{
		Username:     username,
		FullName:     strings.ToUpper(username),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		e.t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return id
}

type testClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func (e *testEnv) client() *testClient {
	e.t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		e.t.Fatalf("cookiejar: %v", err)
	}
	return &testClient{t: e.t, base: e.srv.URL, http: &http.Client{Jar: jar}}
}

// login returns a client holding a session cookie for username.
func (e *testEnv) login(username string) *testClient {
	e.t.Helper()
	c := e.client()
	status, body := c.do(http.MethodPost, "/api/login", map[string]string{
		"username": username,
		"password": testPassword,
	})
	if status != http.StatusOK {
		e.t.Fatalf("login %s: status %d: %s", username, status, body)
	}
	return c
}

// csrfToken returns the client's CSRF cookie, fetching one first if needed.
func (c *testClient) csrfToken() string {
	c.t.Helper()
	u, _ := url.Parse(c.base)
	for i := 0; i < 2; i++ {
		for _, ck := range c.http.Jar.Cookies(u) {
			if ck.Name == csrfCookieName {
				return ck.Value
			}
		}
		resp, err := c.http.Get(c.base + "/api/user")
		if err != nil {
			c.t.Fatalf("prime CSRF cookie: %v", err)
		}
		resp.Body.Close()
	}
	c.t.Fatal("no CSRF cookie issued")
	return ""
}

func (c *testClient) doRaw(method, path, contentType string, body io.Reader) (int, []byte) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		c.t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method != http.MethodGet {
		req.Header.Set(csrfHeaderName, c.csrfToken())
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func (c *testClient) do(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	return c.doRaw(method, path, "application/json", rdr)
}

func decodeBody[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func expectStatus(t *testing.T, got, want int, body []byte) {
	t.Helper()
	if got != want {
		t.Fatalf("status = %d, want %d: %s", got, want, body)
	}
}

// gravityExam is an active exam with one MCQ (B correct) and one short
// answer keyed on "gravity".
func gravityExam() map[string]any {
	return map[string]any{
		"title":    "Gravity",
		"duration": 10,
		"isActive": true,
		"questions": []map[string]any{
			{
				"text":   "Pick B",
				"type":   "MCQ",
				"points": 1,
				"options": []map[string]any{
					{"text": "A"},
					{"text": "B", "isCorrect": true},
				},
			},
			{
				"text":     "Why do apples fall?",
				"type":     "SHORT_ANSWER",
				"points":   1,
				"keywords": []string{"gravity"},
			},
		},
	}
}

// createExam posts gravityExam as admin and returns the author view.
func createExam(t *testing.T, admin *testClient) visibility.AuthorExam {
	t.Helper()
	status, body := admin.do(http.MethodPost, "/api/exams", gravityExam())
	expectStatus(t, status, http.StatusCreated, body)
	exam := decodeBody[model.Exam](t, body)

	status, body = admin.do(http.MethodGet, "/api/exams/"+itoa(exam.ID), nil)
	expectStatus(t, status, http.StatusOK, body)
	return decodeBody[visibility.AuthorExam](t, body)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func correctAnswers(exam visibility.AuthorExam) []map[string]any {
	var out []map[string]any
	for _, q := range exam.Questions {
		switch q.Type {
		case model.QuestionMCQ:
			for _, o := range q.Options {
				if o.IsCorrect {
					out = append(out, map[string]any{"questionId": q.ID, "selectedOptionId": o.ID})
				}
			}
		case model.QuestionShortAnswer:
			out = append(out, map[string]any{"questionId": q.ID, "textAnswer": "Because of Gravity."})
		}
	}
	return out
}

func startExam(t *testing.T, c *testClient, examID int64, want int) model.Submission {
	t.Helper()
	status, body := c.do(http.MethodPost, "/api/exams/"+itoa(examID)+"/start", nil)
	expectStatus(t, status, want, body)
	return decodeBody[model.Submission](t, body)
}

func TestUnauthenticated(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	c := env.client()

	status, body := c.do(http.MethodGet, "/api/exams", nil)
	expectStatus(t, status, http.StatusUnauthorized, body)
	resp := decodeBody[errorResponse](t, body)
	if resp.Message != "Please log in." {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestCSRFRequired(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("alice", model.UserRoleStudent)

	body := strings.NewReader(`{"username":"alice","password":"` + testPassword + `"}`)
	resp, err := http.Post(env.srv.URL+"/api/login", "application/json", body)
	if err != nil {
		t.Fatalf("POST /api/login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("alice", model.UserRoleStudent)
	bob := env.seedUser("bob", model.UserRoleStudent)
	if err := env.st.ToggleUserActive(context.Background(), bob); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		want     int
	}{
		{"wrong password", "alice", "nope-nope", http.StatusUnauthorized},
		{"unknown user", "carol", testPassword, http.StatusUnauthorized},
		{"disabled", "bob", testPassword, http.StatusForbidden},
		{"missing fields", "", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.client().do(http.MethodPost, "/api/login", map[string]string{
				"username": tt.username,
				"password": tt.password,
			})
			expectStatus(t, status, tt.want, body)
		})
	}
}

func TestLoginThrottle(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{LoginRate: 2}, nil)
	c := env.client()
	creds := map[string]string{"username": "ghost", "password": "whatever1"}

	for i := 0; i < 2; i++ {
		status, body := c.do(http.MethodPost, "/api/login", creds)
		expectStatus(t, status, http.StatusUnauthorized, body)
	}
	status, body := c.do(http.MethodPost, "/api/login", creds)
	expectStatus(t, status, http.StatusTooManyRequests, body)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	c := env.client()
	req := map[string]string{"username": "newbie", "password": testPassword, "fullName": "New Bie"}

	status, body := c.do(http.MethodPost, "/api/register", req)
	expectStatus(t, status, http.StatusCreated, body)
	user := decodeBody[model.User](t, body)
	if user.Role != model.UserRoleStudent {
		t.Errorf("role = %q, want STUDENT", user.Role)
	}
	if strings.Contains(string(body), "password") {
		t.Errorf("response leaks password hash: %s", body)
	}

	status, body = c.do(http.MethodPost, "/api/register", req)
	expectStatus(t, status, http.StatusBadRequest, body)

	status, body = c.do(http.MethodPost, "/api/register", map[string]string{"username": "x", "password": "short"})
	expectStatus(t, status, http.StatusBadRequest, body)
	verrs := decodeBody[errorResponse](t, body).Errors
	if verrs["username"] != "min=3" || verrs["password"] != "min=8" {
		t.Errorf("errors = %v", verrs)
	}

	student := env.login("newbie")
	status, body = student.do(http.MethodGet, "/api/notifications", nil)
	expectStatus(t, status, http.StatusOK, body)
	list := decodeBody[[]model.Notification](t, body)
	if len(list) != 1 || list[0].Type != model.NotificationWelcome {
		t.Fatalf("notifications = %+v, want one WELCOME", list)
	}
	if !strings.Contains(list[0].Message, "New Bie") {
		t.Errorf("welcome message = %q", list[0].Message)
	}
}

func TestExamVisibility(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	env.seedUser("alice", model.UserRoleStudent)
	admin := env.login("admin")
	exam := createExam(t, admin)

	status, body := admin.do(http.MethodGet, "/api/exams/"+itoa(exam.ID), nil)
	expectStatus(t, status, http.StatusOK, body)
	for _, key := range []string{`"isCorrect"`, `"keywords"`} {
		if !bytes.Contains(body, []byte(key)) {
			t.Errorf("admin view missing %s", key)
		}
	}

	student := env.login("alice")
	status, body = student.do(http.MethodGet, "/api/exams/"+itoa(exam.ID), nil)
	expectStatus(t, status, http.StatusOK, body)
	for _, key := range []string{`"isCorrect"`, `"keywords"`, "gravity"} {
		if bytes.Contains(body, []byte(key)) {
			t.Errorf("student view leaks %s: %s", key, body)
		}
	}
	view := decodeBody[visibility.StudentExam](t, body)
	if len(view.Questions) != 2 || len(view.Questions[0].Options) != 2 {
		t.Errorf("student view shape = %+v", view.Questions)
	}

	status, body = student.do(http.MethodGet, "/api/exams/9999", nil)
	expectStatus(t, status, http.StatusNotFound, body)
	status, body = student.do(http.MethodGet, "/api/exams/abc", nil)
	expectStatus(t, status, http.StatusBadRequest, body)
}

func TestAdminOnlyRoutes(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	env.seedUser("alice", model.UserRoleStudent)
	student := env.login("alice")

	status, body := student.do(http.MethodPost, "/api/exams", gravityExam())
	expectStatus(t, status, http.StatusForbidden, body)
	status, body = student.do(http.MethodGet, "/api/admin/users", nil)
	expectStatus(t, status, http.StatusForbidden, body)

	admin := env.login("admin")
	exam := createExam(t, admin)
	status, body = admin.do(http.MethodPost, "/api/exams/"+itoa(exam.ID)+"/start", nil)
	expectStatus(t, status, http.StatusForbidden, body)
}

func TestCreateExamValidation(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	admin := env.login("admin")

	def := gravityExam()
	def["title"] = ""
	def["questions"] = []map[string]any{{
		"text":    "No key",
		"type":    "MCQ",
		"points":  1,
		"options": []map[string]any{{"text": "A"}, {"text": "B"}},
	}}
	status, body := admin.do(http.MethodPost, "/api/exams", def)
	expectStatus(t, status, http.StatusBadRequest, body)
	verrs := decodeBody[errorResponse](t, body).Errors
	if verrs["title"] == "" {
		t.Errorf("errors = %v, want title error", verrs)
	}

	status, body = admin.doRaw(http.MethodPost, "/api/exams", "application/json", strings.NewReader("{"))
	expectStatus(t, status, http.StatusBadRequest, body)
}

func TestSubmitFlow(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	env.seedUser("alice", model.UserRoleStudent)
	env.seedUser("bob", model.UserRoleStudent)
	admin := env.login("admin")
	exam := createExam(t, admin)

	alice := env.login("alice")
	sub := startExam(t, alice, exam.ID, http.StatusCreated)
	if sub.Status != model.StatusInProgress {
		t.Fatalf("status = %q, want IN_PROGRESS", sub.Status)
	}
	again := startExam(t, alice, exam.ID, http.StatusOK)
	if again.ID != sub.ID {
		t.Errorf("resume returned submission %d, want %d", again.ID, sub.ID)
	}

	bob := env.login("bob")
	path := "/api/submissions/" + itoa(sub.ID)
	status, body := bob.do(http.MethodPost, path+"/submit", map[string]any{"answers": correctAnswers(exam)})
	expectStatus(t, status, http.StatusForbidden, body)
	status, body = bob.do(http.MethodGet, path, nil)
	expectStatus(t, status, http.StatusForbidden, body)

	status, body = alice.do(http.MethodPost, path+"/submit", map[string]any{"answers": correctAnswers(exam)})
	expectStatus(t, status, http.StatusOK, body)
	done := decodeBody[model.Submission](t, body)
	if done.Status != model.StatusCompleted || done.Score == nil || *done.Score != 100 || done.EndTime == nil {
		t.Fatalf("submission = %+v, want COMPLETED with score 100", done)
	}

	status, body = alice.do(http.MethodPost, path+"/submit", map[string]any{"answers": []any{}})
	expectStatus(t, status, http.StatusBadRequest, body)
	if msg := decodeBody[errorResponse](t, body).Message; msg != "This exam has already been submitted." {
		t.Errorf("message = %q", msg)
	}

	status, body = alice.do(http.MethodPost, "/api/submissions/9999/submit", map[string]any{"answers": []any{}})
	expectStatus(t, status, http.StatusNotFound, body)

	status, body = alice.do(http.MethodGet, path, nil)
	expectStatus(t, status, http.StatusOK, body)
	var got struct {
		model.Submission
		Exam    visibility.StudentExam `json:"exam"`
		Answers []model.Answer         `json:"answers"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Answers) != 2 || got.Exam.ID != exam.ID {
		t.Errorf("submission detail = %+v", got)
	}
	if bytes.Contains(body, []byte(`"keywords"`)) {
		t.Errorf("student submission view leaks keywords")
	}

	status, body = alice.do(http.MethodGet, "/api/submissions", nil)
	expectStatus(t, status, http.StatusOK, body)
	if list := decodeBody[[]model.SubmissionWithExam](t, body); len(list) != 1 || list[0].Exam == nil || list[0].Exam.Title != "Gravity" {
		t.Errorf("alice submissions = %+v", list)
	}
	status, body = bob.do(http.MethodGet, "/api/submissions", nil)
	expectStatus(t, status, http.StatusOK, body)
	if list := decodeBody[[]model.SubmissionWithExam](t, body); len(list) != 0 {
		t.Errorf("bob submissions = %+v, want none", list)
	}
	status, body = admin.do(http.MethodGet, "/api/submissions", nil)
	expectStatus(t, status, http.StatusOK, body)
	if list := decodeBody[[]model.SubmissionWithExam](t, body); len(list) != 1 {
		t.Errorf("admin submissions = %d, want 1", len(list))
	}
}

func TestEditGuard(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	env.seedUser("alice", model.UserRoleStudent)
	admin := env.login("admin")
	exam := createExam(t, admin)
	path := "/api/exams/" + itoa(exam.ID)

	def := gravityExam()
	def["title"] = "Gravity, revised"
	status, body := admin.do(http.MethodPut, path, def)
	expectStatus(t, status, http.StatusOK, body)
	if got := decodeBody[model.Exam](t, body); got.Title != "Gravity, revised" {
		t.Errorf("title = %q", got.Title)
	}

	status, body = admin.do(http.MethodGet, path, nil)
	expectStatus(t, status, http.StatusOK, body)
	exam = decodeBody[visibility.AuthorExam](t, body)
	startExam(t, env.login("alice"), exam.ID, http.StatusCreated)

	def["title"] = "Too late"
	status, body = admin.do(http.MethodPut, path, def)
	expectStatus(t, status, http.StatusBadRequest, body)
	status, body = admin.do(http.MethodDelete, path, nil)
	expectStatus(t, status, http.StatusBadRequest, body)

	status, body = admin.do(http.MethodGet, path, nil)
	expectStatus(t, status, http.StatusOK, body)
	if got := decodeBody[visibility.AuthorExam](t, body); got.Title != "Gravity, revised" || len(got.Questions) != 2 {
		t.Errorf("exam changed after guarded edit: %+v", got)
	}
}

func TestDeleteExam(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	admin := env.login("admin")
	exam := createExam(t, admin)
	path := "/api/exams/" + itoa(exam.ID)

	status, body := admin.do(http.MethodDelete, path, nil)
	expectStatus(t, status, http.StatusOK, body)
	status, body = admin.do(http.MethodGet, path, nil)
	expectStatus(t, status, http.StatusNotFound, body)
}

func TestStartInactiveExam(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	env.seedUser("alice", model.UserRoleStudent)
	admin := env.login("admin")

	def := gravityExam()
	def["isActive"] = false
	status, body := admin.do(http.MethodPost, "/api/exams", def)
	expectStatus(t, status, http.StatusCreated, body)
	exam := decodeBody[model.Exam](t, body)

	alice := env.login("alice")
	status, body = alice.do(http.MethodPost, "/api/exams/"+itoa(exam.ID)+"/start", nil)
	expectStatus(t, status, http.StatusBadRequest, body)

	status, body = alice.do(http.MethodGet, "/api/exams/"+itoa(exam.ID), nil)
	expectStatus(t, status, http.StatusNotFound, body)
	status, body = admin.do(http.MethodGet, "/api/exams/"+itoa(exam.ID), nil)
	expectStatus(t, status, http.StatusOK, body)
}

func TestDeactivateStartedExam(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	env.seedUser("alice", model.UserRoleStudent)
	env.seedUser("bob", model.UserRoleStudent)
	admin := env.login("admin")
	exam := createExam(t, admin)
	path := "/api/exams/" + itoa(exam.ID)

	alice := env.login("alice")
	sub := startExam(t, alice, exam.ID, http.StatusCreated)

	def := gravityExam()
	def["isActive"] = false
	status, body := admin.do(http.MethodPut, path, def)
	expectStatus(t, status, http.StatusBadRequest, body)

	status, body = admin.do(http.MethodPost, path+"/active", map[string]any{})
	expectStatus(t, status, http.StatusBadRequest, body)
	status, body = alice.do(http.MethodPost, path+"/active", map[string]any{"isActive": false})
	expectStatus(t, status, http.StatusForbidden, body)
	status, body = admin.do(http.MethodPost, "/api/exams/9999/active", map[string]any{"isActive": false})
	expectStatus(t, status, http.StatusNotFound, body)

	status, body = admin.do(http.MethodPost, path+"/active", map[string]any{"isActive": false})
	expectStatus(t, status, http.StatusOK, body)
	if got := decodeBody[model.Exam](t, body); got.IsActive {
		t.Fatalf("exam still active: %+v", got)
	}

	status, body = admin.do(http.MethodGet, path, nil)
	expectStatus(t, status, http.StatusOK, body)
	if got := decodeBody[visibility.AuthorExam](t, body); got.IsActive || len(got.Questions) != 2 {
		t.Errorf("exam after deactivation = %+v", got)
	}

	bob := env.login("bob")
	status, body = bob.do(http.MethodPost, path+"/start", nil)
	expectStatus(t, status, http.StatusBadRequest, body)
	status, body = bob.do(http.MethodGet, path, nil)
	expectStatus(t, status, http.StatusNotFound, body)

	status, body = alice.do(http.MethodGet, path, nil)
	expectStatus(t, status, http.StatusOK, body)
	status, body = alice.do(http.MethodPost, "/api/submissions/"+itoa(sub.ID)+"/submit", map[string]any{"answers": correctAnswers(exam)})
	expectStatus(t, status, http.StatusOK, body)

	status, body = admin.do(http.MethodPost, path+"/active", map[string]any{"isActive": true})
	expectStatus(t, status, http.StatusOK, body)
	startExam(t, bob, exam.ID, http.StatusCreated)
}

func TestSubmitIgnoresUnknownQuestion(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	env.seedUser("alice", model.UserRoleStudent)
	exam := createExam(t, env.login("admin"))

	alice := env.login("alice")
	sub := startExam(t, alice, exam.ID, http.StatusCreated)
	answers := append(correctAnswers(exam),
		map[string]any{"questionId": 0, "textAnswer": "stray"},
		map[string]any{"questionId": 9999, "textAnswer": "stray"},
	)
	status, body := alice.do(http.MethodPost, "/api/submissions/"+itoa(sub.ID)+"/submit", map[string]any{"answers": answers})
	expectStatus(t, status, http.StatusOK, body)
	if done := decodeBody[model.Submission](t, body); done.Score == nil || *done.Score != 100 {
		t.Errorf("submission = %+v, want score 100", done)
	}
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	env.seedUser("alice", model.UserRoleStudent)
	admin := env.login("admin")
	alice := env.login("alice")

	exam := createExam(t, admin)
	sub := startExam(t, alice, exam.ID, http.StatusCreated)
	status, body := alice.do(http.MethodPost, "/api/submissions/"+itoa(sub.ID)+"/submit", map[string]any{"answers": correctAnswers(exam)})
	expectStatus(t, status, http.StatusOK, body)

	status, body = alice.do(http.MethodGet, "/api/notifications", nil)
	expectStatus(t, status, http.StatusOK, body)
	list := decodeBody[[]model.Notification](t, body)
	if len(list) != 2 {
		t.Fatalf("notifications = %+v, want 2", list)
	}
	if list[0].Type != model.NotificationResult || list[1].Type != model.NotificationNewExam {
		t.Errorf("types = %s, %s; want RESULT, NEW_EXAM", list[0].Type, list[1].Type)
	}
	if !strings.Contains(list[0].Message, "100%") {
		t.Errorf("result message = %q", list[0].Message)
	}
	if !strings.Contains(list[1].Message, "2 questions") {
		t.Errorf("new exam message = %q", list[1].Message)
	}

	status, body = admin.do(http.MethodGet, "/api/notifications", nil)
	expectStatus(t, status, http.StatusOK, body)
	if got := decodeBody[[]model.Notification](t, body); len(got) != 0 {
		t.Errorf("admin notifications = %+v, want none", got)
	}

	status, body = alice.do(http.MethodPost, "/api/notifications/"+itoa(list[0].ID)+"/read", nil)
	expectStatus(t, status, http.StatusOK, body)
	status, body = admin.do(http.MethodPost, "/api/notifications/"+itoa(list[1].ID)+"/read", nil)
	expectStatus(t, status, http.StatusNotFound, body)

	unread := func() int {
		status, body := alice.do(http.MethodGet, "/api/notifications/unread-count", nil)
		expectStatus(t, status, http.StatusOK, body)
		return decodeBody[map[string]int](t, body)["count"]
	}
	if n := unread(); n != 1 {
		t.Errorf("unread = %d, want 1", n)
	}
	status, body = alice.do(http.MethodPost, "/api/notifications/read-all", nil)
	expectStatus(t, status, http.StatusOK, body)
	if n := unread(); n != 0 {
		t.Errorf("unread after read-all = %d, want 0", n)
	}
}

type fakeFeedback struct {
	calls int
	err   error
}

func (f *fakeFeedback) Feedback(_ context.Context, q model.Question, a model.Answer) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "Good mention of gravity.", nil
}

func TestFeedback(t *testing.T) {
	fb := &fakeFeedback{}
	env := newTestEnv(t, model.ServeConfig{}, fb)
	env.seedUser("admin", model.UserRoleAdmin)
	env.seedUser("alice", model.UserRoleStudent)
	admin := env.login("admin")
	alice := env.login("alice")
	exam := createExam(t, admin)
	sub := startExam(t, alice, exam.ID, http.StatusCreated)
	path := "/api/submissions/" + itoa(sub.ID)

	status, body := admin.do(http.MethodPost, path+"/feedback", nil)
	expectStatus(t, status, http.StatusBadRequest, body)

	status, body = alice.do(http.MethodPost, path+"/submit", map[string]any{"answers": correctAnswers(exam)})
	expectStatus(t, status, http.StatusOK, body)

	status, body = admin.do(http.MethodPost, path+"/feedback", nil)
	expectStatus(t, status, http.StatusOK, body)
	answers := decodeBody[[]model.Answer](t, body)
	if fb.calls != 1 {
		t.Errorf("feedback calls = %d, want 1 (short answers only)", fb.calls)
	}
	withFeedback := 0
	for _, a := range answers {
		if a.Feedback != "" {
			withFeedback++
		}
	}
	if withFeedback != 1 {
		t.Errorf("answers with feedback = %d, want 1", withFeedback)
	}

	stored, err := env.st.ListAnswers(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	found := false
	for _, a := range stored {
		if a.Feedback == "Good mention of gravity." {
			found = true
		}
	}
	if !found {
		t.Error("feedback not persisted")
	}

	fb.err = errors.New("model down")
	status, body = admin.do(http.MethodPost, path+"/feedback", nil)
	expectStatus(t, status, http.StatusOK, body)
}

func TestFeedbackDisabled(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	admin := env.login("admin")

	status, body := admin.do(http.MethodPost, "/api/submissions/1/feedback", nil)
	expectStatus(t, status, http.StatusServiceUnavailable, body)
}

func TestAdminUsers(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	adminID := env.seedUser("admin", model.UserRoleAdmin)
	admin := env.login("admin")

	status, body := admin.do(http.MethodPost, "/api/admin/users", map[string]string{
		"username": "proctor",
		"password": testPassword,
		"role":     "ADMIN",
	})
	expectStatus(t, status, http.StatusCreated, body)
	created := decodeBody[model.User](t, body)

	status, body = admin.do(http.MethodPost, "/api/admin/users", map[string]string{
		"username": "someone",
		"password": testPassword,
		"role":     "ROOT",
	})
	expectStatus(t, status, http.StatusBadRequest, body)

	status, body = admin.do(http.MethodGet, "/api/admin/users", nil)
	expectStatus(t, status, http.StatusOK, body)
	if users := decodeBody[[]model.User](t, body); len(users) != 2 {
		t.Errorf("users = %d, want 2", len(users))
	}

	status, body = admin.do(http.MethodPost, "/api/admin/users/"+itoa(created.ID)+"/toggle", nil)
	expectStatus(t, status, http.StatusOK, body)
	if u := decodeBody[model.User](t, body); u.Active {
		t.Error("user still active after toggle")
	}
	status, body = admin.do(http.MethodPost, "/api/admin/users/"+itoa(adminID)+"/toggle", nil)
	expectStatus(t, status, http.StatusForbidden, body)

	status, body = env.client().do(http.MethodPost, "/api/login", map[string]string{
		"username": "proctor",
		"password": testPassword,
	})
	expectStatus(t, status, http.StatusForbidden, body)
}

func TestImportExams(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)
	env.seedUser("admin", model.UserRoleAdmin)
	admin := env.login("admin")

	upload := func(content []byte) (int, []byte) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("exams_file", "physics.json")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(content)
		mw.Close()
		return admin.doRaw(http.MethodPost, "/api/admin/exams/import", mw.FormDataContentType(), &buf)
	}

	file := mustJSON([]map[string]any{gravityExam()})
	status, body := upload(file)
	expectStatus(t, status, http.StatusOK, body)
	res := decodeBody[struct {
		Skipped bool         `json:"skipped"`
		Exams   []model.Exam `json:"exams"`
	}](t, body)
	if res.Skipped || len(res.Exams) != 1 {
		t.Fatalf("first import = %+v", res)
	}

	status, body = upload(file)
	expectStatus(t, status, http.StatusOK, body)
	if !bytes.Contains(body, []byte(`"skipped":true`)) {
		t.Errorf("second import not skipped: %s", body)
	}

	status, body = upload([]byte(`not json`))
	expectStatus(t, status, http.StatusBadRequest, body)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, model.ServeConfig{}, nil)

	resp, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Contains(data, []byte("examdesk_http_requests_total")) {
		t.Errorf("metrics output missing request counter")
	}
}
