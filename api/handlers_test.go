package api

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"

	"github.com/Adibmaros/tasks-management/domain"
	"github.com/Adibmaros/tasks-management/realtime"
	"github.com/Adibmaros/tasks-management/storage"
)

const testPassword = "hunter22"

type hubSink struct{ hub *realtime.Hub }

func (h hubSink) Publish(_ context.Context, events []realtime.Event) {
	for _, ev := range events {
		h.hub.Broadcast(ev)
	}
}

type testServer struct {
	e     *echo.Echo
	store *storage.Storage
	auth  *Auth
	hub   *realtime.Hub
	user  domain.User
	token string
}

func newTestServer(t *testing.T, opts ...func(*Deps)) *testServer {
	t.Helper()
	store, err := storage.New(storage.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger, _ := test.NewNullLogger()
	hub := realtime.NewHub(logger)
	store.SetChangeSink(hubSink{hub: hub})
	auth := NewAuth([]byte("jwt-secret"), "taskboard", time.Hour)

	deps := Deps{
		Store:         store,
		Auth:          auth,
		Feed:          hub,
		SessionSecret: []byte("session-secret-for-tests"),
		PingInterval:  20 * time.Millisecond,
		Log:           logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	e := echo.New()
	Register(e, deps)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user, err := store.CreateUser(context.Background(), "Ada", "ada@example.com", string(hash))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, _, err := auth.Issue(user.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &testServer{e: e, store: store, auth: auth, hub: hub, user: user, token: token}
}

type requestOption func(*http.Request)

func withToken(token string) requestOption {
	return func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer "+token) }
}

func withCookies(cookies []*http.Cookie) requestOption {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (s *testServer) do(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := sonic.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) authed(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, path, body, append([]requestOption{withToken(s.token)}, opts...)...)
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	expectStatus(t, rec, status)
	body := decodeResponse[errorBody](t, rec)
	if body.Error != msg {
		t.Fatalf("expected error %q, got %q", msg, body.Error)
	}
}

func (s *testServer) createTask(t *testing.T, name string, status domain.Status) domain.Task {
	t.Helper()
	rec := s.authed(t, http.MethodPost, "/api/tasks", map[string]any{"name": name, "userId": s.user.ID, "status": status})
	expectStatus(t, rec, http.StatusCreated)
	return decodeResponse[domain.Task](t, rec)
}

func TestRegisterAndDuplicateEmail(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", registerRequest{Name: "Bob", Email: "Bob@Example.com", Password: "pw"})
	expectStatus(t, rec, http.StatusCreated)
	user := decodeResponse[userResponse](t, rec)
	if user.ID == 0 || user.Email != "bob@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/auth/register", registerRequest{Name: "Bob", Email: "bob@example.com", Password: "pw"})
	expectError(t, rec, http.StatusBadRequest, "Email already in use.")

	rec = s.do(t, http.MethodPost, "/api/auth/register", registerRequest{Email: "x@example.com"})
	expectError(t, rec, http.StatusBadRequest, "Name, email, and password are required.")
}

func TestLoginSessionAndLogout(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "ada@example.com", Password: "wrong"})
	expectError(t, rec, http.StatusUnauthorized, "Invalid email or password.")

	rec = s.do(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "nobody@example.com", Password: testPassword})
	expectError(t, rec, http.StatusUnauthorized, "Invalid email or password.")

	rec = s.do(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "ada@example.com", Password: testPassword})
	expectStatus(t, rec, http.StatusOK)
	resp := decodeResponse[loginResponse](t, rec)
	if resp.ID != s.user.ID || resp.Token == "" || resp.Message != "Login successful" {
		t.Fatalf("unexpected login response %+v", resp)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("expected session cookie")
	}

	rec = s.do(t, http.MethodGet, "/api/auth/me", nil, withCookies(cookies))
	expectStatus(t, rec, http.StatusOK)
	if me := decodeResponse[userResponse](t, rec); me.Email != "ada@example.com" {
		t.Fatalf("unexpected current user %+v", me)
	}

	if id, err := s.auth.UserIDFromBearer(resp.Token); err != nil || id != s.user.ID {
		t.Fatalf("issued token does not verify: %d %v", id, err)
	}

	rec = s.do(t, http.MethodPost, "/api/auth/logout", nil, withCookies(cookies))
	expectStatus(t, rec, http.StatusOK)
	cleared := rec.Result().Cookies()
	rec = s.do(t, http.MethodGet, "/api/auth/me", nil, withCookies(cleared))
	expectError(t, rec, http.StatusUnauthorized, "Unauthorized. Please log in.")
}

func TestRoutesRequireAuthentication(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/tasks/user/%d", s.user.ID), nil)
	expectError(t, rec, http.StatusUnauthorized, "Unauthorized. Please log in.")

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/tasks/user/%d", s.user.ID), nil, withToken("not.a.token"))
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)

	rec := s.authed(t, http.MethodPost, "/api/auth/change-password", changePasswordRequest{OldPassword: "nope", NewPassword: "new-pass"})
	expectError(t, rec, http.StatusUnauthorized, "Old password is incorrect.")

	rec = s.authed(t, http.MethodPost, "/api/auth/change-password", changePasswordRequest{OldPassword: testPassword})
	expectError(t, rec, http.StatusBadRequest, "Old password and new password are required.")

	rec = s.authed(t, http.MethodPost, "/api/auth/change-password", changePasswordRequest{OldPassword: testPassword, NewPassword: "new-pass"})
	expectStatus(t, rec, http.StatusOK)
	if msg := decodeResponse[messageResponse](t, rec); msg.Message != "Password changed successfully." {
		t.Fatalf("unexpected message %q", msg.Message)
	}

	rec = s.do(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "ada@example.com", Password: "new-pass"})
	expectStatus(t, rec, http.StatusOK)
}

func TestCreateTaskAssignsPositions(t *testing.T) {
	s := newTestServer(t)

	first := s.createTask(t, "a", domain.StatusPlan)
	second := s.createTask(t, "b", "")
	if first.Position != 0 || second.Position != 1 || second.Status != domain.StatusPlan {
		t.Fatalf("unexpected positions %d/%d status %s", first.Position, second.Position, second.Status)
	}

	doing := s.createTask(t, "c", domain.StatusDoing)
	if doing.Position != 0 {
		t.Fatalf("expected first DOING task at 0, got %d", doing.Position)
	}

	rec := s.authed(t, http.MethodPost, "/api/tasks", map[string]any{"userId": s.user.ID})
	expectError(t, rec, http.StatusBadRequest, "name is required")

	rec = s.authed(t, http.MethodPost, "/api/tasks", map[string]any{"name": "x", "userId": s.user.ID + 99})
	expectStatus(t, rec, http.StatusNotFound)

	rec = s.authed(t, http.MethodPost, "/api/tasks", []byte("{"))
	expectError(t, rec, http.StatusBadRequest, "invalid body")
}

func TestCreateTaskAcceptsGzipBody(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(`{"name":"zipped"}`)); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	rec := s.authed(t, http.MethodPost, "/api/tasks", buf.Bytes(), withHeader(echo.HeaderContentEncoding, "gzip"))
	expectStatus(t, rec, http.StatusCreated)
	if task := decodeResponse[domain.Task](t, rec); task.Name != "zipped" || task.UserID != s.user.ID {
		t.Fatalf("unexpected task %+v", task)
	}

	rec = s.authed(t, http.MethodPost, "/api/tasks", []byte("not gzip"), withHeader(echo.HeaderContentEncoding, "gzip"))
	expectError(t, rec, http.StatusBadRequest, "invalid gzip body")
}

func TestCreateTaskIdempotencyKey(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := newTestServer(t, func(d *Deps) { d.Deduper = NewRedisDeduper(client, time.Minute) })

	body := map[string]any{"name": "once", "userId": s.user.ID}
	first := s.authed(t, http.MethodPost, "/api/tasks", body, withHeader(idempotencyHeader, "abc"))
	expectStatus(t, first, http.StatusCreated)
	second := s.authed(t, http.MethodPost, "/api/tasks", body, withHeader(idempotencyHeader, "abc"))
	expectStatus(t, second, http.StatusCreated)

	a := decodeResponse[domain.Task](t, first)
	b := decodeResponse[domain.Task](t, second)
	if a.ID != b.ID {
		t.Fatalf("expected replayed task id %d, got %d", a.ID, b.ID)
	}
	board, err := s.store.ListBoard(context.Background(), s.user.ID)
	if err != nil {
		t.Fatalf("list board: %v", err)
	}
	if len(board) != 1 {
		t.Fatalf("expected one task after retry, got %d", len(board))
	}

	third := s.authed(t, http.MethodPost, "/api/tasks", body, withHeader(idempotencyHeader, "def"))
	expectStatus(t, third, http.StatusCreated)
	if c := decodeResponse[domain.Task](t, third); c.ID == a.ID {
		t.Fatalf("new key must create a new task")
	}
}

func TestReorderAndBoardListing(t *testing.T) {
	s := newTestServer(t)
	p0 := s.createTask(t, "p0", domain.StatusPlan)
	p1 := s.createTask(t, "p1", domain.StatusPlan)
	p2 := s.createTask(t, "p2", domain.StatusPlan)
	d0 := s.createTask(t, "d0", domain.StatusDoing)

	rec := s.authed(t, http.MethodPost, "/api/tasks/reorder", map[string]any{
		"taskId": p0.ID, "userId": s.user.ID, "newStatus": "DOING", "newPosition": 0,
	})
	expectStatus(t, rec, http.StatusOK)
	if resp := decodeResponse[successResponse](t, rec); !resp.Success {
		t.Fatalf("expected success")
	}

	rec = s.authed(t, http.MethodGet, fmt.Sprintf("/api/tasks/user/%d", s.user.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	board := decodeResponse[[]domain.Task](t, rec)
	want := []struct {
		id     int64
		status domain.Status
		pos    int
	}{
		{p1.ID, domain.StatusPlan, 0},
		{p2.ID, domain.StatusPlan, 1},
		{p0.ID, domain.StatusDoing, 0},
		{d0.ID, domain.StatusDoing, 1},
	}
	if len(board) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(board))
	}
	for i, w := range want {
		if board[i].ID != w.id || board[i].Status != w.status || board[i].Position != w.pos {
			t.Fatalf("row %d: got %d %s/%d, want %d %s/%d", i, board[i].ID, board[i].Status, board[i].Position, w.id, w.status, w.pos)
		}
	}
	if board[2].StartedAt == nil {
		t.Fatalf("moving into DOING must start the timer")
	}

	rec = s.authed(t, http.MethodPost, "/api/tasks/reorder", map[string]any{"taskId": p1.ID, "newStatus": "SOMEDAY", "newPosition": 0})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.authed(t, http.MethodPost, "/api/tasks/reorder", map[string]any{"taskId": p1.ID, "newStatus": "DONE"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.authed(t, http.MethodPost, "/api/tasks/reorder", map[string]any{"taskId": 9999, "newStatus": "DONE", "newPosition": 0})
	expectStatus(t, rec, http.StatusNotFound)

	rec = s.authed(t, http.MethodGet, fmt.Sprintf("/api/tasks/user/%d", s.user.ID+1), nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestTaskLifecycleRoutes(t *testing.T) {
	s := newTestServer(t)
	a := s.createTask(t, "a", domain.StatusPlan)
	b := s.createTask(t, "b", domain.StatusPlan)

	rec := s.authed(t, http.MethodPut, fmt.Sprintf("/api/tasks/%d", a.ID), map[string]any{"name": "renamed", "durationMinutes": 25})
	expectStatus(t, rec, http.StatusOK)
	updated := decodeResponse[domain.Task](t, rec)
	if updated.Name != "renamed" || updated.DurationMinutes == nil || *updated.DurationMinutes != 25 {
		t.Fatalf("unexpected update %+v", updated)
	}

	rec = s.authed(t, http.MethodPut, fmt.Sprintf("/api/tasks/%d/start", a.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	if started := decodeResponse[domain.Task](t, rec); started.StartedAt == nil {
		t.Fatalf("expected startedAt to be set")
	}

	rec = s.authed(t, http.MethodPut, fmt.Sprintf("/api/tasks/%d/archive", a.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	if archived := decodeResponse[domain.Task](t, rec); archived.Status != domain.StatusArchived {
		t.Fatalf("expected archived status, got %s", archived.Status)
	}

	rec = s.authed(t, http.MethodGet, fmt.Sprintf("/api/tasks/user/%d/archived", s.user.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	if archived := decodeResponse[[]domain.Task](t, rec); len(archived) != 1 || archived[0].ID != a.ID {
		t.Fatalf("unexpected archived list %+v", archived)
	}

	rec = s.authed(t, http.MethodGet, fmt.Sprintf("/api/tasks/user/%d", s.user.ID), nil)
	if board := decodeResponse[[]domain.Task](t, rec); len(board) != 1 || board[0].ID != b.ID || board[0].Position != 0 {
		t.Fatalf("archive must compact PLAN, got %+v", board)
	}

	rec = s.authed(t, http.MethodPut, fmt.Sprintf("/api/tasks/%d/unarchive", a.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	if restored := decodeResponse[domain.Task](t, rec); restored.Status != domain.StatusPlan || restored.Position != 1 {
		t.Fatalf("expected task appended to PLAN, got %s/%d", restored.Status, restored.Position)
	}

	rec = s.authed(t, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", b.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	rec = s.authed(t, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", b.ID), nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = s.authed(t, http.MethodPut, "/api/tasks/abc", map[string]any{"name": "x"})
	expectError(t, rec, http.StatusBadRequest, "invalid id")
}

func TestListExpiredUsesClock(t *testing.T) {
	now := time.Now().Add(10 * time.Minute)
	s := newTestServer(t, func(d *Deps) { d.Now = func() time.Time { return now } })

	rec := s.authed(t, http.MethodPost, "/api/tasks", map[string]any{"name": "timed", "status": "DOING", "durationMinutes": 5})
	expectStatus(t, rec, http.StatusCreated)
	s.createTask(t, "untimed", domain.StatusDoing)

	rec = s.authed(t, http.MethodGet, fmt.Sprintf("/api/tasks/expired?userId=%d", s.user.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	expired := decodeResponse[[]domain.Task](t, rec)
	if len(expired) != 1 || expired[0].Name != "timed" {
		t.Fatalf("expected only the timed task, got %+v", expired)
	}

	rec = s.authed(t, http.MethodGet, "/api/tasks/expired", nil)
	expectStatus(t, rec, http.StatusOK)
	if len(decodeResponse[[]domain.Task](t, rec)) != 1 {
		t.Fatalf("userId should default to the caller")
	}
}

func TestTagAndTaskTagRoutes(t *testing.T) {
	s := newTestServer(t)
	task := s.createTask(t, "a", domain.StatusPlan)

	rec := s.authed(t, http.MethodPost, "/api/tags", map[string]any{"name": "work", "userId": s.user.ID})
	expectStatus(t, rec, http.StatusCreated)
	tag := decodeResponse[domain.Tag](t, rec)
	if tag.Color != domain.DefaultTagColor {
		t.Fatalf("expected default color, got %q", tag.Color)
	}

	rec = s.authed(t, http.MethodPut, fmt.Sprintf("/api/tags/%d", tag.ID), map[string]any{"color": "#000000"})
	expectStatus(t, rec, http.StatusOK)
	if updated := decodeResponse[domain.Tag](t, rec); updated.Color != "#000000" || updated.Name != "work" {
		t.Fatalf("unexpected tag update %+v", updated)
	}

	rec = s.authed(t, http.MethodPost, "/api/task-tags", taskTagRequest{TaskID: task.ID, TagID: tag.ID})
	expectStatus(t, rec, http.StatusCreated)
	link := decodeResponse[domain.TaskTagWithTag](t, rec)
	if link.TaskID != task.ID || link.TagID != tag.ID || link.Tag.Name != "work" {
		t.Fatalf("unexpected link %+v", link)
	}

	rec = s.authed(t, http.MethodPost, "/api/task-tags", taskTagRequest{TaskID: task.ID, TagID: tag.ID})
	expectError(t, rec, http.StatusBadRequest, "Tag already added to task.")

	rec = s.authed(t, http.MethodPost, "/api/task-tags", taskTagRequest{TaskID: task.ID})
	expectError(t, rec, http.StatusBadRequest, "taskId and tagId are required")

	rec = s.authed(t, http.MethodGet, fmt.Sprintf("/api/task-tags?taskId=%d", task.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	if tags := decodeResponse[[]domain.Tag](t, rec); len(tags) != 1 || tags[0].ID != tag.ID {
		t.Fatalf("unexpected task tags %+v", tags)
	}

	rec = s.authed(t, http.MethodDelete, fmt.Sprintf("/api/task-tags?taskId=%d&tagId=%d", task.ID, tag.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	rec = s.authed(t, http.MethodDelete, fmt.Sprintf("/api/task-tags?taskId=%d&tagId=%d", task.ID, tag.ID), nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = s.authed(t, http.MethodGet, fmt.Sprintf("/api/tags/user/%d", s.user.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	if tags := decodeResponse[[]domain.Tag](t, rec); len(tags) != 1 {
		t.Fatalf("expected one tag, got %d", len(tags))
	}

	rec = s.authed(t, http.MethodDelete, fmt.Sprintf("/api/tags/%d", tag.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	if msg := decodeResponse[messageResponse](t, rec); msg.Message != "Tag deleted successfully" {
		t.Fatalf("unexpected message %q", msg.Message)
	}
}

func TestPageGuardRedirects(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/dashboard", nil)
	if rec.Code != http.StatusFound || rec.Header().Get(echo.HeaderLocation) != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
	rec = s.do(t, http.MethodGet, "/login", nil)
	expectStatus(t, rec, http.StatusNoContent)

	login := s.do(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "ada@example.com", Password: testPassword})
	expectStatus(t, login, http.StatusOK)
	cookies := login.Result().Cookies()

	rec = s.do(t, http.MethodGet, "/register", nil, withCookies(cookies))
	if rec.Code != http.StatusFound || rec.Header().Get(echo.HeaderLocation) != "/dashboard" {
		t.Fatalf("expected redirect to /dashboard, got %d %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
	rec = s.do(t, http.MethodGet, "/dashboard", nil, withCookies(cookies))
	expectStatus(t, rec, http.StatusNoContent)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", nil)
	expectStatus(t, rec, http.StatusOK)

	failing := newTestServer(t, func(d *Deps) {
		d.Health = map[string]Pinger{"redis": func(context.Context) error { return errors.New("down") }}
	})
	rec = failing.do(t, http.MethodGet, "/healthz", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if resp := decodeResponse[healthResponse](t, rec); len(resp.Failed) != 1 || resp.Failed[0] != "redis" {
		t.Fatalf("unexpected health response %+v", resp)
	}
}

func TestRealtimeStreamDeliversOwnChanges(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/realtime?token="+s.token, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		r := bufio.NewReader(resp.Body)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimRight(line, "\n")
		}
	}()
	waitLine := func(prefix string) string {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed while waiting for %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	waitLine(": connected")

	other, err := s.store.CreateUser(context.Background(), "Eve", "eve@example.com", "x")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.store.CreateTask(context.Background(), domain.NewTask{UserID: other.ID, Name: "foreign"}); err != nil {
		t.Fatalf("create foreign task: %v", err)
	}
	s.createTask(t, "mine", domain.StatusPlan)

	if line := waitLine("event: "); line != "event: change" {
		t.Fatalf("unexpected event line %q", line)
	}
	data := strings.TrimPrefix(waitLine("data: "), "data: ")
	ev, err := realtime.Decode([]byte(data))
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.UserID != s.user.ID || ev.Kind != realtime.KindInsert || ev.Table != realtime.TableTasks {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !strings.Contains(string(ev.New), `"mine"`) {
		t.Fatalf("expected own task in event, got %s", ev.New)
	}

	waitLine(": ping")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{domain.Validationf("bad"), http.StatusBadRequest, "bad"},
		{&domain.AuthError{Msg: "no"}, http.StatusUnauthorized, "no"},
		{domain.NotFound("task", 3), http.StatusNotFound, "task 3 not found"},
		{&domain.ConflictError{Msg: "dup"}, http.StatusBadRequest, "dup"},
		{domain.Persistence("op", errors.New("driver detail")), http.StatusInternalServerError, "internal server error"},
		{echo.NewHTTPError(http.StatusConflict, "busy"), http.StatusConflict, "busy"},
		{fmt.Errorf("wrapped: %w", domain.NotFound("tag", 1)), http.StatusNotFound, "tag 1 not found"},
		{errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		code, msg := statusFor(tt.err)
		if code != tt.code || msg != tt.msg {
			t.Fatalf("statusFor(%v) = %d %q, want %d %q", tt.err, code, msg, tt.code, tt.msg)
		}
	}
}
