package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dromkey/todolist/internal/apperr"
	"github.com/dromkey/todolist/internal/auth"
	"github.com/dromkey/todolist/internal/client"
	"github.com/dromkey/todolist/internal/store"
	"github.com/dromkey/todolist/internal/store/memstore"
	"github.com/dromkey/todolist/internal/tasks"
	"github.com/dromkey/todolist/internal/view"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type testServer struct {
	*httptest.Server
	tokens *auth.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memstore.New()
	tokens := auth.NewTokenService(testSecret, time.Hour)
	h := &Handlers{
		Accounts: auth.NewAccounts(st, tokens).WithHashCost(bcrypt.MinCost),
		Tasks:    tasks.NewService(st),
		Health:   st,
	}
	srv := httptest.NewServer(NewRouter(h, Options{Tokens: tokens, CORSOrigins: []string{"http://localhost:3000"}}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+"/api"+path, rdr)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, out
}

func (s *testServer) login(t *testing.T, user, pw string) string {
	t.Helper()
	if code, body := s.do(t, "POST", "/auth/register", "", credentialsReq{user, pw}); code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", user, code, body)
	}
	code, body := s.do(t, "POST", "/auth/login", "", credentialsReq{user, pw})
	if code != http.StatusOK {
		t.Fatalf("login %s: %d %s", user, code, body)
	}
	var resp loginResp
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login returned empty token")
	}
	return resp.Token
}

type taskJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

func decodeTask(t *testing.T, body []byte) taskJSON {
	t.Helper()
	var task taskJSON
	if err := json.Unmarshal(body, &task); err != nil {
		t.Fatalf("decode task %s: %v", body, err)
	}
	return task
}

func decodeTasks(t *testing.T, body []byte) []taskJSON {
	t.Helper()
	var list []taskJSON
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode tasks %s: %v", body, err)
	}
	return list
}

func TestScenario_TasksAreIsolatedPerUser(t *testing.T) {
	s := newTestServer(t)
	tokenA := s.login(t, "alice", "pw1")
	tokenB := s.login(t, "bob", "pw2")

	code, body := s.do(t, "POST", "/tasks", tokenA, map[string]string{"title": "buy milk"})
	if code != http.StatusCreated {
		t.Fatalf("create: %d %s", code, body)
	}
	if strings.Contains(string(body), "ownerId") || strings.Contains(string(body), "OwnerID") {
		t.Errorf("owner id leaked in payload: %s", body)
	}

	code, body = s.do(t, "GET", "/tasks", tokenB, nil)
	if code != http.StatusOK {
		t.Fatalf("list B: %d %s", code, body)
	}
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("bob should see an empty array, got %s", body)
	}

	code, body = s.do(t, "GET", "/tasks", tokenA, nil)
	if code != http.StatusOK {
		t.Fatalf("list A: %d %s", code, body)
	}
	list := decodeTasks(t, body)
	if len(list) != 1 || list[0].Title != "buy milk" || list[0].Completed {
		t.Errorf("unexpected list for alice: %+v", list)
	}
	if list[0].ID == "" || list[0].CreatedAt.IsZero() {
		t.Errorf("missing id or createdAt: %+v", list[0])
	}
}

func TestScenario_WhitespaceTitleRejected(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice", "pw")

	_, body := s.do(t, "POST", "/tasks", token, map[string]string{"title": "draft"})
	task := decodeTask(t, body)

	code, body := s.do(t, "PUT", "/tasks/"+task.ID, token, map[string]string{"title": "  "})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", code, body)
	}

	_, body = s.do(t, "GET", "/tasks/"+task.ID, token, nil)
	if got := decodeTask(t, body); got.Title != "draft" {
		t.Errorf("title changed to %q", got.Title)
	}

	code, body = s.do(t, "PUT", "/tasks/"+task.ID, token, map[string]string{"title": "final"})
	if code != http.StatusOK || decodeTask(t, body).Title != "final" {
		t.Errorf("valid update failed: %d %s", code, body)
	}
}

func TestScenario_CompletedOnlyInCompletedPartition(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice", "pw")

	_, body := s.do(t, "POST", "/tasks", token, map[string]string{"title": "ship it"})
	task := decodeTask(t, body)

	for i := 0; i < 2; i++ {
		code, body := s.do(t, "PATCH", "/tasks/"+task.ID, token, nil)
		if code != http.StatusOK || !decodeTask(t, body).Completed {
			t.Fatalf("PATCH #%d: %d %s", i+1, code, body)
		}
	}

	_, body = s.do(t, "GET", "/tasks", token, nil)
	var all []client.Task
	if err := json.Unmarshal(body, &all); err != nil {
		t.Fatalf("decode tasks: %v", err)
	}
	for _, term := range []string{"", "ship", "SHIP", "nothing"} {
		active, completed := view.Partition(all, term)
		if len(active) != 0 {
			t.Errorf("search %q: completed task in active partition", term)
		}
		if len(completed) != 1 || completed[0].ID != task.ID {
			t.Errorf("search %q: unexpected completed partition %+v", term, completed)
		}
	}
}

func TestCreate_Validation(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice", "pw")

	for _, body := range []any{
		map[string]string{"title": ""},
		map[string]string{"title": " \t "},
		map[string]string{},
		"not json",
		"",
		`{"title":"a"}{"title":"b"}`,
	} {
		if code, resp := s.do(t, "POST", "/tasks", token, body); code != http.StatusBadRequest {
			t.Errorf("body %v: expected 400, got %d %s", body, code, resp)
		}
	}
}

func TestOwnership_OtherUserGets404(t *testing.T) {
	s := newTestServer(t)
	tokenA := s.login(t, "alice", "pw1")
	tokenB := s.login(t, "bob", "pw2")

	_, body := s.do(t, "POST", "/tasks", tokenA, map[string]string{"title": "secret"})
	task := decodeTask(t, body)

	checks := []struct {
		method string
		body   any
	}{
		{"GET", nil},
		{"PUT", map[string]string{"title": "hijacked"}},
		{"PATCH", nil},
		{"DELETE", nil},
	}
	for _, c := range checks {
		code, foreign := s.do(t, c.method, "/tasks/"+task.ID, tokenB, c.body)
		if code != http.StatusNotFound {
			t.Errorf("%s as bob: expected 404, got %d", c.method, code)
		}
		_, missing := s.do(t, c.method, "/tasks/00000000-0000-0000-0000-000000000000", tokenB, c.body)
		if string(foreign) != string(missing) {
			t.Errorf("%s: foreign %s differs from missing %s", c.method, foreign, missing)
		}
	}

	_, body = s.do(t, "GET", "/tasks/"+task.ID, tokenA, nil)
	if got := decodeTask(t, body); got.Title != "secret" || got.Completed {
		t.Errorf("task modified by bob: %+v", got)
	}
}

func TestDelete_ThenNotFound(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice", "pw")

	_, body := s.do(t, "POST", "/tasks", token, map[string]string{"title": "gone soon"})
	task := decodeTask(t, body)

	code, body := s.do(t, "DELETE", "/tasks/"+task.ID, token, nil)
	if code != http.StatusNoContent || len(body) != 0 {
		t.Fatalf("delete: %d %q", code, body)
	}
	for _, method := range []string{"DELETE", "PATCH", "GET"} {
		if code, _ := s.do(t, method, "/tasks/"+task.ID, token, nil); code != http.StatusNotFound {
			t.Errorf("%s after delete: expected 404, got %d", method, code)
		}
	}
	if code, _ := s.do(t, "PUT", "/tasks/"+task.ID, token, map[string]string{"title": "x"}); code != http.StatusNotFound {
		t.Errorf("PUT after delete: expected 404, got %d", code)
	}
}

func TestAuthGate_Rejections(t *testing.T) {
	s := newTestServer(t)
	valid := s.login(t, "alice", "pw")

	expired, _, err := s.tokens.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }).Issue("someone")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	foreign, _, err := auth.NewTokenService([]byte("a-completely-different-secret!!"), time.Hour).Issue("someone")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	headers := map[string]string{
		"missing":       "",
		"wrong scheme":  "Basic " + valid,
		"no token":      "Bearer ",
		"garbage":       "Bearer not.a.token",
		"expired":       "Bearer " + expired,
		"bad signature": "Bearer " + foreign,
	}
	for name, header := range headers {
		req, _ := http.NewRequest("GET", s.URL+"/api/tasks", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: request failed: %v", name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, resp.StatusCode)
		}
		if !strings.HasPrefix(resp.Header.Get("WWW-Authenticate"), "Bearer") {
			t.Errorf("%s: missing WWW-Authenticate header", name)
		}
	}

	// scheme is case-insensitive
	req, _ := http.NewRequest("GET", s.URL+"/api/tasks", nil)
	req.Header.Set("Authorization", "bearer "+valid)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("lowercase scheme: expected 200, got %d", resp.StatusCode)
	}
}

type recordingVerifier struct{ calls int }

func (v *recordingVerifier) Verify(string) (string, error) {
	v.calls++
	return "", auth.ErrMalformed
}

func TestAuthGate_MalformedHeaderSkipsVerification(t *testing.T) {
	v := &recordingVerifier{}
	gate := AuthGate(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler must not run")
	}))

	for _, header := range []string{"", "Token abc", "Bearer", "Bearer a b"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/tasks", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		gate.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%q: expected 401, got %d", header, rec.Code)
		}
	}
	if v.calls != 0 {
		t.Errorf("verifier called %d times for malformed headers", v.calls)
	}
}

func TestAuthGate_InjectsUserID(t *testing.T) {
	tokens := auth.NewTokenService(testSecret, time.Hour)
	token, _, _ := tokens.Issue("user-42")

	var seen string
	gate := AuthGate(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
	}))
	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	gate.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "user-42" {
		t.Errorf("expected user-42 in context, got %q", seen)
	}
}

func TestRegisterAndLogin_Failures(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "alice", "pw")

	code, body := s.do(t, "POST", "/auth/register", "", credentialsReq{"alice", "other"})
	if code != http.StatusConflict {
		t.Errorf("duplicate register: expected 409, got %d %s", code, body)
	}
	if code, _ := s.do(t, "POST", "/auth/register", "", credentialsReq{"", "pw"}); code != http.StatusBadRequest {
		t.Errorf("empty username: expected 400, got %d", code)
	}
	if code, _ := s.do(t, "POST", "/auth/login", "", credentialsReq{"alice", "wrong"}); code != http.StatusUnauthorized {
		t.Errorf("bad password: expected 401, got %d", code)
	}
	if code, _ := s.do(t, "POST", "/auth/login", "", credentialsReq{"ghost", "pw"}); code != http.StatusUnauthorized {
		t.Errorf("unknown user: expected 401, got %d", code)
	}
}

func TestRegister_ResponseHidesPasswordHash(t *testing.T) {
	s := newTestServer(t)
	code, body := s.do(t, "POST", "/auth/register", "", credentialsReq{"erin", "pw"})
	if code != http.StatusCreated {
		t.Fatalf("register: %d %s", code, body)
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["username"] != "erin" || got["id"] == "" {
		t.Errorf("unexpected summary %v", got)
	}
	if strings.Contains(string(body), "$2a$") || strings.Contains(strings.ToLower(string(body)), "password") {
		t.Errorf("password material leaked: %s", body)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, body := s.do(t, "GET", "/health", "", nil)
	if code != http.StatusOK || !strings.Contains(string(body), "healthy") {
		t.Errorf("health: %d %s", code, body)
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("x"), http.StatusBadRequest},
		{auth.ErrExpired, http.StatusUnauthorized},
		{apperr.NotFound("task"), http.StatusNotFound},
		{apperr.Conflict("dup"), http.StatusConflict},
		{apperr.Unavailable("list", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusOf(c.err); got != c.want {
			t.Errorf("statusOf(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

type downStore struct{ *memstore.Store }

func (downStore) ListTasks(context.Context, string) ([]store.Task, error) {
	return nil, apperr.Unavailable("list tasks", errors.New("connection refused"))
}

func TestStoreUnavailable_Is503(t *testing.T) {
	st := downStore{memstore.New()}
	tokens := auth.NewTokenService(testSecret, time.Hour)
	h := &Handlers{
		Accounts: auth.NewAccounts(st, tokens),
		Tasks:    tasks.NewService(st),
		Health:   st,
	}
	token, _, _ := tokens.Issue("user-1")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	NewRouter(h, Options{Tokens: tokens}).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("backend detail leaked: %s", rec.Body)
	}
}
