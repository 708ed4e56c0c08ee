package authapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/credential"
	"sessiond/cmd/internal/auth/events"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/security/password"
)

type testEnv struct {
	srv   *httptest.Server
	store *session.MemoryStore
	hub   *events.Hub
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AuthRatePerMinute = 0
	return cfg
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	ccfg := credential.DefaultConfig()
	ccfg.AccessSecret = strings.Repeat("a", credential.MinSecretBytes)
	ccfg.RefreshSecret = strings.Repeat("r", credential.MinSecretBytes)
	enc, err := credential.New(ccfg)
	if err != nil {
		t.Fatalf("credential.New: %v", err)
	}

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Params.Parallelism = 1

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := session.NewMemoryStore()
	hub := events.NewHub(log)
	mgr := session.NewManager(store, enc, identity.NewMemoryDirectory(identity.NewPasswords(pw)),
		session.WithLogger(log),
		session.WithPublisher(hub),
	)

	h, err := NewHandler(log, cfg, mgr, enc, WithEventHub(hub))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, hub: hub}
}

type apiResult struct {
	status int
	header http.Header
	body   map[string]any
}

func (r apiResult) errorCode() string {
	e, _ := r.body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (r apiResult) tokens(t *testing.T) (access, refresh string) {
	t.Helper()
	tk, ok := r.body["tokens"].(map[string]any)
	if !ok {
		t.Fatalf("no tokens in body: %v", r.body)
	}
	access, _ = tk["access_token"].(string)
	refresh, _ = tk["refresh_token"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("empty tokens: %v", tk)
	}
	return access, refresh
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) apiResult {
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

	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	out := apiResult{status: resp.StatusCode, header: resp.Header}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out.body)
	}
	return out
}

var alice = signUpRequest{Email: "alice@x.com", Name: "Alice", Password: "s3cret-pass"}

func TestAPI_AliceScenario(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, testConfig())

	up := e.do(t, http.MethodPost, "/auth/sign-up", "", alice)
	if up.status != http.StatusCreated {
		t.Fatalf("sign-up: status %d body %v", up.status, up.body)
	}
	deviceOneAccess, deviceOneRefresh := up.tokens(t)
	if e.store.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", e.store.Len())
	}

	in := e.do(t, http.MethodPost, "/auth/sign-in", "", signInRequest{Email: alice.Email, Password: alice.Password})
	if in.status != http.StatusCreated {
		t.Fatalf("sign-in: status %d body %v", in.status, in.body)
	}
	if e.store.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", e.store.Len())
	}

	ref := e.do(t, http.MethodPost, "/auth/refresh", deviceOneRefresh, nil)
	if ref.status != http.StatusCreated {
		t.Fatalf("refresh: status %d body %v", ref.status, ref.body)
	}
	newAccess, _ := ref.tokens(t)
	if e.store.Len() != 2 {
		t.Fatalf("refresh must keep 2 sessions, got %d", e.store.Len())
	}

	if got := e.do(t, http.MethodGet, "/auth/me", deviceOneAccess, nil); got.status != http.StatusUnauthorized || got.errorCode() != "token_revoked" {
		t.Fatalf("old access: status %d code %q", got.status, got.errorCode())
	}
	if got := e.do(t, http.MethodPost, "/auth/refresh", deviceOneRefresh, nil); got.status != http.StatusUnauthorized || got.errorCode() != "token_revoked" {
		t.Fatalf("replayed refresh: status %d code %q", got.status, got.errorCode())
	}

	me := e.do(t, http.MethodGet, "/auth/me", newAccess, nil)
	if me.status != http.StatusOK {
		t.Fatalf("me: status %d body %v", me.status, me.body)
	}
	if user, _ := me.body["user"].(map[string]any); user["email"] != alice.Email {
		t.Fatalf("me: unexpected body %v", me.body)
	}

	if got := e.do(t, http.MethodPost, "/auth/logout-all", newAccess, nil); got.status != http.StatusOK {
		t.Fatalf("logout-all: status %d body %v", got.status, got.body)
	}
	if e.store.Len() != 0 {
		t.Fatalf("expected 0 sessions, got %d", e.store.Len())
	}

	if got := e.do(t, http.MethodPost, "/auth/logout", newAccess, nil); got.status != http.StatusOK {
		t.Fatalf("stale logout must succeed: status %d body %v", got.status, got.body)
	}
	if e.store.Len() != 0 {
		t.Fatalf("stale logout changed state: %d", e.store.Len())
	}
}

func TestAPI_SignUpErrors(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, testConfig())
	if got := e.do(t, http.MethodPost, "/auth/sign-up", "", alice); got.status != http.StatusCreated {
		t.Fatalf("sign-up: status %d", got.status)
	}

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"duplicate", alice, http.StatusConflict, "conflict"},
		{"bad email", signUpRequest{Email: "alice", Name: "A", Password: "s3cret-pass"}, http.StatusBadRequest, "invalid_request"},
		{"no name", signUpRequest{Email: "bob@x.com", Password: "s3cret-pass"}, http.StatusBadRequest, "invalid_request"},
		{"taken email without name", signUpRequest{Email: alice.Email, Password: "s3cret-pass"}, http.StatusBadRequest, "invalid_request"},
		{"taken email without password", signUpRequest{Email: alice.Email, Name: "Alice"}, http.StatusBadRequest, "invalid_request"},
		{"short password", signUpRequest{Email: "bob@x.com", Name: "Bob", Password: "short"}, http.StatusBadRequest, "invalid_request"},
		{"unknown field", `{"email":"bob@x.com","name":"Bob","password":"s3cret-pass","admin":true}`, http.StatusBadRequest, "invalid_json"},
		{"trailing data", `{"email":"bob@x.com","name":"Bob","password":"s3cret-pass"} {}`, http.StatusBadRequest, "invalid_json"},
		{"empty body", nil, http.StatusBadRequest, "invalid_json"},
		{"too large", `{"email":"` + strings.Repeat("b", 1<<20) + `"}`, http.StatusRequestEntityTooLarge, "body_too_large"},
	}
	for _, tc := range cases {
		got := e.do(t, http.MethodPost, "/auth/sign-up", "", tc.body)
		if got.status != tc.status || got.errorCode() != tc.code {
			t.Fatalf("%s: got %d %q, want %d %q", tc.name, got.status, got.errorCode(), tc.status, tc.code)
		}
	}
	if e.store.Len() != 1 {
		t.Fatalf("failed sign-ups must not issue sessions, got %d", e.store.Len())
	}
}

func TestAPI_SignInErrors(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, testConfig())
	if got := e.do(t, http.MethodPost, "/auth/sign-up", "", alice); got.status != http.StatusCreated {
		t.Fatalf("sign-up: status %d", got.status)
	}

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"unknown email", signInRequest{Email: "bob@x.com", Password: "s3cret-pass"}, http.StatusNotFound, "not_found"},
		{"wrong password", signInRequest{Email: alice.Email, Password: "nope-nope"}, http.StatusUnauthorized, "invalid_credentials"},
		{"missing password", signInRequest{Email: alice.Email}, http.StatusBadRequest, "invalid_request"},
		{"not json", "email=alice", http.StatusBadRequest, "invalid_json"},
	}
	for _, tc := range cases {
		got := e.do(t, http.MethodPost, "/auth/sign-in", "", tc.body)
		if got.status != tc.status || got.errorCode() != tc.code {
			t.Fatalf("%s: got %d %q, want %d %q", tc.name, got.status, got.errorCode(), tc.status, tc.code)
		}
	}

	// Surrounding whitespace is trimmed; case is not folded.
	if got := e.do(t, http.MethodPost, "/auth/sign-in", "", signInRequest{Email: "  alice@x.com ", Password: alice.Password}); got.status != http.StatusCreated {
		t.Fatalf("trimmed email: status %d", got.status)
	}
}

func TestAPI_TokenErrors(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, testConfig())
	up := e.do(t, http.MethodPost, "/auth/sign-up", "", alice)
	access, refresh := up.tokens(t)

	cases := []struct {
		name   string
		method string
		path   string
		bearer string
		code   string
	}{
		{"no bearer", http.MethodPost, "/auth/logout", "", "unauthorized"},
		{"garbage", http.MethodPost, "/auth/logout", "garbage", "token_malformed"},
		{"refresh as access", http.MethodPost, "/auth/logout", refresh, "invalid_token"},
		{"access as refresh", http.MethodPost, "/auth/refresh", access, "invalid_token"},
		{"refresh on me", http.MethodGet, "/auth/me", refresh, "invalid_token"},
		{"tampered", http.MethodGet, "/auth/me", tamper(access), "invalid_token"},
	}
	for _, tc := range cases {
		got := e.do(t, tc.method, tc.path, tc.bearer, nil)
		if got.status != http.StatusUnauthorized || got.errorCode() != tc.code {
			t.Fatalf("%s: got %d %q, want 401 %q", tc.name, got.status, got.errorCode(), tc.code)
		}
	}

	if got := e.do(t, http.MethodGet, "/auth/logout", access, nil); got.status != http.StatusMethodNotAllowed {
		t.Fatalf("GET logout: expected 405, got %d", got.status)
	}
}

// tamper flips one character inside the signature segment.
func tamper(tok string) string {
	b := []byte(tok)
	i := len(b) - 5
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

func TestAPI_LogoutKeepsOtherDevices(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, testConfig())
	up := e.do(t, http.MethodPost, "/auth/sign-up", "", alice)
	laptop, _ := up.tokens(t)
	in := e.do(t, http.MethodPost, "/auth/sign-in", "", signInRequest{Email: alice.Email, Password: alice.Password})
	phone, _ := in.tokens(t)

	for i := 0; i < 2; i++ {
		if got := e.do(t, http.MethodPost, "/auth/logout", phone, nil); got.status != http.StatusOK {
			t.Fatalf("logout #%d: status %d", i+1, got.status)
		}
	}
	if e.store.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", e.store.Len())
	}
	if got := e.do(t, http.MethodGet, "/auth/me", laptop, nil); got.status != http.StatusOK {
		t.Fatalf("laptop session: status %d", got.status)
	}
}

func TestAPI_SignInRateLimited(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AuthRatePerMinute = 1
	cfg.AuthRateBurst = 2
	e := newTestEnv(t, cfg)

	body := signInRequest{Email: "bob@x.com", Password: "s3cret-pass"}
	for i := 0; i < 2; i++ {
		if got := e.do(t, http.MethodPost, "/auth/sign-in", "", body); got.status != http.StatusNotFound {
			t.Fatalf("attempt %d: status %d", i+1, got.status)
		}
	}
	got := e.do(t, http.MethodPost, "/auth/sign-in", "", body)
	if got.status != http.StatusTooManyRequests || got.errorCode() != "rate_limited" {
		t.Fatalf("expected 429, got %d %q", got.status, got.errorCode())
	}
	if got.header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestNewHandler_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewHandler(nil, testConfig(), nil, nil); err == nil {
		t.Fatalf("expected error for nil dependencies")
	}
}
