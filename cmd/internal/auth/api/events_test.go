package authapi

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"sessiond/cmd/internal/auth/events"
)

func wsURL(srvURL string) string {
	return "ws" + strings.TrimPrefix(srvURL, "http") + "/auth/events"
}

func TestEvents_LogoutAllEndsFeed(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, testConfig())
	up := e.do(t, http.MethodPost, "/auth/sign-up", "", alice)
	laptop, _ := up.tokens(t)
	in := e.do(t, http.MethodPost, "/auth/sign-in", "", signInRequest{Email: alice.Email, Password: alice.Password})
	phone, _ := in.tokens(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(e.srv.URL), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + laptop}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	if got := e.do(t, http.MethodPost, "/auth/logout-all", phone, nil); got.status != http.StatusOK {
		t.Fatalf("logout-all: status %d", got.status)
	}

	var ev events.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Kind != events.KindRevoked || ev.SessionID != "" || ev.Reason != "logout_all" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure after session end, got %v", err)
	}
}

func TestEvents_QueryTokenAndOtherSessionRotation(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, testConfig())
	up := e.do(t, http.MethodPost, "/auth/sign-up", "", alice)
	laptop, _ := up.tokens(t)
	in := e.do(t, http.MethodPost, "/auth/sign-in", "", signInRequest{Email: alice.Email, Password: alice.Password})
	_, phoneRefresh := in.tokens(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(e.srv.URL)+"?access_token="+laptop, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	if got := e.do(t, http.MethodPost, "/auth/refresh", phoneRefresh, nil); got.status != http.StatusCreated {
		t.Fatalf("refresh: status %d", got.status)
	}

	var ev events.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Kind != events.KindRotated {
		t.Fatalf("unexpected event: %+v", ev)
	}

	// The laptop session is unaffected, so the feed stays open.
	if n := e.hub.Subscribers(ev.IdentityID); n != 1 {
		t.Fatalf("expected feed to remain subscribed, got %d", n)
	}
}

func TestEvents_RejectsMissingOrRevokedToken(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, testConfig())
	up := e.do(t, http.MethodPost, "/auth/sign-up", "", alice)
	access, _ := up.tokens(t)
	if got := e.do(t, http.MethodPost, "/auth/logout", access, nil); got.status != http.StatusOK {
		t.Fatalf("logout: status %d", got.status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for name, opts := range map[string]*websocket.DialOptions{
		"missing": nil,
		"revoked": {HTTPHeader: http.Header{"Authorization": {"Bearer " + access}}},
	} {
		_, resp, err := websocket.Dial(ctx, wsURL(e.srv.URL), opts)
		if err == nil {
			t.Fatalf("%s: expected dial failure", name)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %+v", name, resp)
		}
	}
}

func TestEvents_OriginPolicy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.WSAllowedOrigins = []string{"https://app.example.com"}
	e := newTestEnv(t, cfg)
	up := e.do(t, http.MethodPost, "/auth/sign-up", "", alice)
	access, _ := up.tokens(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(e.srv.URL), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": {"Bearer " + access},
			"Origin":        {"https://evil.example.net"},
		},
	})
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, err=%v resp=%+v", err, resp)
	}

	conn, _, err := websocket.Dial(ctx, wsURL(e.srv.URL), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": {"Bearer " + access},
			"Origin":        {"https://app.example.com"},
		},
	})
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}
