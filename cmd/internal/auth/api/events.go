package authapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"sessiond/cmd/internal/auth/events"
)

const wsMaxPingFailures = 3

// handleEvents streams session events for the caller's identity until the
// caller's own session ends, its access token expires or the peer leaves.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "events_disabled", "event feed not enabled")
		return
	}

	tok := bearerToken(r)
	if tok == "" {
		tok = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
		return
	}

	v, rec, err := h.sessions.AuthenticateSession(r.Context(), tok)
	if err != nil {
		h.writeDomainError(w, r, "ws.auth.fail", err)
		return
	}
	if err := h.enforceOrigin(r); err != nil {
		h.log.InfoContext(r.Context(), "ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		writeError(w, http.StatusForbidden, "forbidden", "origin not allowed")
		return
	}

	// Subscribe before the upgrade so nothing published after the handshake
	// is missed.
	sub := h.hub.Subscribe(v.Payload().IdentityID, rec.ID, h.cfg.WSSendQueue)
	defer h.hub.Unsubscribe(sub)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: h.cfg.WSDevInsecure,
	})
	if err != nil {
		h.log.ErrorContext(r.Context(), "ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	// Clients only listen; CloseRead answers control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	h.log.InfoContext(ctx, "ws.open", "identity_id", sub.IdentityID, "session_id", sub.SessionID)
	code, reason := h.pump(ctx, conn, sub, v.ExpiresAt())
	h.log.InfoContext(ctx, "ws.close", "identity_id", sub.IdentityID, "session_id", sub.SessionID, "reason", reason)
	_ = conn.Close(code, reason)
}

func (h *Handler) pump(ctx context.Context, conn *websocket.Conn, sub *events.Subscriber, expiresAt time.Time) (websocket.StatusCode, string) {
	heartbeat := time.NewTicker(h.cfg.WSHeartbeat)
	defer heartbeat.Stop()

	expiry := time.NewTimer(time.Until(expiresAt))
	defer expiry.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return websocket.StatusNormalClosure, "peer closed"
		case <-sub.Done():
			return websocket.StatusGoingAway, "unsubscribed"
		case <-expiry.C:
			return websocket.StatusPolicyViolation, "token expired"
		case e := <-sub.Send:
			if err := h.writeEvent(ctx, conn, e); err != nil {
				h.log.InfoContext(ctx, "ws.write.fail", "session_id", sub.SessionID, "close_status", websocket.CloseStatus(err), "err", err)
				return websocket.StatusAbnormalClosure, "write failed"
			}
			if e.Ends(sub.SessionID) {
				return websocket.StatusNormalClosure, "session ended"
			}
		case <-heartbeat.C:
			pctx, cancel := context.WithTimeout(ctx, h.cfg.WSWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				failures++
				if failures >= wsMaxPingFailures {
					return websocket.StatusGoingAway, "heartbeat failed"
				}
				continue
			}
			failures = 0
		}
	}
}

func (h *Handler) writeEvent(parent context.Context, conn *websocket.Conn, e events.Event) error {
	ctx, cancel := context.WithTimeout(parent, h.cfg.WSWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
