package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/credential"
	"sessiond/cmd/internal/auth/events"
	"sessiond/cmd/internal/auth/session"
)

// Handler wires HTTP auth endpoints to the session manager.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Manager
	encoder  credential.Encoder
	hub      *events.Hub
	limiter  *ipLimiter

	originPatterns []string
	now            func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithEventHub enables GET /auth/events backed by hub.
func WithEventHub(hub *events.Hub) HandlerOption {
	return func(h *Handler) { h.hub = hub }
}

// WithClock overrides time.Now for token verification.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Manager, enc credential.Encoder, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil || enc == nil {
		return nil, errors.New("authapi: nil session manager or encoder")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:            log,
		cfg:            cfg,
		sessions:       sessions,
		encoder:        enc,
		limiter:        newIPLimiter(cfg.AuthRatePerMinute, cfg.AuthRateBurst),
		originPatterns: deriveOriginPatterns(cfg.WSAllowedOrigins),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires auth routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /auth/sign-up", h.handleSignUp)
	mux.HandleFunc("POST /auth/sign-in", h.handleSignIn)
	mux.Handle("POST /auth/refresh", h.requireToken(credential.KindRefresh, h.handleRefresh))
	mux.Handle("POST /auth/logout", h.requireToken(credential.KindAccess, h.handleLogout))
	mux.Handle("POST /auth/logout-all", h.requireToken(credential.KindAccess, h.handleLogoutAll))
	mux.HandleFunc("GET /auth/me", h.handleMe)
	mux.HandleFunc("GET /auth/events", h.handleEvents)
}

// ---- handlers ----

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if !h.throttle(w, r) {
		return
	}

	var req signUpRequest
	if !readRequest(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	res, err := h.sessions.SignUp(r.Context(), identity.Draft{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	}, h.device(r))
	if err != nil {
		h.writeDomainError(w, r, "auth.sign_up.fail", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if !h.throttle(w, r) {
		return
	}

	var req signInRequest
	if !readRequest(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	res, err := h.sessions.SignIn(r.Context(), session.Credentials{
		Email:    req.Email,
		Password: req.Password,
	}, h.device(r))
	if err != nil {
		h.writeDomainError(w, r, "auth.sign_in.fail", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request, v credential.Verified) {
	pair, err := h.sessions.Refresh(r.Context(), v, h.device(r))
	if err != nil {
		h.writeDomainError(w, r, "auth.refresh.fail", err)
		return
	}
	writeJSON(w, http.StatusCreated, refreshResponse{Tokens: toTokensResponse(pair)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request, v credential.Verified) {
	if err := h.sessions.Logout(r.Context(), v); err != nil {
		h.writeDomainError(w, r, "auth.logout.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request, v credential.Verified) {
	if err := h.sessions.LogoutAll(r.Context(), v); err != nil {
		h.writeDomainError(w, r, "auth.logout_all.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out from all devices"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	tok := bearerToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	v, rec, err := h.sessions.AuthenticateSession(r.Context(), tok)
	if err != nil {
		h.writeDomainError(w, r, "auth.me.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: payloadUserResponse(v.Payload()), SessionID: rec.ID})
}

// ---- helpers ----

type verifiedHandler func(http.ResponseWriter, *http.Request, credential.Verified)

// requireToken verifies the bearer token as kind before calling next. Only
// the signature and lifetime are checked here; liveness is the manager's
// concern.
func (h *Handler) requireToken(kind credential.Kind, next verifiedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		v, err := h.encoder.Verify(tok, kind, h.now())
		if err != nil {
			h.writeDomainError(w, r, "auth.verify.fail", err)
			return
		}
		next(w, r, v)
	})
}

func (h *Handler) throttle(w http.ResponseWriter, r *http.Request) bool {
	dev := h.device(r)
	ok, retryAfter := h.limiter.allow(dev.IP, h.now())
	if !ok {
		h.log.InfoContext(r.Context(), "auth.rate_limited", "path", r.URL.Path, "ip", dev.IP)
		writeRateLimited(w, retryAfter)
	}
	return ok
}
