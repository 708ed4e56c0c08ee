package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/credential"
	"sessiond/cmd/internal/auth/events"
	"sessiond/cmd/security/token"
)

// Credentials is a sign-in request.
type Credentials struct {
	Email    string
	Password string
}

// Result is returned by SignUp and SignIn.
type Result struct {
	Identity  identity.Identity
	Tokens    credential.Pair
	SessionID string
}

// Manager runs the session lifecycle: sign-up, sign-in, refresh and logout.
// It holds no locks; exactly-once rotation is delegated to Store.Rotate.
type Manager struct {
	store     Store
	encoder   credential.Encoder
	directory identity.Directory

	log           *slog.Logger
	notifier      identity.Notifier
	publisher     events.Publisher
	metrics       *Metrics
	hasher        token.Hasher
	now           func() time.Time
	notifyTimeout time.Duration

	wg sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithNotifier sets the notification sink (default: drop).
func WithNotifier(n identity.Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithPublisher sets the session event sink.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(mt *Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithHasher sets the token digest function used for records.
func WithHasher(h token.Hasher) Option {
	return func(m *Manager) { m.hasher = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithNotifyTimeout bounds each notification delivery.
func WithNotifyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.notifyTimeout = d
		}
	}
}

// NewManager wires a Manager.
func NewManager(store Store, enc credential.Encoder, dir identity.Directory, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		encoder:       enc,
		directory:     dir,
		log:           slog.Default(),
		notifier:      identity.NoopNotifier{},
		now:           func() time.Time { return time.Now().UTC() },
		notifyTimeout: DefaultConfig().NotifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// SignUp creates an identity, issues its first session and sends a welcome
// notification.
func (m *Manager) SignUp(ctx context.Context, draft identity.Draft, dev Device) (Result, error) {
	const op = "session.SignUp"

	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return Result{}, err
	}

	_, err := m.directory.FindByEmail(ctx, draft.Email)
	switch {
	case err == nil:
		return Result{}, opErr(op, ErrConflict, "email already registered")
	case !identity.IsNotFound(err):
		return Result{}, err
	}

	ident, err := m.directory.Create(ctx, draft)
	if identity.IsConflict(err) {
		return Result{}, opErr(op, ErrConflict, "email already registered")
	}
	if err != nil {
		return Result{}, err
	}

	res, err := m.issue(ctx, ident, dev)
	if err != nil {
		return Result{}, err
	}

	m.metrics.sessionIssued("sign_up")
	m.log.InfoContext(ctx, "session.sign_up", "identity_id", ident.ID, "session_id", res.SessionID)
	m.notify(ctx, identity.NotifyWelcome, ident.Email, map[string]string{"name": ident.Name})
	return res, nil
}

// SignIn checks credentials and issues an additional session. Existing
// sessions of the identity are untouched.
func (m *Manager) SignIn(ctx context.Context, creds Credentials, dev Device) (Result, error) {
	const op = "session.SignIn"

	ident, err := m.directory.FindByEmail(ctx, creds.Email)
	if identity.IsNotFound(err) {
		m.metrics.authRejected("unknown_email")
		m.log.InfoContext(ctx, "session.sign_in.fail", "reason", "unknown_email", "ip", dev.IP)
		return Result{}, opErr(op, ErrNotFound, "identity not found")
	}
	if err != nil {
		return Result{}, err
	}

	ok, err := m.directory.VerifyPassword(creds.Password, ident.PasswordHash)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		m.metrics.authRejected("bad_password")
		m.log.InfoContext(ctx, "session.sign_in.fail", "reason", "bad_password", "identity_id", ident.ID, "ip", dev.IP)
		return Result{}, opErr(op, ErrUnauthorized, "invalid credentials")
	}

	res, err := m.issue(ctx, ident, dev)
	if err != nil {
		return Result{}, err
	}

	m.metrics.sessionIssued("sign_in")
	m.log.InfoContext(ctx, "session.sign_in", "identity_id", ident.ID, "session_id", res.SessionID)
	return res, nil
}

// Refresh consumes a verified refresh token and returns a new pair. The
// record holding the token is replaced atomically; if none holds it (already
// rotated, logged out or replayed) ErrRevokedToken is returned and nothing
// is minted for the caller.
func (m *Manager) Refresh(ctx context.Context, v credential.Verified, dev Device) (credential.Pair, error) {
	const op = "session.Refresh"

	if v.Kind() != credential.KindRefresh {
		m.metrics.authRejected("wrong_kind")
		return credential.Pair{}, opErr(op, credential.ErrInvalidToken, "refresh token required")
	}

	p := v.Payload()
	now := m.now()
	pair, err := m.encoder.Mint(p, now)
	if err != nil {
		return credential.Pair{}, err
	}

	refreshHash := m.hasher.Hash(v.Token())
	next := m.record(p.IdentityID, pair, dev, now)
	prevID, err := m.store.Rotate(ctx, refreshHash, next)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			m.metrics.authRejected("refresh_revoked")
			m.log.WarnContext(ctx, "session.refresh.replay", "identity_id", p.IdentityID, "jti", v.ID(), "ip", dev.IP)
			return credential.Pair{}, opErr(op, ErrRevokedToken, "refresh token is no longer valid")
		}
		return credential.Pair{}, err
	}

	m.metrics.sessionIssued("refresh")
	m.metrics.sessionsRevoked("rotated", 1)
	m.log.InfoContext(ctx, "session.refresh", "identity_id", p.IdentityID, "session_id", prevID)
	m.publish(ctx, events.Event{Kind: events.KindRotated, IdentityID: p.IdentityID, SessionID: prevID, Reason: "refresh"})
	return pair, nil
}

// Logout deletes the session holding the verified access token. Logging out
// an already deleted session succeeds and changes nothing.
func (m *Manager) Logout(ctx context.Context, v credential.Verified) error {
	const op = "session.Logout"

	if v.Kind() != credential.KindAccess {
		return opErr(op, credential.ErrInvalidToken, "access token required")
	}

	p := v.Payload()
	f := ByAccessHash(m.hasher.Hash(v.Token()))

	rec, err := m.store.FindOne(ctx, f)
	switch {
	case errors.Is(err, ErrRecordNotFound):
	case err != nil:
		return err
	default:
		n, err := m.store.DeleteOne(ctx, ByID(rec.ID))
		if err != nil {
			return err
		}
		if n > 0 {
			m.metrics.sessionsRevoked("logout", n)
			m.publish(ctx, events.Event{Kind: events.KindRevoked, IdentityID: p.IdentityID, SessionID: rec.ID, Reason: "logout"})
		}
	}

	m.log.InfoContext(ctx, "session.logout", "identity_id", p.IdentityID, "session_id", rec.ID)
	m.notify(ctx, identity.NotifyLogout, p.Email, map[string]string{"name": p.Name})
	return nil
}

// LogoutAll deletes every session of the token's identity. Sessions created
// concurrently with the delete may survive.
func (m *Manager) LogoutAll(ctx context.Context, v credential.Verified) error {
	const op = "session.LogoutAll"

	if v.Kind() != credential.KindAccess {
		return opErr(op, credential.ErrInvalidToken, "access token required")
	}

	p := v.Payload()
	n, err := m.store.DeleteAll(ctx, ByIdentity(p.IdentityID))
	if err != nil {
		return err
	}
	if n > 0 {
		m.metrics.sessionsRevoked("logout_all", n)
		m.publish(ctx, events.Event{Kind: events.KindRevoked, IdentityID: p.IdentityID, Reason: "logout_all"})
	}

	m.log.InfoContext(ctx, "session.logout_all", "identity_id", p.IdentityID, "deleted", n)
	m.notify(ctx, identity.NotifyLogout, p.Email, map[string]string{"name": p.Name})
	return nil
}

// Authenticate verifies an access token and checks that its session is
// still live.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (credential.Verified, error) {
	v, _, err := m.AuthenticateSession(ctx, accessToken)
	return v, err
}

// AuthenticateSession is Authenticate that also returns the live record.
func (m *Manager) AuthenticateSession(ctx context.Context, accessToken string) (credential.Verified, Record, error) {
	const op = "session.Authenticate"

	v, err := m.encoder.Verify(accessToken, credential.KindAccess, m.now())
	if err != nil {
		return credential.Verified{}, Record{}, err
	}

	rec, err := m.store.FindOne(ctx, ByAccessHash(m.hasher.Hash(accessToken)))
	if errors.Is(err, ErrRecordNotFound) {
		m.metrics.authRejected("access_revoked")
		return credential.Verified{}, Record{}, opErr(op, ErrRevokedToken, "session is no longer active")
	}
	if err != nil {
		return credential.Verified{}, Record{}, err
	}
	if rec.IdentityID != v.Payload().IdentityID {
		return credential.Verified{}, Record{}, opErr(op, credential.ErrInvalidToken, "session owner mismatch")
	}
	return v, rec, nil
}

// Drain waits for in-flight notifications or until ctx ends.
func (m *Manager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) issue(ctx context.Context, ident identity.Identity, dev Device) (Result, error) {
	now := m.now()
	pair, err := m.encoder.Mint(payloadOf(ident), now)
	if err != nil {
		return Result{}, err
	}

	id, err := m.store.Create(ctx, m.record(ident.ID, pair, dev, now))
	if err != nil {
		return Result{}, err
	}
	return Result{Identity: ident, Tokens: pair, SessionID: id}, nil
}

func (m *Manager) record(identityID string, pair credential.Pair, dev Device, now time.Time) Record {
	return Record{
		IdentityID:       identityID,
		AccessTokenHash:  m.hasher.Hash(pair.AccessToken),
		RefreshTokenHash: m.hasher.Hash(pair.RefreshToken),
		UserAgent:        dev.UserAgent,
		IP:               dev.IP,
		CreatedAt:        now,
		ExpiresAt:        pair.RefreshExpiresAt,
	}
}

// notify delivers on its own goroutine with a context detached from the
// request. Failures are logged and counted only.
func (m *Manager) notify(ctx context.Context, kind identity.NotifyKind, email string, data map[string]string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.notifyTimeout)
		defer cancel()

		if err := m.notifier.Notify(nctx, kind, email, data); err != nil {
			m.metrics.notifyFailure(string(kind))
			m.log.WarnContext(nctx, "session.notify.fail", "kind", kind, "error", err)
		}
	}()
}

func (m *Manager) publish(ctx context.Context, e events.Event) {
	if m.publisher == nil {
		return
	}
	e.At = m.now()
	m.publisher.Publish(ctx, e)
}

func payloadOf(ident identity.Identity) credential.Payload {
	return credential.Payload{
		IdentityID: ident.ID,
		Email:      ident.Email,
		Name:       ident.Name,
		Role:       string(ident.Role),
	}
}
