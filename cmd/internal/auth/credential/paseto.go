package credential

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/google/uuid"
)

const (
	pasetoHeader     = "v4.public."
	ed25519SigLength = 64
)

type pasetoKeys struct {
	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
	ok     bool
}

// PasetoEncoder signs PASETO v4.public tokens with Ed25519 keys, one keypair
// per token kind.
type PasetoEncoder struct {
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	skew       time.Duration
	keys       map[Kind]pasetoKeys
}

var _ Encoder = (*PasetoEncoder)(nil)

// NewPaseto builds a PasetoEncoder. Keys that fail to decode make Mint and
// Verify return ErrEncoding.
func NewPaseto(cfg Config) *PasetoEncoder {
	return &PasetoEncoder{
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		skew:       cfg.ClockSkew,
		keys: map[Kind]pasetoKeys{
			KindAccess:  loadPasetoKey(cfg.PasetoAccessKeyHex),
			KindRefresh: loadPasetoKey(cfg.PasetoRefreshKeyHex),
		},
	}
}

func loadPasetoKey(h string) pasetoKeys {
	if h == "" {
		return pasetoKeys{}
	}
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(h)
	if err != nil {
		return pasetoKeys{}
	}
	return pasetoKeys{secret: secret, public: secret.Public(), ok: true}
}

// PublicKeyHex exports the verification key for kind, for services that
// verify access tokens without minting them.
func (e *PasetoEncoder) PublicKeyHex(kind Kind) string {
	k := e.keys[kind]
	if !k.ok {
		return ""
	}
	return k.public.ExportHex()
}

func (e *PasetoEncoder) Mint(p Payload, now time.Time) (Pair, error) {
	access, accessExp, err := e.sign(p, KindAccess, now, e.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := e.sign(p, KindRefresh, now, e.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (e *PasetoEncoder) sign(p Payload, kind Kind, now time.Time, ttl time.Duration) (string, time.Time, error) {
	k := e.keys[kind]
	if !k.ok {
		return "", time.Time{}, fmt.Errorf("%w: %s key missing or not valid hex", ErrEncoding, kind)
	}

	exp := now.Add(ttl)
	tok := paseto.NewToken()
	tok.SetIssuer(e.issuer)
	tok.SetSubject(p.IdentityID)
	tok.SetJti(uuid.NewString())
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	tok.SetString("email", p.Email)
	tok.SetString("name", p.Name)
	tok.SetString("role", p.Role)
	tok.SetString("typ", string(kind))

	return tok.V4Sign(k.secret, nil), exp, nil
}

func (e *PasetoEncoder) Verify(token string, kind Kind, now time.Time) (Verified, error) {
	if !kind.valid() {
		return Verified{}, ErrInvalidToken
	}
	k := e.keys[kind]
	if !k.ok {
		return Verified{}, fmt.Errorf("%w: %s key missing", ErrEncoding, kind)
	}
	if !wellFormedPaseto(token) {
		return Verified{}, ErrMalformedToken
	}

	// Expiry is checked by hand below so it can be told apart from other
	// failures and so skew applies to it.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(e.issuer))

	parsed, err := p.ParseV4Public(k.public, token, nil)
	if err != nil {
		return Verified{}, ErrInvalidToken
	}

	exp, err := parsed.GetExpiration()
	if err != nil {
		return Verified{}, ErrInvalidToken
	}
	if now.After(exp.Add(e.skew)) {
		return Verified{}, ErrExpiredToken
	}
	if nbf, err := parsed.GetNotBefore(); err == nil && now.Add(e.skew).Before(nbf) {
		return Verified{}, ErrInvalidToken
	}

	typ, err := parsed.GetString("typ")
	if err != nil || Kind(typ) != kind {
		return Verified{}, ErrInvalidToken
	}
	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return Verified{}, ErrInvalidToken
	}

	email, _ := parsed.GetString("email")
	name, _ := parsed.GetString("name")
	role, _ := parsed.GetString("role")
	jti, _ := parsed.GetJti()

	return Verified{
		payload:   Payload{IdentityID: sub, Email: email, Name: name, Role: role},
		kind:      kind,
		token:     token,
		id:        jti,
		expiresAt: exp,
	}, nil
}

// wellFormedPaseto checks the v4.public framing: header, a base64url body
// long enough to hold a signature, and an optional footer.
func wellFormedPaseto(token string) bool {
	rest, ok := strings.CutPrefix(token, pasetoHeader)
	if !ok {
		return false
	}
	body, footer, hasFooter := strings.Cut(rest, ".")
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil || len(raw) <= ed25519SigLength {
		return false
	}
	if hasFooter {
		if _, err := base64.RawURLEncoding.DecodeString(footer); err != nil {
			return false
		}
	}
	return true
}
