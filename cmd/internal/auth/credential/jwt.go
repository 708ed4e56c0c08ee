package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type jwtClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Type  Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// JWTEncoder signs HS256 JWTs. Access and refresh tokens use separate secrets
// so one can never verify as the other.
type JWTEncoder struct {
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	skew       time.Duration
	secrets    map[Kind][]byte
}

var _ Encoder = (*JWTEncoder)(nil)

// NewJWT builds a JWTEncoder. Missing or short secrets are reported by Mint
// as ErrEncoding rather than here.
func NewJWT(cfg Config) *JWTEncoder {
	return &JWTEncoder{
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		skew:       cfg.ClockSkew,
		secrets: map[Kind][]byte{
			KindAccess:  []byte(cfg.AccessSecret),
			KindRefresh: []byte(cfg.RefreshSecret),
		},
	}
}

func (e *JWTEncoder) Mint(p Payload, now time.Time) (Pair, error) {
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

func (e *JWTEncoder) sign(p Payload, kind Kind, now time.Time, ttl time.Duration) (string, time.Time, error) {
	key := e.secrets[kind]
	if len(key) < MinSecretBytes {
		return "", time.Time{}, fmt.Errorf("%w: %s secret missing or shorter than %d bytes", ErrEncoding, kind, MinSecretBytes)
	}

	exp := now.Add(ttl)
	claims := jwtClaims{
		Email: p.Email,
		Name:  p.Name,
		Role:  p.Role,
		Type:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.issuer,
			Subject:   p.IdentityID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return signed, exp, nil
}

func (e *JWTEncoder) Verify(token string, kind Kind, now time.Time) (Verified, error) {
	if !kind.valid() {
		return Verified{}, ErrInvalidToken
	}
	key := e.secrets[kind]
	if len(key) < MinSecretBytes {
		return Verified{}, fmt.Errorf("%w: %s secret missing", ErrEncoding, kind)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(e.issuer),
		jwt.WithLeeway(e.skew),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)

	var claims jwtClaims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Verified{}, ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenExpired):
		return Verified{}, ErrExpiredToken
	default:
		return Verified{}, ErrInvalidToken
	}

	if claims.Type != kind || claims.Subject == "" {
		return Verified{}, ErrInvalidToken
	}

	return Verified{
		payload: Payload{
			IdentityID: claims.Subject,
			Email:      claims.Email,
			Name:       claims.Name,
			Role:       claims.Role,
		},
		kind:      kind,
		token:     token,
		id:        claims.ID,
		expiresAt: claims.ExpiresAt.Time,
	}, nil
}
