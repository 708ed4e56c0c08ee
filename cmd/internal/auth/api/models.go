package authapi

import (
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/credential"
	"sessiond/cmd/internal/auth/session"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type tokensResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type authResponse struct {
	User      userResponse   `json:"user"`
	Tokens    tokensResponse `json:"tokens"`
	SessionID string         `json:"session_id"`
}

type refreshResponse struct {
	Tokens tokensResponse `json:"tokens"`
}

type meResponse struct {
	User      userResponse `json:"user"`
	SessionID string       `json:"session_id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toUserResponse(u identity.Identity) userResponse {
	created := u.CreatedAt
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: &created,
	}
}

func payloadUserResponse(p credential.Payload) userResponse {
	return userResponse{ID: p.IdentityID, Email: p.Email, Name: p.Name, Role: p.Role}
}

func toTokensResponse(p credential.Pair) tokensResponse {
	return tokensResponse{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func toAuthResponse(res session.Result) authResponse {
	return authResponse{
		User:      toUserResponse(res.Identity),
		Tokens:    toTokensResponse(res.Tokens),
		SessionID: res.SessionID,
	}
}
