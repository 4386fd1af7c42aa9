// Package identity turns bearer tokens into user profiles.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"crawlmind/internal/model"
	"crawlmind/internal/pkg/jwtutil"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const (
	ProviderLocal = "local"
	ProviderJWKS  = "jwks"
)

// UserProfile is the caller as seen by the rest of the application. ID is
// the identity used to partition knowledge bases and sessions.
type UserProfile struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Provider string `json:"provider"`
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*UserProfile, error)
}

// LocalVerifier accepts HS256 tokens issued by the local auth service.
type LocalVerifier struct {
	secret string
}

func NewLocalVerifier(secret string) *LocalVerifier {
	return &LocalVerifier{secret: secret}
}

func (v *LocalVerifier) Verify(_ context.Context, token string) (*UserProfile, error) {
	claims, err := jwtutil.ParseToken(v.secret, token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return LocalProfile(claims), nil
}

func LocalProfile(claims *jwtutil.Claims) *UserProfile {
	return &UserProfile{
		ID:       model.LocalIdentity(claims.UserID),
		Name:     claims.Username,
		Provider: ProviderLocal,
	}
}

// HostedProfile maps the session claims of a hosted identity provider.
// The subject is the identity; email, name and image come from the custom
// session claims when the provider is configured to emit them.
func HostedProfile(claims jwt.MapClaims) *UserProfile {
	sub, _ := claims.GetSubject()
	name := stringClaim(claims, "name")
	if name == "" {
		name = strings.TrimSpace(stringClaim(claims, "first_name") + " " + stringClaim(claims, "last_name"))
	}
	return &UserProfile{
		ID:       sub,
		Email:    stringClaim(claims, "email"),
		Name:     name,
		ImageURL: stringClaim(claims, "image_url"),
		Provider: ProviderJWKS,
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return strings.TrimSpace(v)
}
