package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	chaterrors "chat-relay/errors"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer credentials issued by the external
// identity collaborator. Issuance itself lives outside this module; the
// signing secret is shared configuration, injected rather than hardcoded.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// GenerateToken creates a signed JWT for a specific user. Kept for tests
// and local tooling; production tokens come from the identity service.
func (a *Authenticator) GenerateToken(userID string, duration time.Duration) (string, error) {
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-relay",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses and validates the signature and expiration of a
// JWT string.
func (a *Authenticator) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// Authorize checks a session credential against the identity the client
// claims. The three failure modes stay distinguishable so the transport
// can map them to distinct close codes, without leaking anything further.
func (a *Authenticator) Authorize(tokenString, claimedUserID string) error {
	if tokenString == "" {
		return chaterrors.ErrMissingCredential
	}
	claims, err := a.ValidateToken(tokenString)
	if err != nil {
		return chaterrors.ErrInvalidCredential
	}
	if claims.UserID != claimedUserID {
		return chaterrors.ErrIdentityMismatch
	}
	return nil
}
