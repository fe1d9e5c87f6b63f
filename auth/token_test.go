package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	chaterrors "chat-relay/errors"
)

func TestAuthenticator_GenerateAndValidate(t *testing.T) {
	req := require.New(t)
	authenticator := NewAuthenticator("test-secret")

	token, err := authenticator.GenerateToken("alice", time.Hour)
	req.NoError(err)

	claims, err := authenticator.ValidateToken(token)
	req.NoError(err)
	req.Equal("alice", claims.UserID)
}

func TestAuthenticator_ValidateToken_Expired(t *testing.T) {
	req := require.New(t)
	authenticator := NewAuthenticator("test-secret")

	token, err := authenticator.GenerateToken("alice", -time.Minute)
	req.NoError(err)

	_, err = authenticator.ValidateToken(token)
	req.Error(err)
}

func TestAuthenticator_ValidateToken_WrongSecret(t *testing.T) {
	req := require.New(t)
	issuer := NewAuthenticator("issuer-secret")
	verifier := NewAuthenticator("different-secret")

	token, err := issuer.GenerateToken("alice", time.Hour)
	req.NoError(err)

	_, err = verifier.ValidateToken(token)
	req.Error(err)
}

func TestAuthenticator_Authorize_FailureModes(t *testing.T) {
	req := require.New(t)
	authenticator := NewAuthenticator("test-secret")

	token, err := authenticator.GenerateToken("alice", time.Hour)
	req.NoError(err)

	// Happy path
	req.NoError(authenticator.Authorize(token, "alice"))

	// Missing, invalid, and mismatched stay distinguishable for the
	// transport's close-code mapping
	req.ErrorIs(authenticator.Authorize("", "alice"), chaterrors.ErrMissingCredential)
	req.ErrorIs(authenticator.Authorize("garbage", "alice"), chaterrors.ErrInvalidCredential)
	req.ErrorIs(authenticator.Authorize(token, "mallory"), chaterrors.ErrIdentityMismatch)
}
