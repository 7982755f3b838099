package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/auth"
)

const secret = "0123456789abcdef0123"

func TestIssueAndAuthenticate(t *testing.T) {
	a, err := NewJWTAuthenticator(secret)
	require.NoError(t, err)

	tok, err := a.Issue(auth.Identity{
		UserID: "user-1",
		Email:  "a@example.com",
		Name:   "Ana",
		Roles:  []string{auth.RoleAdmin},
	}, time.Hour)
	require.NoError(t, err)

	id, err := a.Authenticate(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "a@example.com", id.Email)
	assert.Equal(t, "Ana", id.Name)
	assert.True(t, id.HasRole(auth.RoleAdmin))
}

func TestAuthenticate_Rejects(t *testing.T) {
	a, err := NewJWTAuthenticator(secret)
	require.NoError(t, err)
	other, err := NewJWTAuthenticator("another-secret-value")
	require.NoError(t, err)

	expired := &JWTAuthenticator{secret: a.secret, now: func() time.Time { return time.Now().Add(-2 * time.Hour) }}
	expiredTok, err := expired.Issue(auth.Identity{UserID: "u"}, time.Hour)
	require.NoError(t, err)

	foreignTok, err := other.Issue(auth.Identity{UserID: "u"}, time.Hour)
	require.NoError(t, err)

	noSubTok, err := a.Issue(auth.Identity{}, time.Hour)
	require.NoError(t, err)

	noneTok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u"}).
		SignedString([]byte(secret))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"Empty":     "",
		"Garbage":   "not.a.token",
		"Expired":   expiredTok,
		"Foreign":   foreignTok,
		"NoSubject": noSubTok,
		"AlgNone":   noneTok,
		"NoExpiry":  noExpTok,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), tok)
			require.ErrorIs(t, err, auth.ErrUnauthorized)
		})
	}
}

func TestNewJWTAuthenticator_ShortSecret(t *testing.T) {
	_, err := NewJWTAuthenticator("short")
	require.Error(t, err)
}
