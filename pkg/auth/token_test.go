package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/medtrail/pkg/contextkeys"
)

func TestNewTokenManager(t *testing.T) {
	_, err := NewTokenManager("")
	assert.Error(t, err)

	tm, err := NewTokenManager("secret")
	require.NoError(t, err)
	assert.NotNil(t, tm)
}

func TestTokenManager_IssueVerify(t *testing.T) {
	tm, err := NewTokenManager("test-secret")
	require.NoError(t, err)

	in := Principal{UserID: "u-42", ID: "sub-42", Role: RoleLabTech, Username: "maria", Name: "Maria Lopez"}
	token, err := tm.Issue(in, time.Hour)
	require.NoError(t, err)

	out, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, in, *out)
}

func TestTokenManager_VerifyRejects(t *testing.T) {
	tm, err := NewTokenManager("test-secret")
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := tm.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenManager("other-secret")
		require.NoError(t, err)
		token, err := other.Issue(Principal{UserID: "u-1"}, time.Hour)
		require.NoError(t, err)

		_, err = tm.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := tm.Issue(Principal{UserID: "u-1"}, time.Minute)
		require.NoError(t, err)

		tm.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { tm.now = time.Now }()

		_, err = tm.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: TokenIssuer},
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = tm.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPrincipal_DisplayName(t *testing.T) {
	var nilPrincipal *Principal
	assert.Equal(t, "", nilPrincipal.DisplayName())
	assert.Equal(t, "maria", (&Principal{Username: "maria", Name: "Maria"}).DisplayName())
	assert.Equal(t, "Maria", (&Principal{Name: "Maria"}).DisplayName())
}

func TestPrincipalFromContext(t *testing.T) {
	assert.Nil(t, PrincipalFromContext(context.Background()))

	p := &Principal{UserID: "u-1"}
	ctx := contextkeys.WithPrincipal(context.Background(), p)
	assert.Same(t, p, PrincipalFromContext(ctx))

	ctx = contextkeys.WithPrincipal(context.Background(), "not a principal")
	assert.Nil(t, PrincipalFromContext(ctx))
}
