package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/boardsync/apiserver/config"
	"github.com/boardsync/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Access:         config.TokenConfig{Secret: "access-secret", TTL: 15 * time.Minute},
		Refresh:        config.TokenConfig{Secret: "refresh-secret", TTL: 7 * 24 * time.Hour},
		EmailVerify:    config.TokenConfig{Secret: "verify-secret", TTL: 24 * time.Hour},
		ForgotPassword: config.TokenConfig{Secret: "forgot-secret", TTL: time.Hour},
	}
}

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testJWTConfig())
	require.NoError(t, err)
	return c
}

func TestSignVerifyRoundTripAllKinds(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now().Truncate(time.Second)
	c.now = func() time.Time { return now }

	for _, kind := range []types.TokenType{
		types.AccessToken,
		types.RefreshToken,
		types.EmailVerifyToken,
		types.ForgotPasswordToken,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			signed, err := c.Sign(kind, "user-1", types.UserVerified)
			require.NoError(t, err)

			payload, err := c.Verify(signed, kind)
			require.NoError(t, err)
			assert.Equal(t, "user-1", payload.UserID)
			assert.Equal(t, kind, payload.TokenType)
			assert.Equal(t, types.UserVerified, payload.Verify)
			assert.True(t, payload.IssuedAt.Equal(now))
			assert.True(t, payload.ExpiresAt.Equal(now.Add(c.TTL(kind))))
		})
	}
}

func TestVerifyExpiredDistinctFromTampered(t *testing.T) {
	c := newTestCodec(t)

	expired, err := c.SignWithExpiry(types.AccessToken, "user-1", types.UserVerified, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = c.Verify(expired, types.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.Equal(t, "Jwt expired", err.Error())

	valid, err := c.Sign(types.AccessToken, "user-1", types.UserVerified)
	require.NoError(t, err)
	parts := strings.Split(valid, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = c.Verify(tampered, types.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenSignatureInvalid))
	assert.Equal(t, "Invalid signature", err.Error())
}

func TestVerifyRejectsOtherKind(t *testing.T) {
	c := newTestCodec(t)
	refresh, err := c.Sign(types.RefreshToken, "user-1", types.UserUnverified)
	require.NoError(t, err)

	_, err = c.Verify(refresh, types.AccessToken)
	require.Error(t, err)
	var invalid *InvalidTokenError
	require.ErrorAs(t, err, &invalid)
}

func TestVerifyRejectsKindClaimEvenWithSharedSecret(t *testing.T) {
	cfg := testJWTConfig()
	cfg.EmailVerify.Secret = cfg.Access.Secret
	c, err := NewCodec(cfg)
	require.NoError(t, err)

	verifyTok, err := c.Sign(types.EmailVerifyToken, "user-1", types.UserUnverified)
	require.NoError(t, err)

	_, err = c.Verify(verifyTok, types.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenKindMismatch))
}

func TestVerifyRejectsMalformedAndForeignAlgorithm(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Verify("not-a-jwt", types.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenMalformed))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		UserID:    "user-1",
		TokenType: types.AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.Verify(unsigned, types.AccessToken)
	require.Error(t, err)
}

func TestNewCodecRequiresSecrets(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ForgotPassword.Secret = " "
	_, err := NewCodec(cfg)
	require.Error(t, err)
}
