package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sareehub-backend/pkg/config"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "sareehub", ExpirationMinutes: 30}
}

func mint(t *testing.T, cfg config.JWTConfig, at time.Time, role enums.MemberRole) (string, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	token, err := MintAccessToken(cfg, at, AccessTokenPayload{UserID: userID, Role: role})
	require.NoError(t, err)
	return token, userID
}

func TestVerifierReturnsActor(t *testing.T) {
	cfg := testJWTConfig()
	token, userID := mint(t, cfg, time.Now(), enums.MemberRoleAdmin)

	v, err := NewVerifier(cfg)
	require.NoError(t, err)
	actor, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, Actor{UserID: userID, Role: enums.MemberRoleAdmin}, actor)
}

func TestParseAccessTokenKeepsRegisteredClaims(t *testing.T) {
	cfg := testJWTConfig()
	token, userID := mint(t, cfg, time.Now(), enums.MemberRoleCustomer)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, userID.String(), claims.Subject)
	require.NotEmpty(t, claims.ID)
	require.False(t, claims.IsAdmin())
}

func TestVerifierLeeway(t *testing.T) {
	cfg := testJWTConfig()
	// expired ten seconds ago
	token, _ := mint(t, cfg, time.Now().Add(-30*time.Minute-10*time.Second), enums.MemberRoleCustomer)

	strict, err := NewVerifier(cfg)
	require.NoError(t, err)
	_, err = strict.Verify(token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	cfg.Leeway = time.Minute
	lenient, err := NewVerifier(cfg)
	require.NoError(t, err)
	_, err = lenient.Verify(token)
	require.NoError(t, err)
}

func TestVerifierRejectsForeignTokens(t *testing.T) {
	cfg := testJWTConfig()
	token, _ := mint(t, cfg, time.Now(), enums.MemberRoleCustomer)

	other := cfg
	other.Issuer = "someone-else"
	v, err := NewVerifier(other)
	require.NoError(t, err)
	_, err = v.Verify(token)
	require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	other = cfg
	other.Secret = "other"
	v, err = NewVerifier(other)
	require.NoError(t, err)
	_, err = v.Verify(token)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestVerifierRequiresExpiry(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		UserID:           uuid.New(),
		Role:             enums.MemberRoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	v, err := NewVerifier(cfg)
	require.NoError(t, err)
	_, err = v.Verify(token)
	require.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)
}

func TestMintValidation(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "owner"})
	require.Error(t, err)
	_, err = MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{Role: enums.MemberRoleAdmin})
	require.Error(t, err)
	_, err = NewVerifier(config.JWTConfig{Issuer: "x"})
	require.ErrorIs(t, err, errSecretRequired)
}
