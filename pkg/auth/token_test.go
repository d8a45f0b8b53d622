package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewTokenIssuer_SecretLength(t *testing.T) {
	_, err := NewTokenIssuer("", 0)
	assert.ErrorIs(t, err, ErrSecretTooShort)

	_, err = NewTokenIssuer(strings.Repeat("x", MinSecretLength-1), 0)
	assert.ErrorIs(t, err, ErrSecretTooShort)

	issuer, err := NewTokenIssuer(strings.Repeat("x", MinSecretLength), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, issuer.TTL())
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, 0)
	require.NoError(t, err)

	token, err := issuer.Issue(&User{ID: 42, Username: "alice", Role: RoleAdmin})
	require.NoError(t, err)

	principal, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), principal.UserID)
	assert.Equal(t, RoleAdmin, principal.Role)
}

func TestTokenIssuer_ClaimsOnTheWire(t *testing.T) {
	issued := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(testSecret, 0)
	require.NoError(t, err)
	issuer.WithClock(fixedClock(issued))

	token, err := issuer.Issue(&User{ID: 7, Role: RoleUser})
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)

	assert.Equal(t, "7", claims["id"])
	assert.Equal(t, "User", claims["role"])
	assert.Equal(t, float64(issued.Add(7*24*time.Hour).Unix()), claims["exp"])
}

func TestTokenIssuer_ExpiryBoundary(t *testing.T) {
	issued := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(testSecret, 0)
	require.NoError(t, err)

	issuer.WithClock(fixedClock(issued))
	token, err := issuer.Issue(&User{ID: 1, Role: RoleUser})
	require.NoError(t, err)

	issuer.WithClock(fixedClock(issued.Add(6 * 24 * time.Hour)))
	_, err = issuer.Validate(token)
	assert.NoError(t, err, "token should still be valid after 6 days")

	issuer.WithClock(fixedClock(issued.Add(8 * 24 * time.Hour)))
	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "token should be rejected after 8 days")
}

func TestTokenIssuer_RejectsWrongSecret(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, 0)
	require.NoError(t, err)
	other, err := NewTokenIssuer(strings.Repeat("z", 40), 0)
	require.NoError(t, err)

	token, err := other.Issue(&User{ID: 1, Role: RoleAdmin})
	require.NoError(t, err)

	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsMalformed(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, 0)
	require.NoError(t, err)

	for _, token := range []string{"", "abc", "a.b.c"} {
		_, err := issuer.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestTokenIssuer_RejectsOtherAlgorithms(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, 0)
	require.NoError(t, err)

	claims := jwt.MapClaims{"id": "1", "role": "Admin", "exp": time.Now().Add(time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RequiresExpiry(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, 0)
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "1"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPrincipalFromClaims_RoleSpellings(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   Role
	}{
		{"role claim", jwt.MapClaims{"id": "3", "role": "Admin"}, RoleAdmin},
		{"lowercase role", jwt.MapClaims{"id": "3", "role": "admin"}, RoleAdmin},
		{"roles string", jwt.MapClaims{"id": "3", "roles": "ADMIN"}, RoleAdmin},
		{"roles array", jwt.MapClaims{"id": "3", "roles": []interface{}{"User", "Admin"}}, RoleAdmin},
		{"uri claim", jwt.MapClaims{"id": "3", "http://schemas.microsoft.com/ws/2008/06/identity/claims/role": "Admin"}, RoleAdmin},
		{"plain user", jwt.MapClaims{"id": "3", "role": "User"}, RoleUser},
		{"no role", jwt.MapClaims{"id": "3"}, RoleUser},
		{"unknown role", jwt.MapClaims{"id": "3", "role": "Owner"}, RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := principalFromClaims(tt.claims)
			require.NoError(t, err)
			assert.Equal(t, int64(3), p.UserID)
			assert.Equal(t, tt.want, p.Role)
		})
	}
}

func TestPrincipalFromClaims_ID(t *testing.T) {
	p, err := principalFromClaims(jwt.MapClaims{"id": float64(9)})
	require.NoError(t, err)
	assert.Equal(t, int64(9), p.UserID)

	p, err = principalFromClaims(jwt.MapClaims{"id": "12"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), p.UserID)

	invalid := []struct {
		name string
		id   interface{}
	}{
		{"missing", nil},
		{"not a number", "nine"},
		{"zero string", "0"},
		{"negative string", "-3"},
		{"zero number", float64(0)},
		{"negative number", float64(-1)},
		{"fractional number", 1.9},
		{"out of range", 1e19},
		{"bool", true},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			claims := jwt.MapClaims{"role": "Admin"}
			if tt.id != nil {
				claims["id"] = tt.id
			}
			_, err := principalFromClaims(claims)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidate_RejectsNonPositiveID(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	for _, id := range []int64{0, -5} {
		token, err := issuer.Issue(&User{ID: id, Role: RoleUser})
		require.NoError(t, err)

		_, err = issuer.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "id %d", id)
	}
}
