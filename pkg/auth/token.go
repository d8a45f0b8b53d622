package auth

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenTTL is how long an issued token stays valid
	DefaultTokenTTL = 7 * 24 * time.Hour
	// MinSecretLength is the shortest accepted HMAC signing secret, in bytes
	MinSecretLength = 32

	claimID    = "id"
	claimRole  = "role"
	claimRoles = "roles"
	// role claim type written by ASP.NET identity issuers
	claimRoleURI = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
)

var (
	// ErrSecretTooShort is returned when the signing secret is missing or shorter than MinSecretLength
	ErrSecretTooShort = fmt.Errorf("JWT secret must be at least %d bytes", MinSecretLength)
	// ErrInvalidToken covers bad signatures, expired tokens and malformed claims
	ErrInvalidToken = errors.New("invalid or expired token")
)

// TokenIssuer signs and validates HS256 bearer tokens
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. A ttl of zero means DefaultTokenTTL.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock replaces the time source used for issuing and expiry checks
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	i.now = now
	return i
}

// TTL returns the lifetime of issued tokens
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a signed token for user
func (i *TokenIssuer) Issue(user *User) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		claimID:   strconv.FormatInt(user.ID, 10),
		claimRole: string(user.Role),
		"iat":     now.Unix(),
		"exp":     now.Add(i.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature and expiry and returns the caller identity
func (i *TokenIssuer) Validate(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	return principalFromClaims(claims)
}

func principalFromClaims(claims jwt.MapClaims) (Principal, error) {
	var userID int64
	switch v := claims[claimID].(type) {
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Principal{}, ErrInvalidToken
		}
		userID = id
	case float64:
		if v != math.Trunc(v) || v >= math.MaxInt64 {
			return Principal{}, ErrInvalidToken
		}
		userID = int64(v)
	default:
		return Principal{}, ErrInvalidToken
	}
	// row ids start at 1
	if userID <= 0 {
		return Principal{}, ErrInvalidToken
	}

	role := RoleUser
	for _, key := range []string{claimRole, claimRoles, claimRoleURI} {
		for _, name := range claimStrings(claims[key]) {
			if strings.EqualFold(name, string(RoleAdmin)) {
				role = RoleAdmin
			}
		}
	}

	return Principal{UserID: userID, Role: role}, nil
}

// claimStrings flattens a claim that may be a string or a JSON array of strings
func claimStrings(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
