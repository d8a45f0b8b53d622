package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

// Scheme selects the digest format for newly hashed passwords
type Scheme string

const (
	SchemeArgon2id Scheme = "argon2id"
	SchemeSHA256   Scheme = "sha256" // unsalted legacy format
)

const argon2Prefix = "$argon2id$"

// Argon2Params tunes the argon2id key derivation
type Argon2Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params returns the RFC 9106 second recommended option
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:  64 * 1024,
		Time:    3,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// ParseScheme validates a configured scheme name
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(s)) {
	case SchemeArgon2id:
		return SchemeArgon2id, nil
	case SchemeSHA256:
		return SchemeSHA256, nil
	default:
		return "", fmt.Errorf("unknown password scheme %q", s)
	}
}

// PasswordHasher produces and verifies password digests. The number of
// digests computed at once is capped (see WithMaxConcurrent); further callers
// wait.
type PasswordHasher struct {
	scheme Scheme
	params Argon2Params
	slots  *semaphore.Weighted
	// dummy is a digest no password matches, used to price a missing account
	// like a wrong password
	dummy string
}

// DefaultMaxConcurrent bounds parallel digest computations to the CPU count
func DefaultMaxConcurrent() int {
	return runtime.NumCPU()
}

// NewPasswordHasher creates a hasher writing digests in the given scheme
func NewPasswordHasher(scheme Scheme) *PasswordHasher {
	return NewPasswordHasherWithParams(scheme, DefaultArgon2Params())
}

// NewPasswordHasherWithParams creates a hasher with explicit argon2id parameters
func NewPasswordHasherWithParams(scheme Scheme, params Argon2Params) *PasswordHasher {
	if scheme == "" {
		scheme = SchemeArgon2id
	}
	h := &PasswordHasher{scheme: scheme, params: params}
	h.dummy = h.dummyDigest()
	return h.WithMaxConcurrent(DefaultMaxConcurrent())
}

// WithMaxConcurrent sets how many digests may be computed in parallel.
// n < 1 is treated as 1.
func (h *PasswordHasher) WithMaxConcurrent(n int) *PasswordHasher {
	if n < 1 {
		n = 1
	}
	h.slots = semaphore.NewWeighted(int64(n))
	return h
}

// dummyDigest encodes random bytes in the hasher's own format and cost, so
// verifying against it takes as long as verifying a real digest
func (h *PasswordHasher) dummyDigest() string {
	if h.scheme == SchemeSHA256 {
		return LegacyDigest(rand.Text())
	}
	salt := make([]byte, h.params.SaltLen)
	key := make([]byte, h.params.KeyLen)
	_, _ = rand.Read(salt)
	_, _ = rand.Read(key)
	return encodeArgon2(h.params, salt, key)
}

func encodeArgon2(p Argon2Params, salt, key []byte) string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// LegacyDigest returns the base64-encoded SHA-256 of the UTF-8 password.
// Same input, same output.
func LegacyDigest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Hash returns a digest of password in the hasher's scheme. It waits for a
// free slot and fails with ctx's error if ctx ends first.
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if h.scheme == SchemeSHA256 {
		return LegacyDigest(password), nil
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	h.slots.Release(1)

	return encodeArgon2(h.params, salt, key), nil
}

// Verify checks password against a stored digest. needsRehash is true when the
// password matched a digest older than the hasher's scheme. A ctx that ends
// while waiting for a slot reports no match.
func (h *PasswordHasher) Verify(ctx context.Context, password, digest string) (ok bool, needsRehash bool) {
	if !strings.HasPrefix(digest, argon2Prefix) {
		want := LegacyDigest(password)
		ok = subtle.ConstantTimeCompare([]byte(want), []byte(digest)) == 1
		return ok, ok && h.scheme == SchemeArgon2id
	}

	params, salt, key, err := decodeArgon2(digest)
	if err != nil {
		return false, false
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, false
	}
	got := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(key)))
	h.slots.Release(1)

	return subtle.ConstantTimeCompare(got, key) == 1, false
}

// VerifyMissing does the work of a failed Verify for an account that does
// not exist, so both failures take the same time
func (h *PasswordHasher) VerifyMissing(ctx context.Context, password string) {
	h.Verify(ctx, password, h.dummy)
}

var errMalformedDigest = errors.New("malformed argon2id digest")

func decodeArgon2(digest string) (Argon2Params, []byte, []byte, error) {
	// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return Argon2Params{}, nil, nil, errMalformedDigest
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Params{}, nil, nil, errMalformedDigest
	}

	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return Argon2Params{}, nil, nil, errMalformedDigest
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, errMalformedDigest
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Argon2Params{}, nil, nil, errMalformedDigest
	}

	return p, salt, key, nil
}
