package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/videotube/api/internal/config"
)

// maxPasswordLength is the bcrypt input limit, applied to every hasher.
const maxPasswordLength = 72

// PasswordHasher hashes and verifies stored credentials.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	// Verify reports whether plaintext matches digest. It never errors; a
	// malformed digest simply does not match.
	Verify(plaintext, digest string) bool
}

// NewPasswordHasher hashes new passwords with the algorithm selected by
// cfg.PasswordHasher and verifies digests of either supported algorithm.
func NewPasswordHasher(cfg config.AuthConfig) PasswordHasher {
	h := &digestHasher{
		bcrypt:   NewBcryptHasher(cfg.BcryptCost),
		argon2id: NewArgon2idHasher(),
	}
	h.primary = h.bcrypt
	if cfg.PasswordHasher == config.HasherArgon2id {
		h.primary = h.argon2id
	}
	return h
}

// digestHasher picks the verifier from the digest prefix, so switching the
// configured algorithm keeps existing digests valid.
type digestHasher struct {
	primary  PasswordHasher
	bcrypt   *BcryptHasher
	argon2id *Argon2idHasher
}

func (h *digestHasher) Hash(plaintext string) (string, error) {
	return h.primary.Hash(plaintext)
}

func (h *digestHasher) Verify(plaintext, digest string) bool {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return h.argon2id.Verify(plaintext, digest)
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return h.bcrypt.Verify(plaintext, digest)
	}
	return false
}

// BcryptHasher stores bcrypt digests.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordLength {
		return "", fmt.Errorf("password exceeds maximum length of %d bytes", maxPasswordLength)
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// Argon2idHasher stores PHC-formatted argon2id digests:
// $argon2id$v=19$m=65536,t=3,p=2$salt$hash
type Argon2idHasher struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{
		memory:      64 * 1024,
		iterations:  3,
		parallelism: 2,
		saltLength:  16,
		keyLength:   32,
	}
}

func (h *Argon2idHasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.iterations, h.memory, h.parallelism, h.keyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.iterations,
		h.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2idHasher) Verify(plaintext, digest string) bool {
	params, salt, expected, err := decodeArgon2id(digest)
	if err != nil {
		return false
	}

	key := argon2.IDKey([]byte(plaintext), salt, params.iterations, params.memory, params.parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1
}

func decodeArgon2id(digest string) (Argon2idHasher, []byte, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Argon2idHasher{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2idHasher{}, nil, nil, ErrInvalidHash
	}

	var params Argon2idHasher
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.iterations, &params.parallelism); err != nil {
		return Argon2idHasher{}, nil, nil, ErrInvalidHash
	}
	if params.memory == 0 || params.iterations < 1 || params.parallelism < 1 {
		return Argon2idHasher{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2idHasher{}, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Argon2idHasher{}, nil, nil, ErrInvalidHash
	}
	return params, salt, key, nil
}
