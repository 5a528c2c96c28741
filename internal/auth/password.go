package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrWeakPassword    = errors.New("weak password")
	ErrUnsupportedHash = errors.New("unsupported password hash")
)

const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 2
	argonKeyLen  = 32
	argonSaltLen = 16

	// Stored hashes asking for more than this are refused rather than run.
	maxArgonMemory = 1 << 20

	MinPasswordLength = 8
	maxPasswordLength = 128
)

// HashPassword returns an argon2id hash in PHC form:
// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks password against an argon2id PHC string or a bcrypt
// hash. A mismatch is reported as false with a nil error.
func VerifyPassword(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		salt, hash, p, err := decodePHC(encoded)
		if err != nil {
			return false, err
		}
		candidate := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(hash)))
		return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("compare bcrypt hash: %w", err)
		}
		return true, nil
	default:
		return false, ErrUnsupportedHash
	}
}

// CheckPasswordPolicy enforces length bounds and rejects surrounding spaces.
func CheckPasswordPolicy(password string) error {
	if strings.TrimSpace(password) != password {
		return ErrWeakPassword
	}
	if len(password) < MinPasswordLength || len(password) > maxPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func decodePHC(encoded string) (salt, hash []byte, p argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, p, fmt.Errorf("%w: malformed argon2id hash", ErrUnsupportedHash)
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, p, fmt.Errorf("parse hash version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, p, fmt.Errorf("%w: argon2 version %d", ErrUnsupportedHash, version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, nil, p, fmt.Errorf("parse hash parameters: %w", err)
	}
	if p.time < 1 || p.threads < 1 || p.memory < 8*uint32(p.threads) || p.memory > maxArgonMemory {
		return nil, nil, p, fmt.Errorf("%w: argon2id parameters m=%d,t=%d,p=%d out of range",
			ErrUnsupportedHash, p.memory, p.time, p.threads)
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, p, fmt.Errorf("decode salt: %w", err)
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, p, fmt.Errorf("decode hash: %w", err)
	}
	if len(hash) == 0 {
		return nil, nil, p, fmt.Errorf("%w: empty argon2id digest", ErrUnsupportedHash)
	}
	return salt, hash, p, nil
}
