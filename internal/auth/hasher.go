package auth

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrUnrecognizedDigest is returned by Verify when the stored digest was not
// produced by that hasher.
var ErrUnrecognizedDigest = errors.New("unrecognized password digest")

const (
	HasherSHA1     = "sha1"
	HasherArgon2ID = "argon2id"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
}

// SHA1Hasher produces unsalted hex SHA-1 digests. It exists to keep
// accounts created by the legacy service able to log in.
type SHA1Hasher struct{}

func (SHA1Hasher) Hash(password string) (string, error) {
	sum := sha1.Sum([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (h SHA1Hasher) Verify(password, digest string) (bool, error) {
	if len(digest) != sha1.Size*2 {
		return false, ErrUnrecognizedDigest
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return false, ErrUnrecognizedDigest
	}
	candidate, _ := h.Hash(password)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(strings.ToLower(digest))) == 1, nil
}

type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      19 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2Hasher encodes digests in PHC form:
// $argon2id$v=19$m=<kib>,t=<iterations>,p=<lanes>$<salt>$<hash>
type Argon2Hasher struct {
	cfg Argon2Config
}

func NewArgon2Hasher(cfg Argon2Config) (*Argon2Hasher, error) {
	if cfg.Memory == 0 || cfg.Time == 0 || cfg.Parallelism == 0 {
		return nil, fmt.Errorf("argon2 memory, time and parallelism must be > 0")
	}
	if cfg.SaltLength < 8 {
		return nil, fmt.Errorf("argon2 salt length must be >= 8")
	}
	if cfg.KeyLength < 16 {
		return nil, fmt.Errorf("argon2 key length must be >= 16")
	}
	return &Argon2Hasher{cfg: cfg}, nil
}

func (a *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, a.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		HasherArgon2ID,
		argon2.Version,
		a.cfg.Memory,
		a.cfg.Time,
		a.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a *Argon2Hasher) Verify(password, digest string) (bool, error) {
	if !strings.HasPrefix(digest, "$"+HasherArgon2ID+"$") {
		return false, ErrUnrecognizedDigest
	}
	p, err := parseArgon2Digest(digest)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

type argon2Digest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parseArgon2Digest(digest string) (argon2Digest, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != HasherArgon2ID {
		return argon2Digest{}, fmt.Errorf("invalid argon2 digest format")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return argon2Digest{}, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}

	var out argon2Digest
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return argon2Digest{}, fmt.Errorf("invalid argon2 parameter %q", kv)
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return argon2Digest{}, fmt.Errorf("invalid argon2 parameter %q", kv)
		}
		switch k {
		case "m":
			out.memory = uint32(n)
		case "t":
			out.time = uint32(n)
		case "p":
			if n > 255 {
				return argon2Digest{}, fmt.Errorf("invalid argon2 parameter %q", kv)
			}
			out.parallelism = uint8(n)
		default:
			return argon2Digest{}, fmt.Errorf("unknown argon2 parameter %q", k)
		}
	}
	if out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return argon2Digest{}, fmt.Errorf("missing argon2 parameters")
	}

	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return argon2Digest{}, fmt.Errorf("decode argon2 salt: %w", err)
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return argon2Digest{}, fmt.Errorf("decode argon2 key: %w", err)
	}
	if len(out.key) == 0 {
		return argon2Digest{}, fmt.Errorf("empty argon2 key")
	}
	return out, nil
}

// MigratingHasher hashes with Primary and verifies with the first hasher
// that recognizes the stored digest.
type MigratingHasher struct {
	Primary PasswordHasher
	Legacy  []PasswordHasher
}

func (m MigratingHasher) Hash(password string) (string, error) {
	return m.Primary.Hash(password)
}

func (m MigratingHasher) Verify(password, digest string) (bool, error) {
	for _, h := range append([]PasswordHasher{m.Primary}, m.Legacy...) {
		ok, err := h.Verify(password, digest)
		if errors.Is(err, ErrUnrecognizedDigest) {
			continue
		}
		return ok, err
	}
	return false, ErrUnrecognizedDigest
}

// NewPasswordHasher builds the hasher named by name. With legacySHA1 set,
// digests written by SHA1Hasher keep verifying.
func NewPasswordHasher(name string, legacySHA1 bool) (PasswordHasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case HasherSHA1:
		return SHA1Hasher{}, nil
	case HasherArgon2ID, "":
		a, err := NewArgon2Hasher(DefaultArgon2Config())
		if err != nil {
			return nil, err
		}
		if !legacySHA1 {
			return a, nil
		}
		return MigratingHasher{Primary: a, Legacy: []PasswordHasher{SHA1Hasher{}}}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}
