package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm задаёт алгоритм хеширования новых секретов.
type Algorithm string

const (
	AlgorithmBcrypt   Algorithm = "bcrypt"
	AlgorithmArgon2id Algorithm = "argon2id"
)

const argon2Prefix = "$argon2id$"

// ParseAlgorithm преобразует строку конфигурации в Algorithm.
func ParseAlgorithm(value string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(value))) {
	case "", AlgorithmBcrypt:
		return AlgorithmBcrypt, nil
	case AlgorithmArgon2id:
		return AlgorithmArgon2id, nil
	}
	return "", fmt.Errorf("unknown password algorithm %q", value)
}

// ArgonParams задаёт параметры Argon2id, записываемые в каждый хеш.
type ArgonParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultArgonParams возвращает параметры Argon2id по умолчанию.
func DefaultArgonParams() ArgonParams {
	return ArgonParams{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLen: 16, KeyLen: 32}
}

// Hasher создаёт новые солёные хеши секретов.
type Hasher struct {
	algorithm  Algorithm
	bcryptCost int
	argon      ArgonParams
}

// Option настраивает Hasher.
type Option func(*Hasher)

// WithBcryptCost задаёт стоимость bcrypt.
func WithBcryptCost(cost int) Option {
	return func(h *Hasher) { h.bcryptCost = cost }
}

// WithArgonParams задаёт параметры Argon2id.
func WithArgonParams(p ArgonParams) Option {
	return func(h *Hasher) { h.argon = p }
}

// NewHasher создаёт Hasher для выбранного алгоритма.
func NewHasher(alg Algorithm, opts ...Option) *Hasher {
	h := &Hasher{
		algorithm:  alg,
		bcryptCost: 10,
		argon:      DefaultArgonParams(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Algorithm возвращает алгоритм хешера.
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// Hash возвращает свежий солёный хеш секрета.
func (h *Hasher) Hash(secret string) (Credential, error) {
	if secret == "" {
		return Credential{}, ErrEmptySecret
	}

	switch h.algorithm {
	case AlgorithmArgon2id:
		encoded, err := hashArgon2(secret, h.argon)
		if err != nil {
			return Credential{}, err
		}
		return Hashed(encoded), nil
	default:
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.bcryptCost)
		if err != nil {
			return Credential{}, fmt.Errorf("bcrypt hash: %w", err)
		}
		return Hashed(string(hash)), nil
	}
}

func hashArgon2(secret string, params ArgonParams) (string, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(secret), salt, params.Time, params.Memory, params.Parallelism, params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Time, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyArgon2(secret, encoded string) (bool, error) {
	params, salt, hash, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(secret), salt, params.Time, params.Memory, params.Parallelism, params.KeyLen)
	return subtle.ConstantTimeCompare(hash, computed) == 1, nil
}

func decodeArgon2(encoded string) (ArgonParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ArgonParams{}, nil, nil, ErrMalformedCredential
	}

	var params ArgonParams
	for _, token := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			return ArgonParams{}, nil, nil, ErrMalformedCredential
		}
		var bits int
		switch key {
		case "m", "t":
			bits = 32
		case "p":
			bits = 8
		default:
			continue
		}
		v, err := strconv.ParseUint(value, 10, bits)
		if err != nil {
			return ArgonParams{}, nil, nil, ErrMalformedCredential
		}
		switch key {
		case "m":
			params.Memory = uint32(v)
		case "t":
			params.Time = uint32(v)
		case "p":
			params.Parallelism = uint8(v)
		}
	}
	if params.Time == 0 || params.Parallelism == 0 {
		return ArgonParams{}, nil, nil, ErrMalformedCredential
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return ArgonParams{}, nil, nil, ErrMalformedCredential
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return ArgonParams{}, nil, nil, ErrMalformedCredential
	}

	params.SaltLen = uint32(len(salt))
	params.KeyLen = uint32(len(hash))
	return params, salt, hash, nil
}
