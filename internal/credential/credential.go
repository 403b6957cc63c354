// Package credential проверяет и создаёт учётные данные (PIN) пользователей кассы.
//
// Учётные данные хранятся в размеченном виде: вид (plain или hashed) определяется
// при записи, а не угадывается при чтении. Старые неразмеченные строки
// переносятся один раз при декодировании.
package credential

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Kind задаёт способ хранения секрета.
type Kind string

const (
	KindPlain  Kind = "plain"
	KindHashed Kind = "hashed"
)

var (
	// ErrMalformedCredential возвращается, если сохранённое значение нельзя прочитать.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrEmptySecret возвращается при попытке захешировать пустой секрет.
	ErrEmptySecret = errors.New("secret cannot be empty")
)

// Credential хранит сохранённый секрет пользователя.
type Credential struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
}

// Plain создаёт учётные данные с открытым секретом.
func Plain(secret string) Credential {
	return Credential{Kind: KindPlain, Value: secret}
}

// Hashed создаёт учётные данные из закодированного хеша.
func Hashed(encoded string) Credential {
	return Credential{Kind: KindHashed, Value: encoded}
}

// IsZero сообщает, что учётные данные не заданы.
func (c Credential) IsZero() bool {
	return c.Kind == "" && c.Value == ""
}

// UnmarshalJSON принимает как размеченный объект, так и старую строку.
func (c *Credential) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var legacy string
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return err
		}
		*c = migrateLegacy(legacy)
		return nil
	}

	type plainCredential Credential
	var decoded plainCredential
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	switch decoded.Kind {
	case KindPlain, KindHashed:
	case "":
		decoded.Kind = KindPlain
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedCredential, decoded.Kind)
	}
	*c = Credential(decoded)
	return nil
}

// migrateLegacy решает вид неразмеченного значения: bcrypt-хеш или открытый PIN.
func migrateLegacy(value string) Credential {
	if _, err := bcrypt.Cost([]byte(value)); err == nil {
		return Hashed(value)
	}
	return Plain(value)
}

// Verify сравнивает введённый секрет с сохранёнными учётными данными.
// Несовпадение возвращает false без ошибки; ошибка означает нечитаемое значение,
// и вызывающая сторона должна считать её несовпадением.
func Verify(secret string, stored Credential) (bool, error) {
	switch stored.Kind {
	case KindPlain:
		return subtle.ConstantTimeCompare([]byte(secret), []byte(stored.Value)) == 1, nil
	case KindHashed:
		return verifyHash(secret, stored.Value)
	default:
		return false, fmt.Errorf("%w: unknown kind %q", ErrMalformedCredential, stored.Kind)
	}
}

func verifyHash(secret, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		return verifyArgon2(secret, encoded)
	case strings.HasPrefix(encoded, "$2"):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(secret))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	default:
		return false, ErrMalformedCredential
	}
}
