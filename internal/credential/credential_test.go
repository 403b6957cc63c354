package credential

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func fastArgon() ArgonParams {
	return ArgonParams{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}
}

func TestVerify(t *testing.T) {
	bcryptHash, err := NewHasher(AlgorithmBcrypt, WithBcryptCost(bcrypt.MinCost)).Hash("1234")
	require.NoError(t, err)
	argonHash, err := NewHasher(AlgorithmArgon2id, WithArgonParams(fastArgon())).Hash("1234")
	require.NoError(t, err)

	tests := []struct {
		name    string
		secret  string
		stored  Credential
		want    bool
		wantErr error
	}{
		{name: "plain match", secret: "0000", stored: Plain("0000"), want: true},
		{name: "plain mismatch", secret: "0001", stored: Plain("0000"), want: false},
		{name: "bcrypt match", secret: "1234", stored: bcryptHash, want: true},
		{name: "bcrypt mismatch", secret: "4321", stored: bcryptHash, want: false},
		{name: "argon2id match", secret: "1234", stored: argonHash, want: true},
		{name: "argon2id mismatch", secret: "4321", stored: argonHash, want: false},
		{name: "unknown hash format", secret: "1234", stored: Hashed("md5:abcdef"), wantErr: ErrMalformedCredential},
		{name: "truncated argon2id", secret: "1234", stored: Hashed("$argon2id$v=19$m=8,t=1"), wantErr: ErrMalformedCredential},
		{name: "broken bcrypt", secret: "1234", stored: Hashed("$2a$10$short"), wantErr: ErrMalformedCredential},
		{name: "unknown kind", secret: "1234", stored: Credential{Kind: "rot13", Value: "1234"}, wantErr: ErrMalformedCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Verify(tt.secret, tt.stored)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.False(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHashProducesFreshSalt(t *testing.T) {
	h := NewHasher(AlgorithmBcrypt, WithBcryptCost(bcrypt.MinCost))

	a, err := h.Hash("1234")
	require.NoError(t, err)
	b, err := h.Hash("1234")
	require.NoError(t, err)

	assert.Equal(t, KindHashed, a.Kind)
	assert.NotEqual(t, a.Value, b.Value)
}

func TestHashRejectsEmptySecret(t *testing.T) {
	_, err := NewHasher(AlgorithmArgon2id).Hash("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmBcrypt, alg)

	alg, err = ParseAlgorithm(" Argon2id ")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmArgon2id, alg)

	_, err = ParseAlgorithm("sha1")
	assert.Error(t, err)
}

func TestUnmarshalLegacyValues(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	require.NoError(t, err)

	var plain Credential
	require.NoError(t, json.Unmarshal([]byte(`"0000"`), &plain))
	assert.Equal(t, Plain("0000"), plain)

	var hashed Credential
	raw, _ := json.Marshal(string(hash))
	require.NoError(t, json.Unmarshal(raw, &hashed))
	assert.Equal(t, Hashed(string(hash)), hashed)

	ok, err := Verify("1234", hashed)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnmarshalTagged(t *testing.T) {
	var c Credential
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"hashed","value":"$argon2id$x"}`), &c))
	assert.Equal(t, Hashed("$argon2id$x"), c)

	var bad Credential
	err := json.Unmarshal([]byte(`{"kind":"rot13","value":"x"}`), &bad)
	assert.ErrorIs(t, err, ErrMalformedCredential)

	out, err := json.Marshal(Plain("0000"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"plain","value":"0000"}`, string(out))
}
