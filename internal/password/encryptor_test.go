package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	e, err := NewEncryptor("unit-test-secret")
	require.NoError(t, err)

	sealed, err := e.Encrypt("s3cret-value")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-value", sealed)

	plain, err := e.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-value", plain)
}

func TestEncryptor_NoncePerCall(t *testing.T) {
	e, err := NewEncryptor("unit-test-secret")
	require.NoError(t, err)

	a, _ := e.Encrypt("same")
	b, _ := e.Encrypt("same")
	assert.NotEqual(t, a, b)
}

func TestEncryptor_WrongKeyFails(t *testing.T) {
	e1, _ := NewEncryptor("secret-one")
	e2, _ := NewEncryptor("secret-two")

	sealed, err := e1.Encrypt("value")
	require.NoError(t, err)

	_, err = e2.Decrypt(sealed)
	assert.Error(t, err)
}

func TestEncryptor_RejectsGarbage(t *testing.T) {
	e, _ := NewEncryptor("secret")

	_, err := e.Decrypt("not base64!!!")
	assert.Error(t, err)

	_, err = e.Decrypt("AAAA")
	assert.Error(t, err)
}

func TestNewEncryptor_EmptySecret(t *testing.T) {
	_, err := NewEncryptor("")
	assert.Error(t, err)
}
