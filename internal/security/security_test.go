package security_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changyunjeff/campus-mp/internal/security"
)

func TestEncryptor(t *testing.T) {
	enc, err := security.NewEncryptor([]byte("secret"), []byte("device-1"))
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		sealed, err := enc.Seal([]byte("hello"))
		require.NoError(t, err)
		assert.NotContains(t, string(sealed), "hello")

		plain, err := enc.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(plain))
	})

	t.Run("WrongKey", func(t *testing.T) {
		other, err := security.NewEncryptor([]byte("secret"), []byte("device-2"))
		require.NoError(t, err)
		sealed, err := enc.Seal([]byte("hello"))
		require.NoError(t, err)
		_, err = other.Open(sealed)
		assert.Error(t, err)
	})

	t.Run("Short", func(t *testing.T) {
		_, err := enc.Open([]byte{1, 2, 3})
		assert.Error(t, err)
	})

	t.Run("EmptySecret", func(t *testing.T) {
		_, err := security.NewEncryptor(nil, nil)
		assert.Error(t, err)
	})
}

func TestTokens(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)

	t.Run("Subject", func(t *testing.T) {
		tok, err := svc.CreateForUser("u1")
		require.NoError(t, err)
		sub, err := svc.Subject(tok)
		require.NoError(t, err)
		assert.Equal(t, "u1", sub)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		tok, err := security.NewTokenService("other", time.Hour).CreateForUser("u1")
		require.NoError(t, err)
		_, err = svc.Subject(tok)
		assert.Error(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		tok, err := svc.CreateWithTTL("u1", -time.Minute)
		require.NoError(t, err)
		_, err = svc.Parse(tok)
		assert.Error(t, err)
	})

	t.Run("ClientIdentity", func(t *testing.T) {
		tok, err := svc.CreateForUser("u42")
		require.NoError(t, err)
		id, err := security.NewTokenIdentity(tok)
		require.NoError(t, err)
		assert.Equal(t, "u42", id.Identity())

		_, err = security.NewTokenIdentity("garbage")
		assert.Error(t, err)
	})
}
