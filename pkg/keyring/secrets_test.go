package keyring

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerValidatesKeyLength(t *testing.T) {
	cases := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{"valid 32-byte key", make([]byte, 32), false},
		{"short key", make([]byte, 16), true},
		{"long key", make([]byte, 64), true},
		{"empty key", []byte{}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m, err := NewManager(t.TempDir(), c.key)
			if c.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, m)
		})
	}
}

func TestNewManagerFromPassphraseRejectsEmpty(t *testing.T) {
	_, err := NewManagerFromPassphrase(t.TempDir(), "")
	assert.Error(t, err)

	m, err := NewManagerFromPassphrase(t.TempDir(), "correct horse battery staple")
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := []byte("test-encryption-key-32-bytes-!!!")
	m, err := NewManager(t.TempDir(), key)
	require.NoError(t, err)

	cases := [][]byte{
		[]byte("hello world"),
		[]byte(`{"key":"value"}`),
		{0x00, 0x01, 0x02, 0xFF, 0xFE, 0xFD},
		bytes.Repeat([]byte("test"), 1000),
	}
	for _, plaintext := range cases {
		ciphertext, err := m.EncryptSecret(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ciphertext)

		decrypted, err := m.DecryptSecret(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestDecryptSecretErrors(t *testing.T) {
	m, err := NewManager(t.TempDir(), make([]byte, 32))
	require.NoError(t, err)

	cases := [][]byte{
		{},
		nil,
		{0x01, 0x02},
		bytes.Repeat([]byte("x"), 100),
	}
	for _, ciphertext := range cases {
		_, err := m.DecryptSecret(ciphertext)
		assert.Error(t, err)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	m1, err := NewManager(t.TempDir(), []byte("key-one-32-bytes-long-!!!!!!!!!!"))
	require.NoError(t, err)
	m2, err := NewManager(t.TempDir(), []byte("key-two-32-bytes-long-!!!!!!!!!!"))
	require.NoError(t, err)

	ciphertext, err := m1.EncryptSecret([]byte("secret data"))
	require.NoError(t, err)

	_, err = m2.DecryptSecret(ciphertext)
	assert.Error(t, err)
}

func TestStoreAndLoadKeyRoundtrip(t *testing.T) {
	root := t.TempDir()
	m, err := NewManager(root, make([]byte, 32))
	require.NoError(t, err)

	err = m.StoreKey("fedora-updates", "gpg.pub", []byte("-----BEGIN PGP PUBLIC KEY BLOCK-----"))
	require.NoError(t, err)

	path := filepath.Join(root, "keyrings", "fedora-updates", "gpg.pub")
	_, err = os.Stat(path)
	require.NoError(t, err)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(onDisk), "BEGIN PGP")

	loaded, err := m.LoadKey("fedora-updates", "gpg.pub")
	require.NoError(t, err)
	assert.Equal(t, "-----BEGIN PGP PUBLIC KEY BLOCK-----", string(loaded))
}

func TestRemoveKeyringDeletesDirectory(t *testing.T) {
	root := t.TempDir()
	m, err := NewManager(root, make([]byte, 32))
	require.NoError(t, err)

	require.NoError(t, m.StoreKey("arch-core", "gpg.pub", []byte("key material")))
	require.NoError(t, m.RemoveKeyring("arch-core"))

	_, err = os.Stat(filepath.Join(root, "keyrings", "arch-core"))
	assert.True(t, os.IsNotExist(err))
}

func TestNoopVerifierAlwaysSucceeds(t *testing.T) {
	var v Verifier = NoopVerifier{}
	assert.NoError(t, v.Verify("any-repo", []byte("data"), []byte("sig")))
}
