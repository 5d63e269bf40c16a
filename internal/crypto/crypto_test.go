package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptMetadata_RoundTrip(t *testing.T) {
	blob, err := EncryptMetadata(`{"name":"report.pdf"}`, "master-key-1")
	require.NoError(t, err)
	assert.NotContains(t, blob, "report.pdf")

	plain, err := DecryptMetadata(blob, "master-key-1")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"report.pdf"}`, plain)
}

func TestDecryptMetadata_WrongKey(t *testing.T) {
	blob, err := EncryptMetadata("secret", "key-a")
	require.NoError(t, err)

	_, err = DecryptMetadata(blob, "key-b")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptMetadata_MalformedBlobs(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"empty", ""},
		{"too short", "002abc"},
		{"wrong version", "001aaaaaaaaaaaaAAAA"},
		{"bad base64", "002aaaaaaaaaaaa!!!not-base64!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptMetadata(tt.blob, "key")
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestKeyring_TrialDecryption(t *testing.T) {
	ring := Keyring{"old-key", "new-key"}

	// A blob written under the old key still decrypts.
	meta := FileMetadata{Name: "a.txt", Size: 42, Mime: "text/plain", Key: "filekey", LastModified: 1700000000}

	plain, err := EncodeMetadata(meta)
	require.NoError(t, err)

	blob, err := EncryptMetadata(plain, "old-key")
	require.NoError(t, err)

	got, err := DecryptFileMetadata(blob, ring)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestFileMetadata_RoundTripIdentity(t *testing.T) {
	meta := FileMetadata{
		Name:         "photo.jpg",
		Size:         123456,
		Mime:         "image/jpeg",
		Key:          "abcdefghijklmnopqrstuvwxyz012345",
		LastModified: 1699999999,
	}

	plain, err := EncodeMetadata(meta)
	require.NoError(t, err)

	blob, err := EncryptMetadata(plain, "master")
	require.NoError(t, err)

	got, err := DecryptFileMetadata(blob, Keyring{"master"})
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestDecryptFolderName(t *testing.T) {
	plain, err := EncodeMetadata(FolderMetadata{Name: "Documents"})
	require.NoError(t, err)

	blob, err := EncryptMetadata(plain, "master")
	require.NoError(t, err)

	name, err := DecryptFolderName(blob, Keyring{"master"})
	require.NoError(t, err)
	assert.Equal(t, "Documents", name)
}

func TestDecryptFolderLinkKey(t *testing.T) {
	linkKey, err := GenerateLinkKey()
	require.NoError(t, err)
	require.Len(t, linkKey, 32)

	blob, err := EncryptMetadata(linkKey, "master")
	require.NoError(t, err)

	got, err := DecryptFolderLinkKey(blob, Keyring{"other", "master"})
	require.NoError(t, err)
	assert.Equal(t, linkKey, got)

	_, err = DecryptFolderLinkKey(blob, Keyring{"unrelated"})
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestKeyring_Current(t *testing.T) {
	current, err := Keyring{"a", "b", "c"}.Current()
	require.NoError(t, err)
	assert.Equal(t, "c", current)

	_, err = Keyring{}.Current()
	assert.Error(t, err)
}

func TestEncryptMetadataPublicKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	pubB64 := base64.StdEncoding.EncodeToString(der)

	blob, err := EncryptMetadataPublicKey(`{"name":"shared.txt"}`, pubB64)
	require.NoError(t, err)

	ciphertext, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	plain, err := rsa.DecryptOAEP(sha512.New(), rand.Reader, priv, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"shared.txt"}`, string(plain))
}

func TestEncryptMetadataPublicKey_InvalidKey(t *testing.T) {
	_, err := EncryptMetadataPublicKey("data", "not-base64!!!")
	assert.Error(t, err)

	_, err = EncryptMetadataPublicKey("data", base64.StdEncoding.EncodeToString([]byte("not-der")))
	assert.Error(t, err)
}

func TestHashName(t *testing.T) {
	h := HashName("Documents")

	assert.Len(t, h, 64)
	// Case-insensitive: the hash is computed over the lowercased name.
	assert.Equal(t, h, HashName("DOCUMENTS"))
	assert.Equal(t, h, HashName("documents"))
	assert.NotEqual(t, h, HashName("Documents2"))

	// Unicode names hash the same regardless of normalization form.
	assert.Equal(t, HashName("caf\u00e9"), HashName("cafe\u0301"))
}

func TestBufferToHash(t *testing.T) {
	// SHA-512 of the empty input, a fixed vector.
	assert.Equal(t,
		"cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce"+
			"47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e",
		BufferToHash(nil))

	assert.Len(t, BufferToHash([]byte("chunk")), 128)
}

func TestRandomString(t *testing.T) {
	a, err := RandomString(32)
	require.NoError(t, err)
	require.Len(t, a, 32)

	b, err := RandomString(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
