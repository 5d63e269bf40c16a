// Package crypto implements the metadata encryption used by the remote
// storage protocol: AES-256-GCM under keys derived from the user's master
// keys, RSA-OAEP for share recipients, and the deterministic name hashing
// the server uses for sibling uniqueness checks.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

// Metadata blob format: a 3-char version tag, a 12-char random salt, then
// base64(nonce || ciphertext). Version 002 is the only format this client
// writes; trial decryption accepts any key in the keyring.
const (
	metadataVersion = "002"
	saltLen         = 12
	nonceLen        = 12

	pbkdf2Iterations = 1
	derivedKeyLen    = 32
)

// ErrDecrypt is returned when a blob cannot be decrypted with any key in
// the keyring.
var ErrDecrypt = errors.New("crypto: cannot decrypt metadata")

// FileMetadata is the plaintext metadata record of a file.
type FileMetadata struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	Mime         string `json:"mime"`
	Key          string `json:"key"`
	LastModified int64  `json:"lastModified"`
}

// FolderMetadata is the plaintext metadata record of a folder.
type FolderMetadata struct {
	Name string `json:"name"`
}

// Keyring is the ordered master key list. The last element is the current
// encryption key; any element may decrypt (trial decryption).
type Keyring []string

// Current returns the encryption key, the last element of the ring.
func (k Keyring) Current() (string, error) {
	if len(k) == 0 {
		return "", errors.New("crypto: empty keyring")
	}

	return k[len(k)-1], nil
}

// deriveKey stretches a master key and salt into an AES-256 key.
func deriveKey(masterKey, salt string) []byte {
	return pbkdf2.Key([]byte(masterKey), []byte(salt), pbkdf2Iterations, derivedKeyLen, sha512.New)
}

// EncryptMetadata encrypts plaintext under key and returns the versioned
// blob string.
func EncryptMetadata(plaintext, key string) (string, error) {
	salt, err := RandomString(saltLen)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(deriveKey(key, salt))
	if err != nil {
		return "", fmt.Errorf("crypto: creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: creating GCM: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return metadataVersion + salt + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptMetadata decrypts a versioned blob with a single key.
func DecryptMetadata(blob, key string) (string, error) {
	if len(blob) < len(metadataVersion)+saltLen || !strings.HasPrefix(blob, metadataVersion) {
		return "", ErrDecrypt
	}

	salt := blob[len(metadataVersion) : len(metadataVersion)+saltLen]

	sealed, err := base64.StdEncoding.DecodeString(blob[len(metadataVersion)+saltLen:])
	if err != nil || len(sealed) < nonceLen {
		return "", ErrDecrypt
	}

	block, err := aes.NewCipher(deriveKey(key, salt))
	if err != nil {
		return "", ErrDecrypt
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecrypt
	}

	plaintext, err := gcm.Open(nil, sealed[:nonceLen], sealed[nonceLen:], nil)
	if err != nil {
		return "", ErrDecrypt
	}

	return string(plaintext), nil
}

// decryptWithRing tries every key in the ring, newest first.
func decryptWithRing(blob string, ring Keyring) (string, error) {
	for i := len(ring) - 1; i >= 0; i-- {
		if plaintext, err := DecryptMetadata(blob, ring[i]); err == nil {
			return plaintext, nil
		}
	}

	return "", ErrDecrypt
}

// DecryptFileMetadata recovers a file's metadata record using trial
// decryption over the keyring.
func DecryptFileMetadata(blob string, ring Keyring) (FileMetadata, error) {
	plaintext, err := decryptWithRing(blob, ring)
	if err != nil {
		return FileMetadata{}, err
	}

	var meta FileMetadata
	if err := json.Unmarshal([]byte(plaintext), &meta); err != nil {
		return FileMetadata{}, fmt.Errorf("crypto: decoding file metadata: %w", err)
	}

	return meta, nil
}

// DecryptFolderName recovers a folder's name using trial decryption over
// the keyring.
func DecryptFolderName(blob string, ring Keyring) (string, error) {
	plaintext, err := decryptWithRing(blob, ring)
	if err != nil {
		return "", err
	}

	var meta FolderMetadata
	if err := json.Unmarshal([]byte(plaintext), &meta); err != nil {
		return "", fmt.Errorf("crypto: decoding folder metadata: %w", err)
	}

	return meta.Name, nil
}

// DecryptFolderLinkKey recovers a public link's symmetric key, which the
// server stores encrypted under the owner's master keys.
func DecryptFolderLinkKey(blob string, ring Keyring) (string, error) {
	return decryptWithRing(blob, ring)
}

// EncryptMetadataPublicKey encrypts data for a share recipient using
// RSA-OAEP(SHA-512). publicKey is a base64-encoded PKIX (SPKI) key.
func EncryptMetadataPublicKey(data, publicKey string) (string, error) {
	der, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding public key: %w", err)
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return "", fmt.Errorf("crypto: parsing public key: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("crypto: unsupported public key type %T", parsed)
	}

	ciphertext, err := rsa.EncryptOAEP(sha512.New(), rand.Reader, rsaKey, []byte(data), nil)
	if err != nil {
		return "", fmt.Errorf("crypto: RSA encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// HashName computes the deterministic name hash the server uses for
// sibling uniqueness: NFC-normalize, lowercase, SHA-256 hex.
func HashName(name string) string {
	folded := strings.ToLower(norm.NFC.String(name))
	sum := sha256.Sum256([]byte(folded))

	return hex.EncodeToString(sum[:])
}

// BufferToHash returns the SHA-512 hex digest of b.
func BufferToHash(b []byte) string {
	sum := sha512.Sum512(b)
	return hex.EncodeToString(sum[:])
}

// randomAlphabet is the character set for salts and generated keys.
const randomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns n characters drawn from randomAlphabet using the
// system CSPRNG.
func RandomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto: reading random bytes: %w", err)
	}

	for i, b := range buf {
		buf[i] = randomAlphabet[int(b)%len(randomAlphabet)]
	}

	return string(buf), nil
}

// GenerateLinkKey returns a fresh 32-character symmetric key for a public
// link.
func GenerateLinkKey() (string, error) {
	return RandomString(32)
}
