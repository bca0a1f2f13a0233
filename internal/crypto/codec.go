// Package crypto holds the per-conversation key manager and the message codec.
//
// Only text message bodies go through the codec. Media references are stored
// as-is; their confidentiality is weaker than text and that is a known,
// deliberate gap carried over from the wire format we must stay compatible with.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	ivSize  = aes.BlockSize
)

// Unreadable is what callers render when a stored ciphertext cannot be
// decrypted (corrupt payload, wrong key). Decode failure is a display
// condition, not a transport error, so it never surfaces as an error value
// on the fetch path.
const Unreadable = "[unreadable message]"

// Encrypt encrypts plaintext with AES-256-CBC under a fresh random IV and
// returns base64(iv || ciphertext), the storage encoding.
func Encrypt(plaintext string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", errors.New("encryption key must be 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(append(iv, ciphertext...)), nil
}

// Decrypt reverses Encrypt. The second return value reports whether the
// payload was readable; when false the first value is the Unreadable
// placeholder and the caller should display it, not fail.
func Decrypt(encoded string, key []byte) (string, bool) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Unreadable, false
	}
	if len(data) < ivSize || (len(data)-ivSize)%aes.BlockSize != 0 || len(data) == ivSize {
		return Unreadable, false
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Unreadable, false
	}

	iv, ciphertext := data[:ivSize], data[ivSize:]
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return Unreadable, false
	}
	return string(plaintext), true
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding byte")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("inconsistent padding")
		}
	}
	return data[:len(data)-padding], nil
}
