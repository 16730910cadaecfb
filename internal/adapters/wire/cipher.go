package wire

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/curve25519"
)

// keyDerivationSalt is appended to the ECDH shared secret before hashing.
// It must match the agent side byte for byte.
var keyDerivationSalt = []byte("SpearIT-K9Dev")

const (
	// SessionIVSize is the length of the per-session CBC IV.
	SessionIVSize = aes.BlockSize
	// SessionKeySize selects AES-128.
	SessionKeySize = 16
)

var (
	ErrBadPadding    = errors.New("wire: invalid PKCS#7 padding")
	ErrBadCiphertext = errors.New("wire: ciphertext is not block-aligned")
	ErrBadPeerKey    = errors.New("wire: invalid peer public key")
)

// DeriveSessionKey runs the X25519 exchange and hashes the shared secret with
// the protocol salt. The session key is the first 16 bytes of the digest.
func DeriveSessionKey(privateKey, peerPublic []byte) ([]byte, error) {
	shared, err := curve25519.X25519(privateKey, peerPublic)
	if err != nil {
		return nil, ErrBadPeerKey
	}
	h := sha256.New()
	h.Write(shared)
	h.Write(keyDerivationSalt)
	return h.Sum(nil)[:SessionKeySize], nil
}

func pkcs7Pad(data []byte) []byte {
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrBadPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-padLen], nil
}

// sessionCipher encrypts frames under the negotiated AES-128-CBC key.
// The IV is fixed for the session; each message gets a fresh CBC instance,
// matching the agent's wire behavior.
type sessionCipher struct {
	block cipher.Block
	iv    []byte
}

func newSessionCipher(key, iv []byte) (*sessionCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != SessionIVSize {
		return nil, ErrBadCiphertext
	}
	return &sessionCipher{block: block, iv: iv}, nil
}

// Encrypt pads and encrypts plaintext.
func (c *sessionCipher) Encrypt(plaintext []byte) []byte {
	padded := pkcs7Pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return out
}

// Decrypt decrypts and strips padding.
func (c *sessionCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrBadCiphertext
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}
