package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/quantalock/qkdsim/internal/qkd/quantum"
)

// MinKeyBits is the smallest quantum key accepted for encryption.
const MinKeyBits = 128

// supportedKeySizes are the valid AES key sizes in bits.
var supportedKeySizes = map[int]bool{128: true, 192: true, 256: true}

// Cipher encrypts with a symmetric key derived from QKD output bits.
//
// The normal path is AES-CBC with PKCS#7 padding. When constructed via
// NewInsecureCipher it instead uses a byte-wise XOR stream keyed by the
// repeated derived key — a fallback for environments without a real
// cipher backend, tagged as insecure in every result it produces and
// never presented as equivalent to AES.
type Cipher struct {
	keyBytes []byte
	insecure bool
}

// NewCipher builds an AES cipher from quantum key bits.
func NewCipher(keyBits []quantum.Bit) (*Cipher, error) {
	return newCipher(keyBits, false)
}

// NewInsecureCipher builds the XOR-stream fallback. Results are
// explicitly tagged Insecure.
func NewInsecureCipher(keyBits []quantum.Bit) (*Cipher, error) {
	return newCipher(keyBits, true)
}

func newCipher(keyBits []quantum.Bit, insecure bool) (*Cipher, error) {
	if len(keyBits) < MinKeyBits {
		return nil, fmt.Errorf("key too short: %d bits, minimum %d required", len(keyBits), MinKeyBits)
	}
	return &Cipher{
		keyBytes: quantum.PackBits(keyBits),
		insecure: insecure,
	}, nil
}

// DeriveKey produces a key of targetBits ∈ {128, 192, 256}: the first
// bytes of the quantum key when it is long enough, otherwise a SHA3-256
// stretch truncated to size.
func (c *Cipher) DeriveKey(targetBits int) ([]byte, error) {
	if !supportedKeySizes[targetBits] {
		return nil, fmt.Errorf("unsupported key size: %d", targetBits)
	}

	targetBytes := targetBits / 8
	if len(c.keyBytes) >= targetBytes {
		return c.keyBytes[:targetBytes], nil
	}

	derived := sha3.Sum256(c.keyBytes)
	return derived[:targetBytes], nil
}

// Fingerprint returns a 16-hex-character identifier for the key. It is
// a hash prefix for identification only, not an integrity tag.
func (c *Cipher) Fingerprint() string {
	digest := sha3.Sum256(c.keyBytes)
	return hex.EncodeToString(digest[:])[:16]
}

// EncryptionResult carries the ciphertext and its metadata. Ciphertext
// and IV are base64 encoded.
type EncryptionResult struct {
	Ciphertext     string
	IV             string
	KeyFingerprint string
	Algorithm      string
	Mode           string
	OriginalLength int
	Insecure       bool
}

// DecryptionResult carries the recovered plaintext.
type DecryptionResult struct {
	Plaintext      string
	Verified       bool
	KeyFingerprint string
	Insecure       bool
}

// Encrypt encrypts plaintext under a keySize-bit derived key with a
// random IV.
func (c *Cipher) Encrypt(plaintext string, keySize int) (*EncryptionResult, error) {
	key, err := c.DeriveKey(keySize)
	if err != nil {
		return nil, err
	}

	if c.insecure {
		return &EncryptionResult{
			Ciphertext:     base64.StdEncoding.EncodeToString(xorStream(key, []byte(plaintext))),
			IV:             base64.StdEncoding.EncodeToString(make([]byte, aes.BlockSize)),
			KeyFingerprint: c.Fingerprint(),
			Algorithm:      fmt.Sprintf("XOR-%d (insecure fallback)", keySize),
			Mode:           "STREAM (insecure fallback)",
			OriginalLength: len(plaintext),
			Insecure:       true,
		}, nil
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating IV: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return &EncryptionResult{
		Ciphertext:     base64.StdEncoding.EncodeToString(ciphertext),
		IV:             base64.StdEncoding.EncodeToString(iv),
		KeyFingerprint: c.Fingerprint(),
		Algorithm:      fmt.Sprintf("AES-%d", keySize),
		Mode:           "CBC",
		OriginalLength: len(plaintext),
	}, nil
}

// Decrypt reverses Encrypt given the same key bits and key size.
func (c *Cipher) Decrypt(ciphertextB64, ivB64 string, keySize int) (*DecryptionResult, error) {
	key, err := c.DeriveKey(keySize)
	if err != nil {
		return nil, err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}

	if c.insecure {
		return &DecryptionResult{
			Plaintext:      string(xorStream(key, ciphertext)),
			Verified:       true,
			KeyFingerprint: c.Fingerprint(),
			Insecure:       true,
		}, nil
	}

	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, fmt.Errorf("decoding IV: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("IV must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a positive multiple of the block size", len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, err
	}

	return &DecryptionResult{
		Plaintext:      string(plaintext),
		Verified:       true,
		KeyFingerprint: c.Fingerprint(),
	}, nil
}

func xorStream(key, data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen < 1 || padLen > blockSize {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
