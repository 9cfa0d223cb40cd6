// Package vault encrypts provider API keys and sync credentials at rest.
//
// Ciphertexts are AES-256-GCM with a fresh random IV per call; the key is
// derived from a configured passphrase via scrypt and never stored next to
// the data. Decryption verifies the GCM authentication tag and refuses to
// return plaintext for tampered input.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/scrypt"
)

var (
	// ErrNoSecret is returned when the process-wide passphrase is not
	// configured. Detection is lazy: the first Encrypt/Decrypt call fails,
	// not process start.
	ErrNoSecret = errors.New("vault: encryption passphrase is not set")

	// ErrTamperedOrCorruptData is returned when a ciphertext or IV fails
	// authentication. The vault never returns unauthenticated plaintext.
	ErrTamperedOrCorruptData = errors.New("vault: data is tampered or corrupt")
)

// scrypt parameters match Node's crypto.scryptSync defaults and the IV is
// 16 bytes rather than GCM's usual 12, because existing ciphertexts were
// produced by Node's aes-256-gcm with a 16-byte random IV and must keep
// decrypting here.
const (
	scryptN     = 16384
	scryptR     = 8
	scryptP     = 1
	keyLength   = 32
	derivedSalt = "salt"
	ivLength    = 16
)

// Vault performs symmetric encryption keyed by a process-wide passphrase.
type Vault struct {
	passphrase string

	once   sync.Once
	aead   cipher.AEAD
	keyErr error
}

// New creates a Vault. The key is derived lazily on first use so a missing
// passphrase surfaces as a loud error at the call site rather than at boot.
func New(passphrase string) *Vault {
	return &Vault{passphrase: passphrase}
}

func (v *Vault) cipher() (cipher.AEAD, error) {
	v.once.Do(func() {
		if v.passphrase == "" {
			v.keyErr = ErrNoSecret
			return
		}
		key, err := scrypt.Key([]byte(v.passphrase), []byte(derivedSalt), scryptN, scryptR, scryptP, keyLength)
		if err != nil {
			v.keyErr = fmt.Errorf("vault: key derivation failed: %w", err)
			return
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			v.keyErr = fmt.Errorf("vault: cipher init failed: %w", err)
			return
		}
		v.aead, v.keyErr = cipher.NewGCMWithNonceSize(block, ivLength)
	})
	return v.aead, v.keyErr
}

// Encrypt seals plaintext and returns hex-encoded ciphertext and IV.
// The IV is randomized per call, so encrypting the same plaintext twice
// yields different ciphertexts.
func (v *Vault) Encrypt(plaintext string) (ciphertext, iv string, err error) {
	aead, err := v.cipher()
	if err != nil {
		return "", "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("vault: nonce generation failed: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), hex.EncodeToString(nonce), nil
}

// Decrypt opens a hex-encoded ciphertext with its IV. Any authentication or
// decoding failure returns ErrTamperedOrCorruptData; garbage is never
// silently returned.
func (v *Vault) Decrypt(ciphertext, iv string) (string, error) {
	aead, err := v.cipher()
	if err != nil {
		return "", err
	}

	sealed, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", ErrTamperedOrCorruptData)
	}
	nonce, err := hex.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("%w: bad IV encoding", ErrTamperedOrCorruptData)
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("%w: IV length mismatch", ErrTamperedOrCorruptData)
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrTamperedOrCorruptData)
	}
	return string(plaintext), nil
}
