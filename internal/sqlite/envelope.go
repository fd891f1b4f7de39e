package sqlite

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// envelopeVersion is the current format of a sealed session row.
const envelopeVersion = 1

// ErrWrongSecret is returned when a sealed session cannot be opened with the
// configured secret, or the stored bytes were modified.
var ErrWrongSecret = errors.New("wrong session secret or corrupted session")

// envelope is the JSON structure holding the ciphertext and KDF parameters.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// kdfParams are the scrypt cost parameters used when sealing.
type kdfParams struct {
	N, R, P int
}

func defaultKDFParams() kdfParams { return kdfParams{N: 1 << 15, R: 8, P: 1} }

// seal derives a key from secret and encrypts raw into a JSON envelope.
func seal(secret string, raw []byte, params kdfParams) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	key, err := scrypt.Key([]byte(secret), salt[:], params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	// A fresh salt per seal yields a fresh key, so the zero nonce is never reused.
	var nonce [chacha20poly1305.NonceSize]byte
	ct := aead.Seal(nil, nonce[:], raw, salt[:])

	return json.Marshal(envelope{
		V:      envelopeVersion,
		Salt:   salt[:],
		N:      params.N,
		R:      params.R,
		P:      params.P,
		Cipher: ct,
	})
}

// open reverses seal.
func open(secret string, b []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.V > envelopeVersion {
		return nil, fmt.Errorf("unsupported session envelope version %d", env.V)
	}

	key, err := scrypt.Key([]byte(secret), env.Salt, env.N, env.R, env.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], env.Cipher, env.Salt)
	if err != nil {
		return nil, ErrWrongSecret
	}
	return pt, nil
}
