// Package crypto implements the encryption envelope: symmetric encryption
// of operation payloads with a key derived from a user password, opaque to
// the server beyond an algorithm tag and the causality-routing fields the
// Operation itself already exposes.
package crypto

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
)

// Algorithm names the cipher/KDF suite the envelope was sealed with. The
// server persists this tag but never interprets it.
type Algorithm string

const AlgorithmArgon2idSecretbox Algorithm = "argon2id-secretbox-v1"

// KDFParams are the argon2id tuning parameters used to derive the envelope
// key from the user's password. Chosen for deliberate slowness, not for any
// other property (DESIGN.md open question decision).
type KDFParams struct {
	TimeCost    uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultKDFParams matches the argon2id tuning recorded in DESIGN.md:
// time=1, memory=64MiB, parallelism=4.
var DefaultKDFParams = KDFParams{
	TimeCost:    1,
	MemoryKiB:   64 * 1024,
	Parallelism: 4,
	KeyLen:      32,
}

const saltLen = 16

// Envelope is the on-wire/on-disk representation of an encrypted payload:
// algorithm tag, KDF parameters, salt, nonce, ciphertext. Every field except
// Ciphertext is server-visible metadata; none of it reveals plaintext.
type Envelope struct {
	Algorithm  Algorithm
	KDF        KDFParams
	Salt       []byte
	Nonce      [24]byte
	Ciphertext []byte
}

// DeriveKey runs argon2id over password and salt per params. The same
// salt+params must be reused to re-derive the same key; callers own
// persisting salt alongside each envelope (it is not a secret).
func DeriveKey(password string, salt []byte, params KDFParams) [32]byte {
	derived := argon2.IDKey([]byte(password), salt, params.TimeCost, params.MemoryKiB, params.Parallelism, params.KeyLen)
	var key [32]byte
	copy(key[:], derived)
	return key
}

// Seal encrypts plaintext under a key derived from password with a freshly
// generated salt and nonce. The returned Envelope's metadata fields are
// visible to the server: the server still sees id, clientId, entityType,
// entityId, vectorClock, timestamp, and opType, and no more. Payload
// metadata beyond the algorithm tag stays out of the Operation entirely,
// and the envelope itself carries no plaintext-revealing data.
func Seal(password string, plaintext []byte) (Envelope, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return Envelope{}, syncerr.Crypto.Wrap(err)
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return Envelope{}, syncerr.Crypto.Wrap(err)
	}
	key := DeriveKey(password, salt, DefaultKDFParams)
	ciphertext := secretbox.Seal(nil, plaintext, &nonce, &key)
	return Envelope{
		Algorithm:  AlgorithmArgon2idSecretbox,
		KDF:        DefaultKDFParams,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Open decrypts env under a key derived from password. Returns
// syncerr.ErrDecryptionFailed (wrapped) if the password is wrong or the
// envelope was tampered with; secretbox.Open's authentication failure is
// indistinguishable from either case.
func Open(password string, env Envelope) ([]byte, error) {
	if env.Algorithm != AlgorithmArgon2idSecretbox {
		return nil, syncerr.Crypto.New("unsupported envelope algorithm %q", env.Algorithm)
	}
	key := DeriveKey(password, env.Salt, env.KDF)
	plaintext, ok := secretbox.Open(nil, env.Ciphertext, &env.Nonce, &key)
	if !ok {
		return nil, syncerr.ErrDecryptionFailed
	}
	return plaintext, nil
}
