// Package codec seals and opens NFC credential payloads.
//
// Wire format of a sealed blob, before transport encoding:
//
//	[Version: 1 byte (0x01)] [IV: 16 bytes (random)] [Ciphertext: N*16 bytes] [Tag: 16 bytes]
//
// The ciphertext is the CBOR-encoded credential, PKCS#7-padded and
// encrypted with AES-256-CBC. The tag is a keyed BLAKE3 hash over
// version, IV and ciphertext, so tampering with any of them fails the
// integrity check before decryption is attempted. The whole blob is
// base64-encoded for transport; readers and writers must agree on key,
// mode and encoding, so this format is compatibility-critical.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/pbkdf2"

	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

// ErrIntegrity is returned when a blob fails any integrity check:
// tampered ciphertext or IV, truncation, bad padding, or a payload
// checksum mismatch. Corruption is never silently accepted.
var ErrIntegrity = errors.New("credential integrity check failed")

const (
	blobVersion byte = 0x01

	keySize = 32
	ivSize  = aes.BlockSize
	tagSize = 16

	// minimum sealed blob: version + IV + one cipher block + tag
	minBlobSize = 1 + ivSize + aes.BlockSize + tagSize

	pbkdf2Iterations = 4096
)

// PBKDF2 salts providing domain separation between the cipher key and
// the MAC key. Changing either invalidates all issued cards.
var (
	saltCipherKey = []byte("mawkib.card.cipher.v1")
	saltMACKey    = []byte("mawkib.card.mac.v1")
)

// Codec encrypts and integrity-checks credential blobs under a key pair
// derived from an externally supplied secret. The secret is injected,
// never generated or persisted here.
type Codec struct {
	aesKey []byte
	macKey []byte
	enc    cbor.EncMode
	dec    cbor.DecMode
}

// New derives the cipher and MAC keys from secret and returns a ready
// codec. The secret is stretched with PBKDF2-SHA256 under per-purpose
// salts so the two keys are independent.
func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("codec: card key secret is required")
	}

	// Deterministic map-key ordering keeps sealed blobs reproducible for
	// a given credential and IV.
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("codec: cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("codec: cbor decoder: %w", err)
	}

	return &Codec{
		aesKey: pbkdf2.Key([]byte(secret), saltCipherKey, pbkdf2Iterations, keySize, sha256.New),
		macKey: pbkdf2.Key([]byte(secret), saltMACKey, pbkdf2Iterations, keySize, sha256.New),
		enc:    enc,
		dec:    dec,
	}, nil
}

// Encrypt seals a credential into a transport-encoded blob. The IV is
// generated inside this call and never caller-supplied, so IV reuse
// under a fixed key cannot happen by construction. The credential's
// Checksum field is computed here; any caller-set value is overwritten.
func (c *Codec) Encrypt(cred types.Credential) (string, error) {
	cred.Checksum = payloadChecksum(cred.HajjID, cred.IssueNonce)

	payload, err := c.enc.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("codec: encode payload: %w", err)
	}
	padded := padPKCS7(payload, aes.BlockSize)

	block, err := aes.NewCipher(c.aesKey)
	if err != nil {
		return "", fmt.Errorf("codec: init cipher: %w", err)
	}

	blob := make([]byte, 1+ivSize+len(padded))
	blob[0] = blobVersion

	iv := blob[1 : 1+ivSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("codec: generate iv: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(blob[1+ivSize:], padded)

	tag, err := c.tag(blob)
	if err != nil {
		return "", err
	}
	blob = append(blob, tag...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a transport-encoded blob. Every failure mode (bad
// encoding, truncation, tag mismatch, bad padding, undecodable payload,
// checksum mismatch) is reported as ErrIntegrity.
func (c *Codec) Decrypt(encoded string) (types.Credential, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return types.Credential{}, fmt.Errorf("%w: transport decode", ErrIntegrity)
	}
	if len(blob) < minBlobSize {
		return types.Credential{}, fmt.Errorf("%w: blob too short", ErrIntegrity)
	}

	body := blob[:len(blob)-tagSize]
	tag := blob[len(blob)-tagSize:]

	want, err := c.tag(body)
	if err != nil {
		return types.Credential{}, err
	}
	if subtle.ConstantTimeCompare(tag, want) != 1 {
		return types.Credential{}, fmt.Errorf("%w: tag mismatch", ErrIntegrity)
	}

	if body[0] != blobVersion {
		return types.Credential{}, fmt.Errorf("%w: unsupported version %#02x", ErrIntegrity, body[0])
	}

	iv := body[1 : 1+ivSize]
	ct := body[1+ivSize:]
	if len(ct)%aes.BlockSize != 0 {
		return types.Credential{}, fmt.Errorf("%w: ciphertext not block-aligned", ErrIntegrity)
	}

	block, err := aes.NewCipher(c.aesKey)
	if err != nil {
		return types.Credential{}, fmt.Errorf("codec: init cipher: %w", err)
	}

	padded := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ct)

	payload, err := unpadPKCS7(padded, aes.BlockSize)
	if err != nil {
		return types.Credential{}, fmt.Errorf("%w: padding", ErrIntegrity)
	}

	var cred types.Credential
	if err := c.dec.Unmarshal(payload, &cred); err != nil {
		return types.Credential{}, fmt.Errorf("%w: payload decode", ErrIntegrity)
	}
	if cred.Checksum != payloadChecksum(cred.HajjID, cred.IssueNonce) {
		return types.Credential{}, fmt.Errorf("%w: payload checksum", ErrIntegrity)
	}

	return cred, nil
}

// NewNonce returns a random issue nonce for a freshly written card.
func NewNonce() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("codec: generate nonce: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (c *Codec) tag(body []byte) ([]byte, error) {
	h, err := blake3.NewKeyed(c.macKey)
	if err != nil {
		return nil, fmt.Errorf("codec: init mac: %w", err)
	}
	_, _ = h.Write(body)
	return h.Sum(nil)[:tagSize], nil
}

// payloadChecksum is a short inner checksum over the identifying fields.
// The keyed tag is the real integrity boundary; this catches a decrypt
// under the wrong key that happens to unpad cleanly.
func payloadChecksum(hajjID string, nonce uint64) uint32 {
	h := blake3.New()
	_, _ = h.Write([]byte(hajjID))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], nonce)
	_, _ = h.Write(b[:])
	return binary.BigEndian.Uint32(h.Sum(nil)[:4])
}

func padPKCS7(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpadPKCS7(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("bad length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.New("bad pad byte")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("inconsistent padding")
		}
	}
	return b[:len(b)-n], nil
}
