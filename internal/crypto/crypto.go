package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/box"
)

// ErrUnverifiedSignature is the single failure for signature verification:
// bad hex, wrong length and cryptographic mismatch are not distinguished.
var ErrUnverifiedSignature = errors.New("unverified signature")

// DateLayout is the canonical timestamp format used inside signing strings,
// ISO-8601 UTC with millisecond precision.
const DateLayout = "2006-01-02T15:04:05.000Z"

// IdentityKeyPair is an Ed25519 key pair for signing.
type IdentityKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateIdentityKeyPair generates a new Ed25519 key pair.
func GenerateIdentityKeyPair() (*IdentityKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &IdentityKeyPair{Public: pub, Private: priv}, nil
}

// ExchangeKeyPair is an X25519 key pair for sealing message content.
type ExchangeKeyPair struct {
	Public  *[32]byte
	Private *[32]byte
}

// GenerateExchangeKeyPair generates a new X25519 key pair for box.
func GenerateExchangeKeyPair() (*ExchangeKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &ExchangeKeyPair{Public: pub, Private: priv}, nil
}

// KeyFromSeedHex builds an Ed25519 private key from a 64-hex-character seed.
func KeyFromSeedHex(seedHex string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, fmt.Errorf("invalid key seed encoding: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid key seed size %d", len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// ParsePublicKeyHex decodes a 64-hex-character Ed25519 public key.
func ParsePublicKeyHex(pubHex string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(pubHex))
	if err != nil {
		return nil, fmt.Errorf("invalid public key encoding: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// ContentHash returns the lowercase hex SHA-256 of body.
func ContentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CanonicalDate formats t the way it appears inside signing strings.
func CanonicalDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses an ISO-8601 timestamp from a request header or payload.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// LocalSigningString is the canonical string a client signs over a request
// to its own home server.
func LocalSigningString(method, date, contentHash, nonce string) string {
	return strings.Join([]string{method, date, contentHash, nonce}, ":")
}

// RemoteSigningString is the canonical string a server signs over an
// exchange call to a peer server.
func RemoteSigningString(originHost, localHost, date, contentHash, nonce string) string {
	return strings.Join([]string{originHost, localHost, date, contentHash, nonce}, ":")
}

// PayloadSigningString is the canonical string the sending user signs over
// the message itself. It is independent of transport: contentHash is the hex
// SHA-256 of the raw message content, timestamp the verbatim payload value.
func PayloadSigningString(from, to, timestamp, contentHash, nonce string) string {
	return strings.Join([]string{from, to, timestamp, contentHash, nonce}, ":")
}

// SignHex signs msg and returns the signature as lowercase hex.
func SignHex(priv ed25519.PrivateKey, msg string) string {
	return hex.EncodeToString(ed25519.Sign(priv, []byte(msg)))
}

// VerifyHex checks a hex signature over msg. It fails closed with
// ErrUnverifiedSignature on any decode, length or verification error.
func VerifyHex(pub ed25519.PublicKey, msg string, sigHex string) error {
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrUnverifiedSignature
	}
	if len(pub) != ed25519.PublicKeySize || !ed25519.Verify(pub, []byte(msg), sig) {
		return ErrUnverifiedSignature
	}
	return nil
}

// Seal encrypts content for a recipient box public key using a fresh
// ephemeral key. Output layout: ephemeral public key, nonce, box.
func Seal(content []byte, recipientPub *[32]byte) ([]byte, error) {
	ephemeral, err := GenerateExchangeKeyPair()
	if err != nil {
		return nil, err
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	out := make([]byte, 0, 32+24+len(content)+box.Overhead)
	out = append(out, ephemeral.Public[:]...)
	out = append(out, nonce[:]...)
	return box.Seal(out, content, &nonce, recipientPub, ephemeral.Private), nil
}

// Open decrypts content produced by Seal with the recipient's private key.
func Open(sealed []byte, recipientPriv *[32]byte) ([]byte, error) {
	if len(sealed) < 32+24 {
		return nil, errors.New("sealed content too short")
	}

	var ephemeralPub [32]byte
	copy(ephemeralPub[:], sealed[:32])
	var nonce [24]byte
	copy(nonce[:], sealed[32:56])

	content, ok := box.Open(nil, sealed[56:], &nonce, &ephemeralPub, recipientPriv)
	if !ok {
		return nil, errors.New("open failed")
	}
	return content, nil
}
