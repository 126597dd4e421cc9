// Package identity implements agent authentication: anti-sybil
// proof-of-work for registration, Ed25519 signature verification (with
// an HMAC-SHA256 fallback scheme), timestamp skew checks, and the
// deterministic derivation of an agent's id from its public key.
package identity

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// PowDifficultyBits is the number of leading zero bits a registration
// proof-of-work solution must have.
const PowDifficultyBits = 16

// MaxTimestampSkew is the maximum allowed age (in either direction) of a
// signed request's timestamp.
const MaxTimestampSkew = 300 * time.Second

// GenerateNonce returns a random 256-bit hex nonce.
func GenerateNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateChallenge returns a random 128-bit hex proof-of-work challenge.
func GenerateChallenge() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateClaimToken returns a URL-safe, ≥256-bit-entropy single-use
// claim token.
func GenerateClaimToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate claim token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DeriveAgentID computes "agent_" + first 16 hex chars of SHA-256(publicKey).
func DeriveAgentID(publicKey string) string {
	sum := sha256.Sum256([]byte(publicKey))
	return "agent_" + hex.EncodeToString(sum[:])[:16]
}

// VerifyProofOfWork checks that sha256(challenge+nonce) has at least
// PowDifficultyBits leading zero bits.
func VerifyProofOfWork(challenge, nonce string) bool {
	sum := sha256.Sum256([]byte(challenge + nonce))
	return leadingZeroBits(sum[:]) >= PowDifficultyBits
}

func leadingZeroBits(b []byte) int {
	count := 0
	for _, byteVal := range b {
		if byteVal == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask > 0; mask >>= 1 {
			if byteVal&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// VerifySignedNonce verifies that signatureHex is a valid signature of
// nonce under publicKeyHex, preferring Ed25519 and falling back to
// HMAC-SHA256 (publicKeyHex as shared secret) when the public key is not
// a valid Ed25519 key.
func VerifySignedNonce(publicKeyHex, nonce, signatureHex string) bool {
	return verify(publicKeyHex, nonce, signatureHex)
}

// CanonicalActionMessage builds the signed-message format action
// requests authenticate against.
func CanonicalActionMessage(method, path, body string, timestamp string) string {
	return strings.Join([]string{method, path, body, timestamp}, ":")
}

// VerifyActionSignature verifies a signed action request using the same
// Ed25519/HMAC dual policy as registration.
func VerifyActionSignature(publicKeyHex, method, path, body, timestamp, signatureHex string) bool {
	message := CanonicalActionMessage(method, path, body, timestamp)
	return verify(publicKeyHex, message, signatureHex)
}

func verify(publicKeyHex, message, signatureHex string) bool {
	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	if pubBytes, err := hex.DecodeString(publicKeyHex); err == nil && len(pubBytes) == ed25519.PublicKeySize {
		if ed25519.Verify(ed25519.PublicKey(pubBytes), []byte(message), sigBytes) {
			return true
		}
	}

	// HMAC-SHA256 fallback: the public key string itself is the shared
	// secret. Not cryptographically equivalent to Ed25519 — kept only so
	// local development and tests can run without asymmetric keys.
	mac := hmac.New(sha256.New, []byte(publicKeyHex))
	mac.Write([]byte(message))
	expected := mac.Sum(nil)
	return subtle.ConstantTimeCompare(expected, mustHex(signatureHex)) == 1
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// IsTimestampValid reports whether the unix-seconds timestamp string is
// within MaxTimestampSkew of now.
func IsTimestampValid(timestamp string, now time.Time) bool {
	ts, err := strconv.ParseFloat(timestamp, 64)
	if err != nil {
		return false
	}
	delta := math.Abs(float64(now.Unix()) - ts)
	return delta < MaxTimestampSkew.Seconds()
}
