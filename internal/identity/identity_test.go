package identity

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"
)

func TestDeriveAgentIDDeterministic(t *testing.T) {
	a := DeriveAgentID("some-public-key")
	b := DeriveAgentID("some-public-key")
	if a != b {
		t.Fatalf("derivation should be deterministic: %q != %q", a, b)
	}
	if a[:6] != "agent_" {
		t.Fatalf("expected agent_ prefix, got %q", a)
	}
	if len(a) != len("agent_")+16 {
		t.Fatalf("expected 16 hex chars after prefix, got %q", a)
	}
}

func TestDeriveAgentIDDiffersByKey(t *testing.T) {
	a := DeriveAgentID("key-one")
	b := DeriveAgentID("key-two")
	if a == b {
		t.Fatal("different public keys should derive different agent ids")
	}
}

func TestVerifyProofOfWorkFindsValidNonce(t *testing.T) {
	challenge := "deadbeef"
	var found string
	for i := 0; i < 1_000_000; i++ {
		nonce := fmt.Sprintf("%d", i)
		if VerifyProofOfWork(challenge, nonce) {
			found = nonce
			break
		}
	}
	if found == "" {
		t.Skip("no solution found in the search bound; PoW search is probabilistic")
	}
	if !VerifyProofOfWork(challenge, found) {
		t.Fatal("found nonce should re-verify")
	}
}

func TestVerifyProofOfWorkRejectsObviousMismatch(t *testing.T) {
	if VerifyProofOfWork("challenge", "not-a-valid-solution") {
		t.Fatal("expected rejection for an arbitrary nonce")
	}
}

func TestVerifySignedNonceEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	nonce := "abc123"
	sig := ed25519.Sign(priv, []byte(nonce))

	pubHex := hex.EncodeToString(pub)
	sigHex := hex.EncodeToString(sig)

	if !VerifySignedNonce(pubHex, nonce, sigHex) {
		t.Fatal("expected valid Ed25519 signature to verify")
	}
}

func TestVerifySignedNonceEd25519RejectsTamperedMessage(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	sig := ed25519.Sign(priv, []byte("original"))

	pubHex := hex.EncodeToString(pub)
	sigHex := hex.EncodeToString(sig)

	if VerifySignedNonce(pubHex, "tampered", sigHex) {
		t.Fatal("expected rejection for a tampered message")
	}
}

func TestVerifySignedNonceHMACFallback(t *testing.T) {
	secret := "not-a-valid-ed25519-key"
	nonce := "abc123"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	sigHex := hex.EncodeToString(mac.Sum(nil))

	if !VerifySignedNonce(secret, nonce, sigHex) {
		t.Fatal("expected HMAC fallback to verify when public key is not a valid Ed25519 key")
	}
}

func TestVerifySignedNonceRejectsGarbageSignature(t *testing.T) {
	if VerifySignedNonce("some-key", "nonce", "not-hex!!") {
		t.Fatal("expected rejection for a non-hex signature")
	}
}

func TestCanonicalActionMessageFormat(t *testing.T) {
	got := CanonicalActionMessage("POST", "/agent/action", `{"a":1}`, "1700000000")
	want := `POST:/agent/action:{"a":1}:1700000000`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestVerifyActionSignatureHMAC(t *testing.T) {
	secret := "plain-secret"
	message := CanonicalActionMessage("POST", "/agent/action", "{}", "1700000000")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	sigHex := hex.EncodeToString(mac.Sum(nil))

	if !VerifyActionSignature(secret, "POST", "/agent/action", "{}", "1700000000", sigHex) {
		t.Fatal("expected action signature to verify via HMAC fallback")
	}
}

func TestIsTimestampValidWithinSkew(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	if !IsTimestampValid(ts, now) {
		t.Fatal("expected exact now to be valid")
	}
}

func TestIsTimestampValidRejectsStale(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	stale := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)
	if IsTimestampValid(stale, now) {
		t.Fatal("expected a 10-minute-old timestamp to be rejected")
	}
}

func TestIsTimestampValidRejectsGarbage(t *testing.T) {
	if IsTimestampValid("not-a-number", time.Now()) {
		t.Fatal("expected rejection for a non-numeric timestamp")
	}
}

func TestGenerateChallengeAndNonceAreUnpredictable(t *testing.T) {
	a, err := GenerateChallenge()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateChallenge()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two generated challenges collided — entropy source looks broken")
	}
}

func TestGenerateClaimTokenLength(t *testing.T) {
	tok, err := GenerateClaimToken()
	if err != nil {
		t.Fatal(err)
	}
	if len(tok) < 32 {
		t.Fatalf("claim token too short for 256 bits of entropy: %d chars", len(tok))
	}
}
