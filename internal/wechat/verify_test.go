package wechat

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"testing"
)

func signatureFor(token, timestamp, nonce string) string {
	params := []string{token, timestamp, nonce}
	sort.Strings(params)
	sum := sha1.Sum([]byte(strings.Join(params, "")))
	return hex.EncodeToString(sum[:])
}

func TestTokenVerifier(t *testing.T) {
	v := TokenVerifier{Token: "my-webhook-token"}
	sig := signatureFor("my-webhook-token", "1693200000", "nonce42")

	if !v.Verify(sig, "1693200000", "nonce42") {
		t.Error("valid signature rejected")
	}
	if !v.Verify(strings.ToUpper(sig), "1693200000", "nonce42") {
		t.Error("uppercase signature should be accepted")
	}
	if v.Verify(sig, "1693200001", "nonce42") {
		t.Error("signature accepted with wrong timestamp")
	}
	if v.Verify(sig, "1693200000", "other") {
		t.Error("signature accepted with wrong nonce")
	}
	if v.Verify("deadbeef", "1693200000", "nonce42") {
		t.Error("bogus signature accepted")
	}
	if v.Verify("", "", "") {
		t.Error("empty signature accepted")
	}

	other := TokenVerifier{Token: "different-token"}
	if other.Verify(sig, "1693200000", "nonce42") {
		t.Error("signature accepted by verifier with different token")
	}
}
