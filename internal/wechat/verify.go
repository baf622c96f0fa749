package wechat

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
)

// Verifier checks webhook request signatures.
type Verifier interface {
	Verify(signature, timestamp, nonce string) bool
}

// TokenVerifier implements the Official Account signature scheme: the
// SHA1 of the lexically sorted (token, timestamp, nonce) triple must
// equal the signature query parameter.
type TokenVerifier struct {
	Token string
}

// Verify reports whether the signature is valid for this token.
func (v TokenVerifier) Verify(signature, timestamp, nonce string) bool {
	params := []string{v.Token, timestamp, nonce}
	sort.Strings(params)
	sum := sha1.Sum([]byte(strings.Join(params, "")))
	return hex.EncodeToString(sum[:]) == strings.ToLower(signature)
}
