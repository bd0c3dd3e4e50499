// Package webhook dispatches and delivers signed event notifications to
// subscriber callback URLs.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"

	"github.com/capturelab/scoopd/internal/domain/model"
)

// SignatureHeader carries the payload signature on outbound deliveries.
const SignatureHeader = "x-hook-signature"

// canonicalize re-marshals a JSON document through generic maps so object
// keys serialize in sorted order. Signer and verifier must agree on bytes,
// and struct field order is not a contract either side should depend on.
func canonicalize(body []byte) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return json.Marshal(doc)
}

// Sign computes the hex HMAC digest of the canonicalized JSON body using
// the subscription's key and algorithm.
func Sign(body []byte, algorithm model.SigningAlgorithm, key string) (string, error) {
	canonical, err := canonicalize(body)
	if err != nil {
		return "", err
	}

	var newHash func() hash.Hash
	switch algorithm {
	case model.SigningSHA512:
		newHash = sha512.New
	case model.SigningSHA256:
		newHash = sha256.New
	default:
		return "", fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	mac := hmac.New(newHash, []byte(key))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature matches the body under the given key and
// algorithm. The comparison is constant-time.
func Verify(body []byte, algorithm model.SigningAlgorithm, key, signature string) bool {
	expected, err := Sign(body, algorithm, key)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
