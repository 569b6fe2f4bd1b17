package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	minisign "github.com/jedisct1/go-minisign"
)

// Verifier validates a catalog file against a detached minisign signature
// before it is parsed, so an operator-distributed server list cannot be
// swapped in transit.
type Verifier struct {
	publicKey minisign.PublicKey
}

// NewVerifier parses a minisign public key (with its comment header) and
// returns a verifier for catalogs signed by the matching secret key.
func NewVerifier(pubKey string) (*Verifier, error) {
	pubKey = strings.TrimSpace(pubKey)
	if pubKey == "" {
		return nil, errors.New("minisign public key is required")
	}
	publicKey, err := minisign.DecodePublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("parse minisign public key: %w", err)
	}
	return &Verifier{publicKey: publicKey}, nil
}

// LoadSigned reads, verifies, and parses a signed catalog. The signature is
// expected alongside the catalog at path + ".minisig" unless sigPath is set.
func (v *Verifier) LoadSigned(path, sigPath string) ([]Server, error) {
	if v == nil {
		return nil, errors.New("catalog verifier not configured")
	}
	if sigPath == "" {
		sigPath = path + ".minisig"
	}

	sigBytes, err := os.ReadFile(sigPath)
	if err != nil {
		return nil, fmt.Errorf("read signature %q: %w", sigPath, err)
	}
	signature, err := minisign.DecodeSignature(string(sigBytes))
	if err != nil {
		return nil, fmt.Errorf("decode signature %q: %w", sigPath, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}

	ok, err := v.publicKey.Verify(data, signature)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("catalog signature verification failed")
	}
	return Parse(data)
}
