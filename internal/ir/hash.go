package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed hashes.
// Version suffix enables future algorithm migration.
const (
	DomainBinding = "fedq/binding/v1"
	DomainQuery   = "fedq/query/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// BindingHash computes the content hash of a binding set. Two binding sets
// hash equal iff they are Equal after NFC normalisation. DISTINCT and the
// harness result digests rely on it.
func BindingHash(bs BindingSet) string {
	return hashWithDomain(DomainBinding, Canonical(bs))
}

// QueryHash computes the content hash of rendered query text. Dispatch
// logs carry it so repeated identical dispatches can be correlated.
func QueryHash(text string) string {
	return hashWithDomain(DomainQuery, []byte(text))
}
