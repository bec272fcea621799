package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
)

// DomainChain prefixes chain hashes. The version suffix leaves room for
// algorithm migration.
const DomainChain = "loreledger/chain/v1"

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

// GenesisHash precedes the first event of every campaign.
var GenesisHash Hash

// String returns the lowercase hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the genesis hash.
func (h Hash) IsZero() bool {
	return h == GenesisHash
}

// MarshalText implements encoding.TextMarshaler (hex).
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler (hex).
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	return HashFromBytes(b)
}

// HashFromBytes copies a 32-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// IdempotencyKey is a 16-byte truncated SHA-256 fingerprint.
type IdempotencyKey [16]byte

// String returns the lowercase hex form.
func (k IdempotencyKey) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalText implements encoding.TextMarshaler (hex).
func (k IdempotencyKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler (hex).
func (k *IdempotencyKey) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("parse idempotency key: %w", err)
	}
	parsed, err := IdempotencyKeyFromBytes(b)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IdempotencyKeyFromBytes copies a 16-byte slice into an IdempotencyKey.
func IdempotencyKeyFromBytes(b []byte) (IdempotencyKey, error) {
	var k IdempotencyKey
	if len(b) != len(k) {
		return k, fmt.Errorf("idempotency key must be %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// PayloadHash computes SHA-256 over the canonical encoding of payload.
func PayloadHash(payload IRObject) (Hash, error) {
	if payload == nil {
		payload = IRObject{}
	}
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return Hash{}, fmt.Errorf("payload hash: %w", err)
	}
	return sha256.Sum256(canonical), nil
}

// ContentHash returns the lowercase hex SHA-256 of v's canonical encoding.
// Used for artifact file hashes and the manifest hash.
func ContentHash(v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash links an envelope to its successor.
// Format: SHA256(domain + 0x00 + frame(campaign) + u64be(ordinal) +
// frame(event_type) + prev(32) + payload_hash(32) + key(16)).
// Fixed-width fields are written raw; strings are length framed so no two
// distinct inputs share an encoding.
func ChainHash(campaignID string, ordinal int64, eventType string, prev, payloadHash Hash, key IdempotencyKey) Hash {
	h := newDomainHash(DomainChain)
	writeFrame(h, campaignID)
	var ord [8]byte
	binary.BigEndian.PutUint64(ord[:], uint64(ordinal))
	h.Write(ord[:])
	writeFrame(h, eventType)
	h.Write(prev[:])
	h.Write(payloadHash[:])
	h.Write(key[:])

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// newDomainHash starts a SHA-256 with domain separation: domain + 0x00.
// The null byte prevents domain/data boundary ambiguity.
func newDomainHash(domain string) hash.Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	return h
}

// writeFrame writes u32be(len(s)) followed by the bytes of s.
func writeFrame(h hash.Hash, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
