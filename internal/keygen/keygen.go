// Package keygen produces the 20-byte routing-encoded object key described
// in the key layout table: part random, part derived from the namespace,
// owner and bucket hashes, plus fixed service-id and class-of-service bytes.
package keygen

import (
	"crypto/md5" //nolint:gosec // routing hash, not a security boundary
	"crypto/rand"
	"encoding/hex"
	"io"
)

const (
	// KeyLength is the binary key size in bytes.
	KeyLength = 20
	// HexLength is the rendered, uppercase-hex wire length.
	HexLength = KeyLength * 2

	// ServiceID is the fixed sid byte embedded at offset 15.
	ServiceID byte = 0x59
	// DefaultClassOfService is used when the caller's config doesn't override it.
	DefaultClassOfService byte = 0x02
)

// RoutingParams carries the three strings KeyGen hashes to derive placement
// bytes. All three must be non-empty.
type RoutingParams struct {
	BucketName string
	Namespace  string
	Owner      string
}

// Key is the 20-byte binary object identifier. Its String form is the
// 40-char uppercase hex the wire protocol uses.
type Key [KeyLength]byte

func (k Key) String() string {
	dst := make([]byte, HexLength)
	hex.Encode(dst, k[:])
	return upperASCII(dst)
}

func upperASCII(b []byte) string {
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// Generate assembles a key for the given params and class-of-service byte,
// drawing 11 random bytes from rng (crypto/rand.Reader if nil). It only
// fails if rng fails.
func Generate(params RoutingParams, cos byte, rng io.Reader) (Key, error) {
	if rng == nil {
		rng = rand.Reader
	}

	hashNamespace := md5.Sum([]byte(params.Namespace)) //nolint:gosec
	hashOwner := md5.Sum([]byte(params.Owner))         //nolint:gosec
	hashBucket := md5.Sum([]byte(params.BucketName))   //nolint:gosec

	var random [11]byte
	if _, err := io.ReadFull(rng, random[:]); err != nil {
		return Key{}, err
	}

	var k Key
	// bytes 0..8: random
	copy(k[0:8], random[0:8])
	// byte 8: hashNamespace[0]
	k[8] = hashNamespace[0]
	// byte 9: hashNamespace[1] XOR hashOwner[0]
	k[9] = hashNamespace[1] ^ hashOwner[0]
	// byte 10: hashOwner[1]
	k[10] = hashOwner[1]
	// byte 11: hashOwner[2] XOR hashBucket[0]
	k[11] = hashOwner[2] ^ hashBucket[0]
	// bytes 12..15: hashBucket[1..4]
	copy(k[12:15], hashBucket[1:4])
	// byte 15: sid
	k[15] = ServiceID
	// bytes 16..19: random (remaining 3 bytes)
	copy(k[16:19], random[8:11])
	// byte 19: cos
	k[19] = cos

	return k, nil
}

// Parse validates and decodes a 40-char hex key string from the wire.
func Parse(s string) (Key, bool) {
	if len(s) != HexLength {
		return Key{}, false
	}
	var k Key
	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return Key{}, false
	}
	return k, true
}

// ValidKeyString reports whether s has the exact 40-character hex shape the
// wire protocol requires, without decoding it. len(s) is the byte length;
// every byte must then be an ASCII hex digit (either case), so for any
// accepted string the byte and character counts are the same 40.
func ValidKeyString(s string) bool {
	if len(s) != HexLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'F':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
