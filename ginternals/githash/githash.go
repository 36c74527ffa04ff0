// Package githash contains the object identifier type and the hash
// method used to compute it
package githash

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidOid is returned when a given value isn't a valid Oid
var ErrInvalidOid = errors.New("invalid object id")

// OidSize is the length of an oid, in bytes
const OidSize = 20

// NullOid is the value of an empty Oid
var NullOid = Oid{}

// Oid represents a git Object ID, the SHA-1 of an object's wire
// representation
type Oid [OidSize]byte

// Sum computes the Oid of the given content
func Sum(data []byte) Oid {
	return sha1.Sum(data)
}

// NewOidFromStr returns an Oid from the given hex string.
// The input is case-insensitive.
// For the SHA 9b91da06e69613397b38e0808e0ba5ee6983251b
// the oid will be {0x9b, 0x91, 0xda, ...}
func NewOidFromStr(id string) (Oid, error) {
	if len(id) != OidSize*2 {
		return NullOid, ErrInvalidOid
	}
	bytes, err := hex.DecodeString(strings.ToLower(id))
	if err != nil {
		return NullOid, ErrInvalidOid
	}
	return NewOidFromBytes(bytes)
}

// NewOidFromChars returns an Oid from the given char bytes
// For the SHA {'9', 'b', '9', '1', 'd', 'a', ...}
// the oid will be {0x9b, 0x91, 0xda, ...}
func NewOidFromChars(id []byte) (Oid, error) {
	return NewOidFromStr(string(id))
}

// NewOidFromBytes returns an Oid from the provided byte-encoded oid.
// This basically casts a slice that contains an encoded oid into
// an Oid object
func NewOidFromBytes(id []byte) (Oid, error) {
	if len(id) != OidSize {
		return NullOid, ErrInvalidOid
	}
	var oid Oid
	copy(oid[:], id)
	return oid, nil
}

// IsValid returns whether the given string is a well-formed oid
func IsValid(id string) bool {
	_, err := NewOidFromStr(id)
	return err == nil
}

// Bytes returns the raw Oid as []byte.
// This is different than doing []byte(oid.String())
// For the oid 642480605b8b0fd464ab5762e044269cf29a60a3:
// oid.Bytes(): []byte{ 0x64, 0x24, 0x80, ... }
// []byte(oid.String()): []byte{ '6', '4', '2', '4', '8', '0', ... }
func (o Oid) Bytes() []byte {
	return o[:]
}

// String converts an oid to its lowercase hex representation
func (o Oid) String() string {
	return hex.EncodeToString(o[:])
}

// IsZero returns whether the oid has the zero value (NullOid)
func (o Oid) IsZero() bool {
	return o == NullOid
}
