// Package attestation encodes verified attributes into a fixed sequence of
// field elements, signs that sequence with the oracle key and verifies
// attestations presented back to the oracle.
//
// The order and width of the atoms is a protocol contract shared with the
// on-chain verifier circuits. Any change is a breaking change and must bump
// EncodingVersion.
package attestation

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// EncodingVersion tags the atom layout inside the signed digest.
const EncodingVersion = 1

// MaxStringLength is the number of character atoms in a circuit string.
const MaxStringLength = 128

// ErrStringTooLong is returned for strings that do not fit a circuit string.
var ErrStringTooLong = errors.New("string exceeds circuit string length")

// ErrInvalidUTF8 is returned for strings that are not valid UTF-8; they have no
// unambiguous code unit sequence.
var ErrInvalidUTF8 = errors.New("string is not valid UTF-8")

// Field is a 32-byte big-endian field element.
type Field [32]byte

// FieldFromUint64 encodes v in the low bytes of a field element.
func FieldFromUint64(v uint64) Field {
	var f Field
	binary.BigEndian.PutUint64(f[24:], v)
	return f
}

// FieldFromBool encodes b as 1 or 0.
func FieldFromBool(b bool) Field {
	if b {
		return FieldFromUint64(1)
	}
	return FieldFromUint64(0)
}

// StringFields encodes s as MaxStringLength character atoms, one per UTF-16
// code unit, zero padded.
func StringFields(s string) ([]Field, error) {
	if !utf8.ValidString(s) {
		return nil, ErrInvalidUTF8
	}
	units := utf16.Encode([]rune(s))
	if len(units) > MaxStringLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrStringTooLong, len(units), MaxStringLength)
	}
	out := make([]Field, MaxStringLength)
	for i, u := range units {
		out[i] = FieldFromUint64(uint64(u))
	}
	return out, nil
}
