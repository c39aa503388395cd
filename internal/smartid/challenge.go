// Package smartid implements the Smart-ID challenge/response protocol pieces
// that do not touch the network: challenge generation, verification code
// derivation, signature verification against the holder certificate, subject
// decoding and the flow state machine.
package smartid

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// ChallengeSize is the number of random bytes the holder signs.
const ChallengeSize = 64

// Challenge is the random value sent to the provider as a SHA-512 hash. Raw
// never leaves the process except through the session store backend.
type Challenge struct {
	Raw    []byte `json:"raw"`
	Digest string `json:"digest"`
}

// NewChallenge draws ChallengeSize bytes from r, or crypto/rand when r is nil.
func NewChallenge(r io.Reader) (Challenge, error) {
	if r == nil {
		r = rand.Reader
	}
	raw := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Challenge{}, fmt.Errorf("generate challenge: %w", err)
	}
	return ChallengeFromRaw(raw)
}

// ChallengeFromRaw builds a challenge around raw.
func ChallengeFromRaw(raw []byte) (Challenge, error) {
	if len(raw) != ChallengeSize {
		return Challenge{}, fmt.Errorf("challenge must be %d bytes, got %d", ChallengeSize, len(raw))
	}
	sum := sha512.Sum512(raw)
	return Challenge{
		Raw:    append([]byte(nil), raw...),
		Digest: base64.StdEncoding.EncodeToString(sum[:]),
	}, nil
}

// VerificationCode derives the 4-digit code shown to the holder from a digest:
// the last two bytes of SHA-256(digest bytes) as big-endian, modulo 10000.
func VerificationCode(digest string) (string, error) {
	hash, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return "", fmt.Errorf("decode challenge digest: %w", err)
	}
	sum := sha256.Sum256(hash)
	code := binary.BigEndian.Uint16(sum[len(sum)-2:]) % 10000
	return fmt.Sprintf("%04d", code), nil
}

// VerificationCode derives the code for this challenge.
func (c Challenge) VerificationCode() (string, error) {
	return VerificationCode(c.Digest)
}

// Session is the state kept between initiation and completion, keyed by the
// provider session id.
type Session struct {
	SessionID string    `json:"sessionId"`
	Challenge Challenge `json:"challenge"`
	CreatedAt time.Time `json:"createdAt"`
}
