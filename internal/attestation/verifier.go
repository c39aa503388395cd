package attestation

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/mr-tron/base58"

	dErrors "idmask/pkg/domain-errors"
)

// ErrInvalidSignature is returned when a signature does not match its payload.
var ErrInvalidSignature = errors.New("invalid signature")

// Verifier checks attestations against the oracle's trusted public key. The key
// presented alongside an inbound attestation is never trusted.
type Verifier struct {
	key       *btcec.PublicKey
	publicKey string
}

// NewVerifier parses a base58 x-only public key.
func NewVerifier(publicKey string) (*Verifier, error) {
	raw, err := base58.Decode(publicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	key, err := schnorr.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &Verifier{key: key, publicKey: publicKey}, nil
}

// PublicKey returns the trusted base58 public key.
func (v *Verifier) PublicKey() string {
	return v.publicKey
}

// Verify checks sig over the atom sequence.
func (v *Verifier) Verify(fields []Field, sig Signature) error {
	raw, err := sig.bytes()
	if err != nil {
		return err
	}
	parsed, err := schnorr.ParseSignature(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	digest := Digest(fields)
	if !parsed.Verify(digest[:], v.key) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyPayload re-encodes p in protocol order and checks sig. Any failure is
// reported as a verification error.
func (v *Verifier) VerifyPayload(p Payload, sig Signature) error {
	fields, err := p.Fields()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeVerificationFailed, "verify signature: invalid data")
	}
	if err := v.Verify(fields, sig); err != nil {
		return dErrors.Wrap(err, dErrors.CodeVerificationFailed, "verify signature: invalid data")
	}
	return nil
}

// VerifyIdentity checks an identity attestation presented back to the oracle.
func (v *Verifier) VerifyIdentity(data IdentityData, sig Signature) error {
	return v.VerifyPayload(data, sig)
}

func (s Signature) bytes() ([]byte, error) {
	r, ok := new(big.Int).SetString(s.R, 10)
	if !ok || r.Sign() < 0 || r.BitLen() > 256 {
		return nil, fmt.Errorf("%w: malformed r", ErrInvalidSignature)
	}
	sv, ok := new(big.Int).SetString(s.S, 10)
	if !ok || sv.Sign() < 0 || sv.BitLen() > 256 {
		return nil, fmt.Errorf("%w: malformed s", ErrInvalidSignature)
	}
	out := make([]byte, 64)
	r.FillBytes(out[:32])
	sv.FillBytes(out[32:])
	return out, nil
}
