package attestation

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/mr-tron/base58"
)

// domainTag separates attestation digests from any other use of the key.
var domainTag = []byte(fmt.Sprintf("idmask/attestation/v%d", EncodingVersion))

const privateKeyLen = 32

// Signature is a Schnorr signature rendered as two decimal integers.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
}

// Attestation is a signed payload together with the key that signed it.
type Attestation[T Payload] struct {
	Data      T         `json:"data"`
	Signature Signature `json:"signature"`
	PublicKey string    `json:"publicKey"`
}

// Digest hashes the tagged atom sequence.
func Digest(fields []Field) [32]byte {
	h := sha256.New()
	h.Write(domainTag)
	for _, f := range fields {
		h.Write(f[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Signer signs atom sequences with the oracle's private key.
type Signer struct {
	key       *btcec.PrivateKey
	publicKey string
}

// NewSigner parses a base58 encoded 32-byte secp256k1 private key.
func NewSigner(privateKey string) (*Signer, error) {
	raw, err := base58.Decode(privateKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != privateKeyLen {
		return nil, fmt.Errorf("decode private key: expected %d bytes, got %d", privateKeyLen, len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return &Signer{
		key:       priv,
		publicKey: EncodePublicKey(priv.PubKey()),
	}, nil
}

// GenerateKey returns a fresh base58 private key and its public key.
func GenerateKey() (privateKey, publicKey string, err error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	return base58.Encode(priv.Serialize()), EncodePublicKey(priv.PubKey()), nil
}

// EncodePublicKey renders the x-only public key in base58.
func EncodePublicKey(pub *btcec.PublicKey) string {
	return base58.Encode(schnorr.SerializePubKey(pub))
}

// PublicKey returns the base58 public key matching the signing key.
func (s *Signer) PublicKey() string {
	return s.publicKey
}

// Sign signs the atom sequence.
func (s *Signer) Sign(fields []Field) (Signature, error) {
	digest := Digest(fields)
	sig, err := schnorr.Sign(s.key, digest[:])
	if err != nil {
		return Signature{}, fmt.Errorf("sign attestation: %w", err)
	}
	raw := sig.Serialize()
	return Signature{
		R: new(big.Int).SetBytes(raw[:32]).String(),
		S: new(big.Int).SetBytes(raw[32:]).String(),
	}, nil
}

// Issue encodes and signs data.
func Issue[T Payload](s *Signer, data T) (*Attestation[T], error) {
	fields, err := data.Fields()
	if err != nil {
		return nil, err
	}
	sig, err := s.Sign(fields)
	if err != nil {
		return nil, err
	}
	return &Attestation[T]{Data: data, Signature: sig, PublicKey: s.publicKey}, nil
}
