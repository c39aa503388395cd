// Package smartidtest provides a throwaway certificate authority, holder
// certificates and an in-process Smart-ID relying party API for tests.
package smartidtest

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// Subject is the holder identity written into the certificate.
type Subject struct {
	GivenName    string
	Surname      string
	Country      string
	SerialNumber string
}

// KeyType selects the holder key algorithm.
type KeyType int

const (
	KeyECDSA KeyType = iota
	KeyRSA
)

// Authority is a self-signed CA issuing holder certificates.
type Authority struct {
	Cert *x509.Certificate
	key  *ecdsa.PrivateKey
	// PEM is the CA certificate, usable as a trust anchor bundle.
	PEM []byte
}

// Holder is an issued certificate and its private key.
type Holder struct {
	Cert *x509.Certificate
	DER  []byte
	Key  crypto.Signer
}

// NewAuthority creates a fresh CA valid for one day around now.
func NewAuthority() (*Authority, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test EID-SK", Country: []string{"EE"}},
		NotBefore:             time.Now().Add(-12 * time.Hour),
		NotAfter:              time.Now().Add(12 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Authority{
		Cert: cert,
		key:  key,
		PEM:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}, nil
}

// Issue creates a holder certificate for subject.
func (a *Authority) Issue(subject Subject, keyType KeyType) (*Holder, error) {
	var (
		signer crypto.Signer
		err    error
	)
	switch keyType {
	case KeyRSA:
		signer, err = rsa.GenerateKey(rand.Reader, 2048)
	default:
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	if err != nil {
		return nil, err
	}

	name := pkix.Name{
		CommonName:   fmt.Sprintf("%s,%s", subject.Surname, subject.GivenName),
		SerialNumber: subject.SerialNumber,
	}
	if subject.Country != "" {
		name.Country = []string{subject.Country}
	}
	if subject.GivenName != "" {
		name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{Type: asn1.ObjectIdentifier{2, 5, 4, 42}, Value: subject.GivenName})
	}
	if subject.Surname != "" {
		name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{Type: asn1.ObjectIdentifier{2, 5, 4, 4}, Value: subject.Surname})
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      name,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.Cert, signer.Public(), a.key)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Holder{Cert: cert, DER: der, Key: signer}, nil
}

// CertValue renders the certificate the way the provider does: base64 DER.
func (h *Holder) CertValue() string {
	return base64.StdEncoding.EncodeToString(h.DER)
}

// PEM renders the holder certificate as a PEM block.
func (h *Holder) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: h.DER})
}

// ReplaceInCertificate rewrites every occurrence of old with replacement
// (same length) inside der and returns the result as base64, leaving the
// issuer signature untouched.
func ReplaceInCertificate(der []byte, old, replacement string) string {
	edited := bytes.ReplaceAll(der, []byte(old), []byte(replacement))
	return base64.StdEncoding.EncodeToString(edited)
}

// Algorithm names the signature scheme the provider would report.
func (h *Holder) Algorithm() string {
	if _, ok := h.Key.(*rsa.PrivateKey); ok {
		return "sha512WithRSAEncryption"
	}
	return "sha512WithECDSA"
}

// SignDigest signs a SHA-512 digest, as the holder device does.
func (h *Holder) SignDigest(digest []byte) (string, error) {
	sig, err := h.Key.Sign(rand.Reader, digest, crypto.SHA512)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// SignChallenge signs raw challenge bytes.
func (h *Holder) SignChallenge(raw []byte) (string, error) {
	sum := sha512.Sum512(raw)
	return h.SignDigest(sum[:])
}
