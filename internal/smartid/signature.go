package smartid

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrInvalidCertificate   = errors.New("invalid certificate")
	ErrSignatureMismatch    = errors.New("signature does not match challenge")
	ErrNoTrustAnchors       = errors.New("no trust anchor certificates configured")
)

// ParseCertificate accepts a base64 DER certificate, optionally PEM armoured.
func ParseCertificate(value string) (*x509.Certificate, error) {
	value = strings.TrimSpace(value)
	if block, _ := pem.Decode([]byte(value)); block != nil {
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
		}
		return cert, nil
	}
	der, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidCertificate, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return cert, nil
}

// hashFamily picks the digest named in a provider algorithm string such as
// "sha512WithRSAEncryption", "SHA256withECDSA" or "sha384WithRSAandMGF1".
func hashFamily(algorithm string) (string, bool) {
	a := strings.ToLower(algorithm)
	for _, h := range []string{"sha512", "sha384", "sha256"} {
		if strings.Contains(a, h) {
			return h, true
		}
	}
	return "", false
}

// SignatureAlgorithm maps a provider algorithm name and the certificate key
// type onto an x509 signature algorithm. The key type decides the scheme; the
// name decides the digest.
func SignatureAlgorithm(algorithm string, cert *x509.Certificate) (x509.SignatureAlgorithm, error) {
	family, ok := hashFamily(algorithm)
	if !ok {
		return x509.UnknownSignatureAlgorithm, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	pss := strings.Contains(strings.ToLower(algorithm), "mgf1") || strings.Contains(strings.ToLower(algorithm), "pss")

	switch cert.PublicKey.(type) {
	case *rsa.PublicKey:
		switch {
		case pss && family == "sha256":
			return x509.SHA256WithRSAPSS, nil
		case pss && family == "sha384":
			return x509.SHA384WithRSAPSS, nil
		case pss:
			return x509.SHA512WithRSAPSS, nil
		case family == "sha256":
			return x509.SHA256WithRSA, nil
		case family == "sha384":
			return x509.SHA384WithRSA, nil
		default:
			return x509.SHA512WithRSA, nil
		}
	case *ecdsa.PublicKey:
		switch family {
		case "sha256":
			return x509.ECDSAWithSHA256, nil
		case "sha384":
			return x509.ECDSAWithSHA384, nil
		default:
			return x509.ECDSAWithSHA512, nil
		}
	default:
		return x509.UnknownSignatureAlgorithm, fmt.Errorf("%w: key type %T", ErrUnsupportedAlgorithm, cert.PublicKey)
	}
}

// CertificateVerifier checks that the holder certificate chains to a trust
// anchor and that it carries the holder's signature over the challenge.
type CertificateVerifier struct {
	roots         *x509.CertPool
	intermediates *x509.CertPool
}

// NewCertificateVerifier builds a verifier from PEM encoded anchors. At least
// one self-signed CA certificate is required.
func NewCertificateVerifier(anchorsPEM []byte) (*CertificateVerifier, error) {
	v := &CertificateVerifier{
		roots:         x509.NewCertPool(),
		intermediates: x509.NewCertPool(),
	}
	roots := 0
	rest := anchorsPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse trust anchor: %w", err)
		}
		if cert.IsCA && isSelfSigned(cert) {
			v.roots.AddCert(cert)
			roots++
		} else {
			v.intermediates.AddCert(cert)
		}
	}
	if roots == 0 {
		return nil, ErrNoTrustAnchors
	}
	return v, nil
}

// Verify checks that cert chains to a configured anchor at now and that
// signatureB64 is the holder's signature over the raw challenge.
func (v *CertificateVerifier) Verify(cert *x509.Certificate, algorithm, signatureB64 string, challenge Challenge, now time.Time) error {
	if v == nil || v.roots == nil {
		return ErrNoTrustAnchors
	}
	_, err := cert.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: v.intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureB64))
	if err != nil {
		return fmt.Errorf("%w: decode signature: %v", ErrSignatureMismatch, err)
	}
	alg, err := SignatureAlgorithm(algorithm, cert)
	if err != nil {
		return err
	}
	if err := cert.CheckSignature(alg, challenge.Raw, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	return nil
}

func isSelfSigned(cert *x509.Certificate) bool {
	return cert.CheckSignatureFrom(cert) == nil
}
