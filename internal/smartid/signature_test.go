package smartid

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idmask/internal/smartid/smartidtest"
)

type SignatureSuite struct {
	suite.Suite
	authority *smartidtest.Authority
	holder    *smartidtest.Holder
	verifier  *CertificateVerifier
	challenge Challenge
}

func TestSignatureSuite(t *testing.T) {
	suite.Run(t, new(SignatureSuite))
}

func (s *SignatureSuite) SetupSuite() {
	var err error
	s.authority, err = smartidtest.NewAuthority()
	s.Require().NoError(err)
	s.holder, err = s.authority.Issue(smartidtest.Subject{
		GivenName:    "MARY ÄNN",
		Surname:      "O’CONNEŽ-ŠUSLIK TESTNUMBER",
		Country:      "EE",
		SerialNumber: "PNOEE-60001019906",
	}, smartidtest.KeyECDSA)
	s.Require().NoError(err)
	s.verifier, err = NewCertificateVerifier(s.authority.PEM)
	s.Require().NoError(err)

	s.challenge, err = NewChallenge(nil)
	s.Require().NoError(err)
}

func (s *SignatureSuite) sign() string {
	sig, err := s.holder.SignChallenge(s.challenge.Raw)
	s.Require().NoError(err)
	return sig
}

func (s *SignatureSuite) TestValidSignatureVerifies() {
	cert, err := ParseCertificate(s.holder.CertValue())
	s.Require().NoError(err)
	s.NoError(s.verifier.Verify(cert, s.holder.Algorithm(), s.sign(), s.challenge, time.Now()))
}

func (s *SignatureSuite) TestRSAHolder() {
	holder, err := s.authority.Issue(smartidtest.Subject{
		GivenName: "JANE", Surname: "DOE", Country: "LT", SerialNumber: "PNOLT-36203292548",
	}, smartidtest.KeyRSA)
	s.Require().NoError(err)

	sig, err := holder.SignChallenge(s.challenge.Raw)
	s.Require().NoError(err)
	cert, err := ParseCertificate(holder.CertValue())
	s.Require().NoError(err)
	s.NoError(s.verifier.Verify(cert, "sha512WithRSAEncryption", sig, s.challenge, time.Now()))
	s.ErrorIs(s.verifier.Verify(cert, "sha256WithRSAEncryption", sig, s.challenge, time.Now()), ErrSignatureMismatch)
}

func (s *SignatureSuite) TestWrongChallengeFails() {
	cert, err := ParseCertificate(s.holder.CertValue())
	s.Require().NoError(err)
	other, err := NewChallenge(nil)
	s.Require().NoError(err)
	s.ErrorIs(s.verifier.Verify(cert, s.holder.Algorithm(), s.sign(), other, time.Now()), ErrSignatureMismatch)
}

func (s *SignatureSuite) TestEverySignatureBitFlipFails() {
	cert, err := ParseCertificate(s.holder.CertValue())
	s.Require().NoError(err)
	sig := s.sign()
	raw, err := base64.StdEncoding.DecodeString(sig)
	s.Require().NoError(err)

	for bit := range len(raw) * 8 {
		mutated := smartidtest.FlipBit(sig, bit)
		s.Error(s.verifier.Verify(cert, s.holder.Algorithm(), mutated, s.challenge, time.Now()), "bit %d", bit)
	}
}

func (s *SignatureSuite) TestEveryCertificateBitFlipFails() {
	sig := s.sign()
	der := s.holder.DER
	for bit := range len(der) * 8 {
		mutated := smartidtest.FlipBit(s.holder.CertValue(), bit)
		cert, err := ParseCertificate(mutated)
		if err != nil {
			continue
		}
		s.Error(s.verifier.Verify(cert, s.holder.Algorithm(), sig, s.challenge, time.Now()), "bit %d", bit)
	}
}

func (s *SignatureSuite) TestUntrustedIssuerFails() {
	rogue, err := smartidtest.NewAuthority()
	s.Require().NoError(err)
	holder, err := rogue.Issue(smartidtest.Subject{GivenName: "A", Surname: "B", Country: "EE", SerialNumber: "PNOEE-1"}, smartidtest.KeyECDSA)
	s.Require().NoError(err)
	sig, err := holder.SignChallenge(s.challenge.Raw)
	s.Require().NoError(err)

	s.ErrorIs(s.verifier.Verify(holder.Cert, holder.Algorithm(), sig, s.challenge, time.Now()), ErrInvalidCertificate)
}

func (s *SignatureSuite) TestVerifierRequiresTrustAnchors() {
	for name, anchors := range map[string][]byte{
		"empty":             nil,
		"whitespace":        []byte("  \n"),
		"only intermediate": s.holder.PEM(),
	} {
		s.Run(name, func() {
			_, err := NewCertificateVerifier(anchors)
			s.ErrorIs(err, ErrNoTrustAnchors)
		})
	}

	var zero *CertificateVerifier
	cert, err := ParseCertificate(s.holder.CertValue())
	s.Require().NoError(err)
	s.ErrorIs(zero.Verify(cert, s.holder.Algorithm(), s.sign(), s.challenge, time.Now()), ErrNoTrustAnchors)
}

func (s *SignatureSuite) TestEditedSubjectWithSameKeyFails() {
	sig := s.sign()
	edited := smartidtest.ReplaceInCertificate(s.holder.DER, "MARY", "NARY")
	cert, err := ParseCertificate(edited)
	s.Require().NoError(err)
	decoded, err := DecodeIdentity(cert)
	s.Require().NoError(err)
	s.Equal("NARY ÄNN", decoded.GivenName)

	s.ErrorIs(s.verifier.Verify(cert, s.holder.Algorithm(), sig, s.challenge, time.Now()), ErrInvalidCertificate)
}

func (s *SignatureSuite) TestExpiredCertificateFails() {
	cert, err := ParseCertificate(s.holder.CertValue())
	s.Require().NoError(err)
	s.ErrorIs(s.verifier.Verify(cert, s.holder.Algorithm(), s.sign(), s.challenge, time.Now().Add(48*time.Hour)), ErrInvalidCertificate)
}

func (s *SignatureSuite) TestUnsupportedAlgorithm() {
	cert, err := ParseCertificate(s.holder.CertValue())
	s.Require().NoError(err)
	s.ErrorIs(s.verifier.Verify(cert, "md5WithRSAEncryption", s.sign(), s.challenge, time.Now()), ErrUnsupportedAlgorithm)
}

func (s *SignatureSuite) TestParseCertificateFormats() {
	_, err := ParseCertificate("-----BEGIN CERTIFICATE-----\n" + s.holder.CertValue() + "\n-----END CERTIFICATE-----")
	s.NoError(err)
	_, err = ParseCertificate("not base64 !!")
	s.ErrorIs(err, ErrInvalidCertificate)
	_, err = ParseCertificate(base64.StdEncoding.EncodeToString([]byte("garbage")))
	s.ErrorIs(err, ErrInvalidCertificate)
}

func (s *SignatureSuite) TestDecodeIdentity() {
	id, err := DecodeIdentity(s.holder.Cert)
	s.Require().NoError(err)
	s.Equal(VerifiedIdentity{
		GivenName:    "MARY ÄNN",
		Surname:      "O’CONNEŽ-ŠUSLIK TESTNUMBER",
		CountryCode:  "EE",
		SerialNumber: "PNOEE-60001019906",
	}, id)

	partial, err := s.authority.Issue(smartidtest.Subject{GivenName: "A", Country: "EE", SerialNumber: "PNOEE-1"}, smartidtest.KeyECDSA)
	s.Require().NoError(err)
	_, err = DecodeIdentity(partial.Cert)
	s.ErrorIs(err, ErrIncompleteSubject)
}
