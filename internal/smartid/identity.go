package smartid

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"strings"
)

var (
	oidGivenName    = asn1.ObjectIdentifier{2, 5, 4, 42}
	oidSurname      = asn1.ObjectIdentifier{2, 5, 4, 4}
	oidCountryName  = asn1.ObjectIdentifier{2, 5, 4, 6}
	oidSerialNumber = asn1.ObjectIdentifier{2, 5, 4, 5}
)

// ErrIncompleteSubject is returned when a required subject attribute is missing.
var ErrIncompleteSubject = errors.New("certificate subject is incomplete")

// VerifiedIdentity holds the subject attributes of a verified certificate.
type VerifiedIdentity struct {
	GivenName    string
	Surname      string
	CountryCode  string
	SerialNumber string
}

// DecodeIdentity extracts the identity attributes from the certificate subject.
func DecodeIdentity(cert *x509.Certificate) (VerifiedIdentity, error) {
	var id VerifiedIdentity
	for _, atv := range cert.Subject.Names {
		value, ok := atv.Value.(string)
		if !ok {
			continue
		}
		switch {
		case atv.Type.Equal(oidGivenName):
			id.GivenName = value
		case atv.Type.Equal(oidSurname):
			id.Surname = value
		case atv.Type.Equal(oidCountryName):
			id.CountryCode = value
		case atv.Type.Equal(oidSerialNumber):
			id.SerialNumber = value
		}
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"givenName", id.GivenName},
		{"surname", id.Surname},
		{"countryName", id.CountryCode},
		{"serialNumber", id.SerialNumber},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return VerifiedIdentity{}, fmt.Errorf("%w: missing %s", ErrIncompleteSubject, strings.Join(missing, ", "))
	}
	return id, nil
}
