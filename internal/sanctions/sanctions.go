// Package sanctions derives a sanctions screening case from an attested
// identity. The personal number carries birth date, sex and issuing country.
package sanctions

import (
	"encoding/json"
	"fmt"
	"strings"

	"idmask/internal/attestation"
	dErrors "idmask/pkg/domain-errors"
)

// Case is one subject in a screening query.
type Case struct {
	Name        string `json:"name"`
	DOB         string `json:"dob"`
	Citizenship string `json:"citizenship"`
	Gender      string `json:"gender"`
}

// MatchResult is the provider verdict for a single case. MetaData is the raw
// provider response; it is returned to the caller but never signed.
type MatchResult struct {
	Matched  bool
	MetaData json.RawMessage
}

var citizenships = map[string]string{
	"EE": "Estonia",
	"LV": "Latvia",
	"LT": "Lithuania",
}

// personal numbers look like PNOLT-36203292548
const (
	countryOffset = 3
	genderIndex   = 6
	minDigits     = 7
)

// CaseFromIdentity builds the screening case for an attested identity.
func CaseFromIdentity(id attestation.IdentityData) (Case, error) {
	dob, err := DateOfBirth(id.PNO)
	if err != nil {
		return Case{}, err
	}
	citizenship, err := Citizenship(id.PNO)
	if err != nil {
		return Case{}, err
	}
	gender, err := Gender(id.PNO)
	if err != nil {
		return Case{}, err
	}
	return Case{
		Name:        id.Name + " " + id.Surname,
		DOB:         dob,
		Citizenship: citizenship,
		Gender:      gender,
	}, nil
}

// DateOfBirth reads the birth date from the digits after the dash: the first
// digit encodes the century as 18 + d/2, then YYMMDD.
func DateOfBirth(pno string) (string, error) {
	digits := pno[strings.IndexByte(pno, '-')+1:]
	if len(digits) < minDigits || !allDigits(digits[:minDigits]) {
		return "", invalidPNO("birth date digits missing")
	}
	century := 18 + int(digits[0]-'0')/2
	return fmt.Sprintf("%d%s-%s-%s", century, digits[1:3], digits[3:5], digits[5:7]), nil
}

// Citizenship maps the country code embedded in the personal number.
func Citizenship(pno string) (string, error) {
	if len(pno) < countryOffset+2 {
		return "", invalidPNO("country code missing")
	}
	c, ok := citizenships[pno[countryOffset:countryOffset+2]]
	if !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported citizenship "+pno[countryOffset:countryOffset+2])
	}
	return c, nil
}

// Gender is male for an odd first digit after the PNOxx- prefix.
func Gender(pno string) (string, error) {
	if len(pno) <= genderIndex || !allDigits(pno[genderIndex:genderIndex+1]) {
		return "", invalidPNO("gender digit missing")
	}
	if (pno[genderIndex]-'0')%2 == 1 {
		return "male", nil
	}
	return "female", nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func invalidPNO(reason string) error {
	return dErrors.New(dErrors.CodeInvalidInput, "invalid personal number: "+reason)
}
