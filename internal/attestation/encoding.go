package attestation

import (
	"fmt"
	"time"
)

// Payload is a typed attestation body that knows its canonical atom order.
type Payload interface {
	Fields() ([]Field, error)
}

// IdentityData is the verified identity attested by the eID flow.
// Atom order: name, surname, country, pno, currentDate, isMockData.
type IdentityData struct {
	Name        string `json:"name"`
	Surname     string `json:"surname"`
	Country     string `json:"country"`
	PNO         string `json:"pno"`
	CurrentDate int    `json:"currentDate"`
	IsMockData  int    `json:"isMockData"`
}

// Fields encodes the identity in protocol order.
func (d IdentityData) Fields() ([]Field, error) {
	out := make([]Field, 0, 4*MaxStringLength+2)
	for _, s := range []struct {
		name, value string
	}{
		{"name", d.Name},
		{"surname", d.Surname},
		{"country", d.Country},
		{"pno", d.PNO},
	} {
		atoms, err := StringFields(s.value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", s.name, err)
		}
		out = append(out, atoms...)
	}
	date, err := dateField(d.CurrentDate)
	if err != nil {
		return nil, err
	}
	mock, err := flagField(d.IsMockData)
	if err != nil {
		return nil, err
	}
	return append(out, date, mock), nil
}

// SanctionsData is the sanctions screening outcome.
// Atom order: isMatched, minScore, currentDate, isMockData.
type SanctionsData struct {
	IsMatched   bool `json:"isMatched"`
	MinScore    int  `json:"minScore"`
	CurrentDate int  `json:"currentDate"`
	IsMockData  int  `json:"isMockData"`
}

// Fields encodes the sanctions result in protocol order.
func (d SanctionsData) Fields() ([]Field, error) {
	if d.MinScore < 0 {
		return nil, fmt.Errorf("encode minScore: negative value %d", d.MinScore)
	}
	date, err := dateField(d.CurrentDate)
	if err != nil {
		return nil, err
	}
	mock, err := flagField(d.IsMockData)
	if err != nil {
		return nil, err
	}
	return []Field{FieldFromBool(d.IsMatched), FieldFromUint64(uint64(d.MinScore)), date, mock}, nil
}

// SecretData is the uniqueness secret. Atom order: secret.
type SecretData struct {
	Secret string `json:"secret"`
}

// Fields encodes the secret as a circuit string.
func (d SecretData) Fields() ([]Field, error) {
	atoms, err := StringFields(d.Secret)
	if err != nil {
		return nil, fmt.Errorf("encode secret: %w", err)
	}
	return atoms, nil
}

// CurrentDate renders t as YYYYMMDD in t's location.
func CurrentDate(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

func dateField(date int) (Field, error) {
	if date < 0 || date > 99991231 {
		return Field{}, fmt.Errorf("encode currentDate: out of range %d", date)
	}
	return FieldFromUint64(uint64(date)), nil
}

func flagField(v int) (Field, error) {
	if v != 0 && v != 1 {
		return Field{}, fmt.Errorf("encode isMockData: expected 0 or 1, got %d", v)
	}
	return FieldFromUint64(uint64(v)), nil
}
