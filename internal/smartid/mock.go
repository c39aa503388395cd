package smartid

import (
	"fmt"
	"math/rand/v2"
)

var (
	mockGivenNames = []string{"Jane", "Douglas", "Abraham", "Spruce", "Hilary", "Lance"}
	mockSurnames   = []string{"Doe", "Lyphe", "Pigeon", "Springclean", "Ouse", "Nettlewater"}
	mockCountries  = []string{"LT", "LV", "EE"}
)

// GenerateMockIdentity produces a plausible, clearly synthetic identity for
// demo integrations. SerialNumber has the PNO{cc}-{s}{yy}{mm}{dd}{nnnn} shape.
func GenerateMockIdentity(rng *rand.Rand) VerifiedIdentity {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	country := mockCountries[rng.IntN(len(mockCountries))]
	serial := fmt.Sprintf("PNO%s-%d%02d%02d%02d%04d",
		country,
		1+rng.IntN(6),
		1+rng.IntN(99),
		1+rng.IntN(12),
		1+rng.IntN(30),
		1000+rng.IntN(9000),
	)
	return VerifiedIdentity{
		GivenName:    mockGivenNames[rng.IntN(len(mockGivenNames))],
		Surname:      mockSurnames[rng.IntN(len(mockSurnames))],
		CountryCode:  country,
		SerialNumber: serial,
	}
}
