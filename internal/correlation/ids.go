package correlation

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

// IDGenerator returns a fresh session id. Ids are the only secret guarding a
// session, so generators draw from crypto/rand.
type IDGenerator func() (string, error)

const (
	numericMin   = 1000000
	numericSpan  = 9000000
	base36Length = 8
	base36Chars  = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NumericID returns a 7-digit id in [1000000, 9999999].
func NumericID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(numericSpan))
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return strconv.FormatInt(numericMin+n.Int64(), 10), nil
}

// Base36ID returns an 8 character lowercase base36 id.
func Base36ID() (string, error) {
	out := make([]byte, base36Length)
	max := big.NewInt(int64(len(base36Chars)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate challenge id: %w", err)
		}
		out[i] = base36Chars[n.Int64()]
	}
	return string(out), nil
}
