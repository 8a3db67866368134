package util

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	publicIDPrefix = "U"
	publicIDDigits = 9
)

// GeneratePublicID returns a stable user-facing identifier such as
// "U042917365".
func GeneratePublicID() (string, error) {
	var builder strings.Builder
	builder.Grow(len(publicIDPrefix) + publicIDDigits)
	builder.WriteString(publicIDPrefix)
	for i := 0; i < publicIDDigits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		builder.WriteByte(byte('0' + n.Int64()))
	}
	return builder.String(), nil
}
