package password

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Policy constrains generated passwords for one resource.
type Policy struct {
	Length        int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy is used when a resource declares none.
var DefaultPolicy = Policy{Length: 16, RequireUpper: true, RequireLower: true, RequireDigit: true}

const (
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	digitChars  = "23456789"
	symbolChars = "!#%+:=?@"
)

// Generate produces a random password satisfying the policy, using
// crypto/rand throughout. Each required class contributes at least one
// character; the rest is drawn from the union of allowed classes.
func (p Policy) Generate() (string, error) {
	length := p.Length
	if length <= 0 {
		length = DefaultPolicy.Length
	}

	var pool strings.Builder
	var out []byte
	appendRequired := func(required bool, chars string) error {
		pool.WriteString(chars)
		if !required {
			return nil
		}
		c, err := pick(chars)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	}

	if err := appendRequired(p.RequireUpper, upperChars); err != nil {
		return "", err
	}
	if err := appendRequired(p.RequireLower, lowerChars); err != nil {
		return "", err
	}
	if err := appendRequired(p.RequireDigit, digitChars); err != nil {
		return "", err
	}
	if err := appendRequired(p.RequireSymbol, symbolChars); err != nil {
		return "", err
	}

	if len(out) > length {
		return "", fmt.Errorf("password policy unsatisfiable: %d required classes exceed length %d", len(out), length)
	}
	for len(out) < length {
		c, err := pick(pool.String())
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Shuffle so required-class characters don't cluster at the front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(chars string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
	if err != nil {
		return 0, fmt.Errorf("random source: %w", err)
	}
	return chars[n.Int64()], nil
}
