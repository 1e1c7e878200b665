package block

import (
	"strings"

	"github.com/smukkama/tsa/internal/evalerr"
)

// MaxIdentifierLength is the longest identifier accepted for sites, aliases,
// stations and sensors
const MaxIdentifierLength = 40

var umlauts = strings.NewReplacer("ä", "a", "Ä", "a", "ö", "o", "Ö", "o", "å", "a", "Å", "a")

// NormalizeIdentifier trims and lower-cases s, folds umlauts and replaces
// inner spaces with underscores. The result must start with a letter or
// underscore and contain only [a-z0-9_].
func NormalizeIdentifier(s string) (string, error) {
	orig := strings.TrimSpace(s)
	x := umlauts.Replace(strings.ToLower(orig))
	x = strings.ReplaceAll(x, " ", "_")

	if x == "" {
		return "", evalerr.New(evalerr.KindInput, "empty identifier")
	}
	if x[0] >= '0' && x[0] <= '9' {
		return "", evalerr.New(evalerr.KindInput, "identifier %q starts with a digit", orig)
	}
	if len(x) > MaxIdentifierLength {
		return "", evalerr.New(evalerr.KindInput, "identifier %q is longer than %d characters", orig, MaxIdentifierLength)
	}
	for i := 0; i < len(x); i++ {
		c := x[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return "", evalerr.New(evalerr.KindInput, "identifier %q contains an invalid character at position %d", orig, i)
	}
	return x, nil
}
