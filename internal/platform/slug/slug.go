package slug

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	MaxLength    = 80
	SuffixLength = 6
	alphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
	fallback     = "item"
)

var multiDash = regexp.MustCompile(`-+`)

// Make lowercases, strips diacritics and joins words with single dashes.
// An input with no usable characters yields "item".
func Make(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := strings.Trim(multiDash.ReplaceAllString(b.String(), "-"), "-")
	s = truncate(s, MaxLength)
	if s == "" {
		return fallback
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndex(cut, "-"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSuffix(cut, "-")
}

// WithSuffix appends a random suffix, trimming base so the result stays within MaxLength.
func WithSuffix(base string) string {
	return truncate(base, MaxLength-SuffixLength-1) + "-" + RandomSuffix(SuffixLength)
}

// RandomSuffix returns n characters from [a-z0-9].
func RandomSuffix(n int) string {
	out := make([]byte, n)
	mod := big.NewInt(int64(len(alphabet)))
	for i := range out {
		v, err := rand.Int(rand.Reader, mod)
		if err != nil {
			out[i] = alphabet[i%len(alphabet)]
			continue
		}
		out[i] = alphabet[v.Int64()]
	}
	return string(out)
}
