package content

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify converts text into a lower-case ASCII token of [a-z0-9] runs joined
// by single hyphens. Non-ASCII letters in any script are transliterated to
// their closest ASCII spelling. Empty input yields an empty token.
func Slugify(text string) string {
	ascii := transliterate(text)

	var b strings.Builder
	b.Grow(len(ascii))
	pendingHyphen := false
	for i := 0; i < len(ascii); i++ {
		c := ascii[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteByte(c)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// transliterate decomposes text, strips combining marks, and spells the
// remaining non-ASCII runes in ASCII. Runes without a spelling become
// separators.
func transliterate(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	decomposed, _, err := transform.String(t, text)
	if err != nil {
		decomposed = text
	}

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r < unicode.MaxASCII {
			b.WriteRune(r)
			continue
		}
		if ascii := unidecode.Unidecode(string(r)); ascii != "" {
			b.WriteString(ascii)
			continue
		}
		b.WriteByte(' ')
	}
	return b.String()
}
