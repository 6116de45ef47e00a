package orchestrator

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Naming produces artifact filenames of the form
// <Brand>_report_<client-slug>_<YYYY-MM-DD>.<ext>.
type Naming struct {
	Brand  string
	Client string
	Now    func() time.Time
}

// Filename returns the artifact name for ext.
func (n Naming) Filename(ext string) string {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	brand := compact(n.Brand)
	if brand == "" {
		brand = "Deck"
	}
	client := Slug(n.Client)
	if client == "" {
		client = "client"
	}
	return brand + "_report_" + client + "_" + now().Format("2006-01-02") + "." + ext
}

// Slug folds s to lowercase ASCII words joined by '-'. Accents are
// stripped: "Café Ñandú" -> "cafe-nandu".
func Slug(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
		default:
			dash = true
		}
	}
	return b.String()
}

func compact(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, folded)
}
