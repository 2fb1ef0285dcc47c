package domain

import (
	"strings"
	"unicode"
)

const previewIDPrefix = "preview-"

// DeriveProductID builds an identifier from the display name and price.
//
// NOT AUTHORITATIVE: two products sharing a name and price collide. Use it
// only for statically authored preview content that has no backend id.
func DeriveProductID(name, price string) string {
	var b strings.Builder
	b.WriteString(previewIDPrefix)

	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}

	b.WriteByte('-')
	for _, r := range price {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
