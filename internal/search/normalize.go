package search

import "strings"

// NormalizePhone folds a phone number to its digits so "+38 (050) 111-22-33"
// and "0501112233" compare on the same footing. Input with fewer than five
// digits comes back empty, which keeps stray digits (dates, house numbers)
// out of the token set.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) < 5 {
		return ""
	}
	return d
}

// PhoneVariants returns the digit string plus its common suffixes (last 10,
// 9 and 7 digits). Numbers written with and without a country prefix share a
// suffix, so indexing every variant lets either form of the query match.
func PhoneVariants(s string) []string {
	d := NormalizePhone(s)
	if d == "" {
		return nil
	}
	out := []string{d}
	for _, n := range []int{10, 9, 7} {
		if len(d) > n {
			out = append(out, d[len(d)-n:])
		}
	}
	return out
}
