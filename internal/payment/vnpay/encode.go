package vnpay

import (
	"sort"
	"strings"
)

// encode matches the browser encodeURIComponent with spaces as '+', which
// is what VNPay hashes on its side. url.QueryEscape differs on ! ' ( ) * ~.
func encode(s string) string {
	const hexdigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte("-_.!~*'()", c) >= 0:
			b.WriteByte(c)
		case c == ' ':
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(hexdigits[c>>4])
			b.WriteByte(hexdigits[c&0x0F])
		}
	}
	return b.String()
}

// canonical sorts by encoded key and joins k=v pairs with '&'. Empty values
// are skipped, as VNPay does.
func canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	enc := make(map[string]string, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		ek := encode(k)
		keys = append(keys, ek)
		enc[ek] = encode(v)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(enc[k])
	}
	return b.String()
}
