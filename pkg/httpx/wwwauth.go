package httpx

import (
	"net/http"
	"strings"
)

// ChallengeParam is one attribute of a WWW-Authenticate challenge.
// Parameters keep their declaration order in the rendered header.
type ChallengeParam struct {
	Key   string
	Value string
}

// BearerChallenge renders a `Bearer` WWW-Authenticate header value.
// Keys must match RFC 7235 token syntax or the parameter is dropped;
// values get backslashes and quotes escaped and CR/LF stripped, so a
// hostile value cannot break out of the quoted string or inject
// response header lines.
func BearerChallenge(params ...ChallengeParam) string {
	var b strings.Builder
	b.WriteString("Bearer")

	first := true
	for _, p := range params {
		if !isToken(p.Key) {
			continue
		}
		if first {
			b.WriteString(" ")
			first = false
		} else {
			b.WriteString(", ")
		}
		b.WriteString(p.Key)
		b.WriteString(`="`)
		b.WriteString(sanitizeQuoted(p.Value))
		b.WriteString(`"`)
	}

	return b.String()
}

// WriteBearerChallenge sets the sanitized challenge header and writes
// the status code.
func WriteBearerChallenge(w http.ResponseWriter, code int, params ...ChallengeParam) {
	w.Header().Set("WWW-Authenticate", BearerChallenge(params...))
	w.WriteHeader(code)
}

// isToken reports whether s is a valid RFC 7235 token:
// ^[!#$%&'*+\-.^_`|~0-9A-Za-z]+$
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

func sanitizeQuoted(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\r', '\n':
			// dropped, never rendered
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
