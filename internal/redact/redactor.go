// Package redact scrubs personally identifying fragments from archived
// payloads. Redaction runs against the cold tier's display payloads
// only; the hash chain commits to pre-redaction content, so redacting
// never invalidates chain verification.
package redact

import (
	"regexp"
	"strings"
)

// Placeholder replaces every redacted fragment.
const Placeholder = "[REDACTED]"

// Built-in PII patterns. Ordered longest-match-first so that e.g. an
// email inside a longer fragment is consumed whole.
var builtinPatterns = []*regexp.Regexp{
	// Email addresses
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	// US-style SSNs
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	// Phone numbers (international and US formats)
	regexp.MustCompile(`\+?\d{1,3}[\s.\-]?\(?\d{2,4}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}\b`),
	// Street addresses of the form "123 Some Street"
	regexp.MustCompile(`\b\d{1,5}\s+[A-Z][A-Za-z]*\s+(?:Street|St\.?|Avenue|Ave\.?|Road|Rd\.?|Boulevard|Blvd\.?|Lane|Ln\.?|Drive|Dr\.?)\b`),
}

// Redactor replaces PII fragments with Placeholder. Construct one with
// NewRedactor; it is safe for concurrent use.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor returns a Redactor with the built-in PII patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: builtinPatterns}
}

// Redact scrubs PII from s. Beyond the built-in patterns, any of the
// supplied literal identifiers (e.g. the owner's known name) are also
// replaced. Returns the scrubbed string and whether anything changed.
func (r *Redactor) Redact(s string, identifiers ...string) (string, bool) {
	out := s

	for _, ident := range identifiers {
		if ident == "" {
			continue
		}
		out = replaceFold(out, ident)
	}

	for _, pat := range r.patterns {
		out = pat.ReplaceAllString(out, Placeholder)
	}

	return out, out != s
}

// ContainsPII reports whether s matches any built-in pattern or literal
// identifier, without modifying it.
func (r *Redactor) ContainsPII(s string, identifiers ...string) bool {
	for _, ident := range identifiers {
		if ident != "" && containsFold(s, ident) {
			return true
		}
	}
	for _, pat := range r.patterns {
		if pat.MatchString(s) {
			return true
		}
	}
	return false
}

// replaceFold replaces every case-insensitive occurrence of ident in s
// with Placeholder.
func replaceFold(s, ident string) string {
	lower := strings.ToLower(s)
	target := strings.ToLower(ident)

	var b strings.Builder
	for {
		i := strings.Index(lower, target)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(Placeholder)
		s = s[i+len(ident):]
		lower = lower[i+len(target):]
	}
}

func containsFold(s, ident string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(ident))
}
