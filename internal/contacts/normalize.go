package contacts

import "strings"

// NormalizeIdentifier canonicalizes a phone number or email address so the
// same person entered twice compares equal. Other kinds are only trimmed.
func NormalizeIdentifier(s string, kind string) string {
	s = strings.TrimSpace(s)
	switch kind {
	case "phone":
		return normalizePhone(s)
	case "email":
		return strings.ToLower(s)
	default:
		return s
	}
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "+" {
		return ""
	}
	return out
}
