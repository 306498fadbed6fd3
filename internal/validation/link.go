package validation

import (
	"errors"
	"net/url"
	"strings"
)

// DefaultLinkPrefixes lists the pedigree database URLs accepted as reference links.
var DefaultLinkPrefixes = []string{
	"https://canecorsopedigree.com/",
	"http://canecorsopedigree.com/",
	"https://www.canecorsopedigree.com/",
	"http://www.canecorsopedigree.com/",
}

// ErrLinkFormat is returned for text that is not an accepted reference link.
var ErrLinkFormat = errors.New("link must point to the pedigree database")

// LinkValidator checks reference links against a set of allowed prefixes.
type LinkValidator struct {
	prefixes []string
}

// NewLinkValidator builds a validator; an empty prefix list falls back to DefaultLinkPrefixes.
func NewLinkValidator(prefixes ...string) LinkValidator {
	if len(prefixes) == 0 {
		prefixes = DefaultLinkPrefixes
	}
	normalized := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	return LinkValidator{prefixes: normalized}
}

// Prefixes returns the normalized allowed prefixes.
func (v LinkValidator) Prefixes() []string {
	return append([]string(nil), v.prefixes...)
}

// Check returns ErrLinkFormat unless s is a single token URL that starts with an
// allowed prefix and has a path beyond it.
func (v LinkValidator) Check(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return ErrLinkFormat
	}
	lower := strings.ToLower(s)
	matched := false
	for _, p := range v.prefixes {
		if strings.HasPrefix(lower, p) && len(lower) > len(p) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrLinkFormat
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ErrLinkFormat
	}
	return nil
}

// Valid reports whether s passes Check.
func (v LinkValidator) Valid(s string) bool {
	return v.Check(s) == nil
}
