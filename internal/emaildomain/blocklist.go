// Package emaildomain provides an immutable lookup table of email domains
// that may not receive confirmation codes (disposable-inbox providers).
// The table is built once at startup and never mutated afterwards.
package emaildomain

import (
	_ "embed"
	"strings"
)

//go:embed blocked_domains.txt
var defaultDomains string

// Blocklist is a read-only set of lowercased domains.
type Blocklist struct {
	domains map[string]struct{}
}

// NewBlocklist builds the table from the embedded defaults plus any extra
// domains from configuration. Entries are lowercased; blanks are skipped.
func NewBlocklist(extra []string) *Blocklist {
	domains := make(map[string]struct{})
	add := func(d string) {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && !strings.HasPrefix(d, "#") {
			domains[d] = struct{}{}
		}
	}
	for _, d := range strings.Split(defaultDomains, "\n") {
		add(d)
	}
	for _, d := range extra {
		add(d)
	}
	return &Blocklist{domains: domains}
}

// Blocked reports whether the address's domain is on the list. Addresses
// without a domain part are not blocked.
func (b *Blocklist) Blocked(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	_, ok := b.domains[domain]
	return ok
}

// Len returns the number of domains on the list.
func (b *Blocklist) Len() int {
	return len(b.domains)
}
