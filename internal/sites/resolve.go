// Package sites holds helpers shared by the site scrapers.
package sites

import (
	"fmt"
	"net/url"
)

// Resolve makes ref absolute against base.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse ref %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
