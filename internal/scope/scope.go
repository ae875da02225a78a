// Package scope implements the Scope Policy (spec.md §4.6, C6): a static
// path-pattern table per AccessToken scope. Grounded on original_source's
// path-matching for the certificates_only scope; no OPA or other policy
// engine is used because the table is explicitly static (a code change
// extends it, per spec.md §4.6) — see DESIGN.md.
package scope

import (
	"regexp"
	"strings"

	"github.com/zncgate/proxy/internal/store"
)

// certificatesOnlyPatterns is the fixed, ordered allow-list for the
// certificates_only scope: certificate filter/details/export/import/
// update/integrity endpoints, plus the two UI column-layout config
// endpoints spec.md §4.6 calls out. Anchored against the path as the
// admission pipeline actually presents it to Authorize: the proxy handler
// strips the "/proxy/" prefix before calling in, so paths arrive as
// "certificates/filter", not "api/v1/certificates/filter" — matching
// original_source's permissions.py, which anchors the same way.
var certificatesOnlyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^certificates/filter(/.*)?$`),
	regexp.MustCompile(`^certificates/details(/.*)?$`),
	regexp.MustCompile(`^certificates/export(/.*)?$`),
	regexp.MustCompile(`^certificates/import(/.*)?$`),
	regexp.MustCompile(`^certificates/update(/.*)?$`),
	regexp.MustCompile(`^certificates/integrity(/.*)?$`),
	regexp.MustCompile(`^configurations/certificatesColumnOrder$`),
	regexp.MustCompile(`^configurations/certificatesColumnVisibility$`),
}

// Policy is the Scope Policy component (C6). It holds no state beyond the
// static pattern table, so a zero-value Policy is usable.
type Policy struct{}

func New() *Policy { return &Policy{} }

// Authorize reports whether scope permits access to path.
func (p *Policy) Authorize(path string, s store.Scope) bool {
	normalized := normalize(path)
	switch s {
	case store.ScopeFull:
		return true
	case store.ScopeCertificatesOnly:
		for _, re := range certificatesOnlyPatterns {
			if re.MatchString(normalized) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// normalize strips exactly one leading slash, per spec.md §4.6.
func normalize(path string) string {
	return strings.TrimPrefix(path, "/")
}
