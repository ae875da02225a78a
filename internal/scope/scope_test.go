package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zncgate/proxy/internal/store"
)

// Paths below are shaped as handleProxy hands them to Authorize, with the
// "/proxy" prefix already stripped, not as "/api/v1/...". They keep one
// leading slash, which normalize removes before matching.

func TestAuthorize_Full(t *testing.T) {
	p := New()
	assert.True(t, p.Authorize("/anything/at/all", store.ScopeFull))
}

func TestAuthorize_CertificatesOnly(t *testing.T) {
	p := New()
	allowed := []string{
		"/certificates/filter",
		"/certificates/filter/123",
		"/certificates/details/abc",
		"/configurations/certificatesColumnOrder",
		"/configurations/certificatesColumnVisibility",
	}
	for _, path := range allowed {
		t.Run(path, func(t *testing.T) {
			assert.True(t, p.Authorize(path, store.ScopeCertificatesOnly))
		})
	}

	denied := []string{
		"/users/currentUser",
		"/admin/settings",
		"/certificates", // no trailing action, not in the allow-list
	}
	for _, path := range denied {
		t.Run(path, func(t *testing.T) {
			assert.False(t, p.Authorize(path, store.ScopeCertificatesOnly))
		})
	}
}

func TestAuthorize_UnknownScopeDeniesAll(t *testing.T) {
	p := New()
	assert.False(t, p.Authorize("/certificates/filter", store.Scope("bogus")))
}
