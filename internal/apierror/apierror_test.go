package apierror

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndError(t *testing.T) {
	err := New(KindNotFound, "token not found")
	assert.Equal(t, "not_found: token not found", err.Error())
}

func TestWithExtraChaining(t *testing.T) {
	err := New(KindRateLimitExceeded, "too many requests").
		WithExtra("limit", 100).
		WithExtra("retry_after", 30)
	assert.Equal(t, 100, err.Extra["limit"])
	assert.Equal(t, 30, err.Extra["retry_after"])
}

func TestIs(t *testing.T) {
	err := New(KindDeviceConflict, "conflict")
	assert.True(t, Is(err, KindDeviceConflict))
	assert.False(t, Is(err, KindNotFound))
	assert.False(t, Is(nil, KindNotFound))
}

func TestNewf(t *testing.T) {
	err := Newf(KindForbidden, "scope %q does not allow %q", "full", "/x")
	assert.Equal(t, `scope "full" does not allow "/x"`, err.Message)
}
