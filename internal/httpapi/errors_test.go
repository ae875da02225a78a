package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zncgate/proxy/internal/apierror"
)

func TestStatusFor(t *testing.T) {
	cases := map[apierror.Kind]int{
		apierror.KindInvalidInput:          http.StatusBadRequest,
		apierror.KindCannotRevokeActivated: http.StatusBadRequest,
		apierror.KindUnauthorized:          http.StatusUnauthorized,
		apierror.KindForbidden:             http.StatusForbidden,
		apierror.KindInsufficientBalance:   http.StatusPaymentRequired,
		apierror.KindNotFound:              http.StatusNotFound,
		apierror.KindDeviceConflict:        http.StatusConflict,
		apierror.KindRateLimitExceeded:     http.StatusTooManyRequests,
		apierror.KindUpstreamTimeout:       http.StatusGatewayTimeout,
		apierror.KindUpstreamTransport:     http.StatusBadGateway,
		apierror.KindInternal:              http.StatusInternalServerError,
	}
	for kind, want := range cases {
		t.Run(string(kind), func(t *testing.T) {
			assert.Equal(t, want, statusFor(kind))
		})
	}
}
