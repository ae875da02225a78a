package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zncgate/proxy/internal/apierror"
)

// writeError is the single boundary that maps a domain error's Kind to an
// HTTP status and an envelope (spec.md §7/§9: the admission pipeline and
// every domain package return *apierror.Error; nothing downstream ever
// writes to the ResponseWriter directly on the error path).
func writeError(w http.ResponseWriter, err error) {
	var ae *apierror.Error
	if !errors.As(err, &ae) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal error"})
		return
	}

	status := statusFor(ae.Kind)

	if ae.Kind == apierror.KindRateLimitExceeded {
		writeJSON(w, status, map[string]interface{}{
			"error":       "rate_limit_exceeded",
			"message":     ae.Message,
			"limit":       ae.Extra["limit"],
			"window":      ae.Extra["window"],
			"retry_after": ae.Extra["retry_after"],
		})
		return
	}

	writeJSON(w, status, map[string]string{"detail": ae.Message})
}

func statusFor(kind apierror.Kind) int {
	switch kind {
	case apierror.KindInvalidInput, apierror.KindCannotRevokeActivated:
		return http.StatusBadRequest
	case apierror.KindUnauthorized:
		return http.StatusUnauthorized
	case apierror.KindForbidden:
		return http.StatusForbidden
	case apierror.KindInsufficientBalance:
		return http.StatusPaymentRequired
	case apierror.KindNotFound:
		return http.StatusNotFound
	case apierror.KindDeviceConflict:
		return http.StatusConflict
	case apierror.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case apierror.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case apierror.KindUpstreamTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
