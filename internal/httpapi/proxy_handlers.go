package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/zncgate/proxy/internal/apierror"
)

// handleProxyStatus is the non-activating read-only status check
// (spec.md §4.2/§6): it reports whether a token is usable without
// consuming its first activation.
func (s *Server) handleProxyStatus(w http.ResponseWriter, r *http.Request) {
	tokenSecret := r.Header.Get(s.cfg.AccessTokenHeader)
	if tokenSecret == "" {
		writeError(w, apierror.New(apierror.KindUnauthorized, "missing access token"))
		return
	}

	claims, err := s.tokens.CheckStatus(r.Context(), tokenSecret)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"activated": claims.IsActivated,
		"scope":     claims.Scope,
	}
	if claims.Expiry != nil {
		resp["expires_at"] = *claims.Expiry
		remaining := time.Until(*claims.Expiry)
		if remaining < 0 {
			remaining = 0
		}
		resp["time_remaining_seconds"] = int64(remaining.Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProxy admits and forwards every request under /proxy/, branching to
// the WebSocket path when the client requests an upgrade.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/proxy/")
	tokenSecret := proxyTokenSecret(r, s.cfg.AccessTokenHeader)
	deviceID := r.Header.Get(s.cfg.DeviceIDHeader)

	admitted, err := s.admission.Admit(r, path, tokenSecret, deviceID)
	if err != nil {
		writeError(w, err)
		return
	}

	if isWebSocketUpgrade(r) {
		if err := s.forwarder.ForwardWebSocket(w, r, s.upgrader, path, admitted.UserID, admitted.TokenID); err != nil {
			s.log.Error().Err(err).Str("path", path).Msg("websocket forward failed")
		}
		return
	}

	s.forwarder.ForwardHTTP(w, r, path, admitted.UserID, admitted.TokenID)
}

// proxyTokenSecret reads the access token from its normal header, falling
// back to a query parameter for WebSocket clients that cannot set custom
// handshake headers from a browser.
func proxyTokenSecret(r *http.Request, headerName string) string {
	if v := r.Header.Get(headerName); v != "" {
		return v
	}
	return r.URL.Query().Get("access_token")
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
