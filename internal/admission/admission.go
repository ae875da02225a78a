// Package admission implements the Admission Pipeline (spec.md §4.9, C9):
// the exact ordered composition of source-map short-circuit, device-id
// check, token check, Token Lifecycle validation, Scope Policy, Session
// Tracker, and Rate Limiter for every proxied request. It does not forward;
// the HTTP layer hands an admitted request to the Proxy Forwarder.
package admission

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zncgate/proxy/internal/apierror"
	"github.com/zncgate/proxy/internal/ratelimit"
	"github.com/zncgate/proxy/internal/scope"
	"github.com/zncgate/proxy/internal/session"
	"github.com/zncgate/proxy/internal/tokens"
)

// Pipeline composes the admission stages for proxied requests.
type Pipeline struct {
	tokens    *tokens.Lifecycle
	scope     *scope.Policy
	sessions  *session.Tracker
	ratelimit *ratelimit.Limiter
	log       zerolog.Logger
}

func New(t *tokens.Lifecycle, sc *scope.Policy, s *session.Tracker, rl *ratelimit.Limiter, log zerolog.Logger) *Pipeline {
	return &Pipeline{tokens: t, scope: sc, sessions: s, ratelimit: rl, log: log.With().Str("component", "admission").Logger()}
}

// Admitted carries everything downstream stages (the forwarder, the HTTP
// layer) need once a request clears the pipeline.
type Admitted struct {
	UserID  string
	TokenID string
}

// Admit runs the full pipeline for a proxied HTTP request. path is the
// upstream-relative path already stripped of the /proxy/ prefix.
func (p *Pipeline) Admit(r *http.Request, path, tokenSecret, deviceID string) (*Admitted, error) {
	if strings.HasSuffix(path, ".map") {
		// Source maps short-circuit (spec.md §4.9): browsers do not send
		// the custom auth header for them, so there is nothing to admit.
		return nil, apierror.New(apierror.KindNotFound, "not found")
	}

	if len(deviceID) < 8 || len(deviceID) > 255 {
		return nil, apierror.New(apierror.KindForbidden, "missing or invalid device id")
	}
	if tokenSecret == "" {
		return nil, apierror.New(apierror.KindUnauthorized, "missing access token")
	}

	claims, err := p.tokens.Validate(r.Context(), tokenSecret)
	if err != nil {
		return nil, err
	}

	if !p.scope.Authorize(path, claims.Scope) {
		return nil, apierror.Newf(apierror.KindForbidden, "scope %q does not allow access to %q", claims.Scope, path)
	}

	clientIP := clientIP(r)
	bytesIn := r.ContentLength
	if bytesIn < 0 {
		bytesIn = 0
	}
	if _, err := p.sessions.Track(r.Context(), claims.UserID, claims.TokenID, deviceID, clientIP, r.UserAgent(), bytesIn); err != nil {
		if apierror.Is(err, apierror.KindDeviceConflict) {
			return nil, err
		}
		// Other session errors are logged but non-fatal (spec.md §4.9 step 5).
		p.log.Error().Err(err).Str("token_id", claims.TokenID).Msg("session tracking failed, proceeding")
	}

	if err := p.ratelimit.Allow(r.Context(), ratelimit.ClassProxy, claims.TokenID, false); err != nil {
		return nil, err
	}

	return &Admitted{UserID: claims.UserID, TokenID: claims.TokenID}, nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}
