package httpapi

import (
	"net/http"

	"github.com/zncgate/proxy/internal/auditlog"
)

// auditEntry builds an auditlog.Entry from the current request's actor and
// client metadata, shared by every handler that records an action.
func auditEntry(r *http.Request, actorID, action, targetType, targetID string, details map[string]interface{}) auditlog.Entry {
	ip := clientIP(r)
	ua := r.UserAgent()
	return auditlog.Entry{
		ActorID:    &actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   &targetID,
		Details:    details,
		IP:         &ip,
		UserAgent:  &ua,
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
