package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zncgate/proxy/internal/apierror"
	"github.com/zncgate/proxy/internal/store"
)

type purchaseTokenRequest struct {
	DurationHours int         `json:"duration_hours"`
	Scope         store.Scope `json:"scope"`
}

func (s *Server) handlePurchaseToken(w http.ResponseWriter, r *http.Request) {
	var req purchaseTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.New(apierror.KindInvalidInput, "malformed request body"))
		return
	}
	if req.Scope == "" {
		req.Scope = store.ScopeFull
	}

	userID := userIDFrom(r)
	token, price, err := s.tokens.Generate(r.Context(), userID, req.DurationHours, req.Scope)
	if err != nil {
		writeError(w, err)
		return
	}

	s.audit.Track(auditEntry(r, userID, "token.purchase", "access_token", token.ID, map[string]interface{}{
		"duration_hours": req.DurationHours,
		"scope":          req.Scope,
		"price":          price.String(),
	}))

	writeJSON(w, http.StatusCreated, tokenResponse(token))
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	toks, err := s.tokens.List(r.Context(), userIDFrom(r), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(toks))
	for i := range toks {
		out = append(out, tokenResponse(&toks[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": out})
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := userIDFrom(r)
	refund, newBalance, err := s.tokens.Revoke(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.audit.Track(auditEntry(r, userID, "token.revoke", "access_token", id, map[string]interface{}{
		"refund": refund.String(),
	}))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"refund_amount": refund.String(),
		"new_balance":   newBalance.String(),
	})
}

func tokenResponse(t *store.AccessToken) map[string]interface{} {
	resp := map[string]interface{}{
		"id":             t.ID,
		"token":          t.Secret,
		"duration_hours": t.DurationHours,
		"scope":          t.Scope,
		"created_at":     t.CreatedAt,
		"active":         t.Active,
		"activated":      t.ActivatedAt != nil,
	}
	if t.ActivatedAt != nil {
		resp["activated_at"] = *t.ActivatedAt
	}
	if exp := t.Expiry(); exp != nil {
		resp["expires_at"] = *exp
	}
	return resp
}
