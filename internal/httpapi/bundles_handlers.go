package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handlePurchaseBundle(w http.ResponseWriter, r *http.Request) {
	bundleID := chi.URLParam(r, "id")
	userID := userIDFrom(r)

	result, err := s.bundles.Purchase(r.Context(), bundleID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	s.audit.Track(auditEntry(r, userID, "bundle.purchase", "token_bundle", bundleID, map[string]interface{}{
		"tokens_generated": result.TokensGenerated,
		"cost":             result.Cost.String(),
	}))

	tokenIDs := make([]string, 0, len(result.Tokens))
	for _, t := range result.Tokens {
		tokenIDs = append(tokenIDs, t.ID)
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"bundle_name":      result.BundleName,
		"tokens_generated": result.TokensGenerated,
		"cost":             result.Cost.String(),
		"new_balance":      result.NewBalance.String(),
		"token_ids":        tokenIDs,
	})
}
