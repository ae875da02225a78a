package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zncgate/proxy/internal/apierror"
	"github.com/zncgate/proxy/internal/money"
	"github.com/zncgate/proxy/internal/payment"
	"github.com/zncgate/proxy/internal/store"
)

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledger.GetBalance(r.Context(), userIDFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance.String()})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q, "limit", 50)
	offset := queryInt(q, "offset", 0)

	var kind *store.TransactionKind
	if raw := q.Get("type"); raw != "" {
		k := store.TransactionKind(raw)
		kind = &k
	}

	txs, total, err := s.ledger.ListTransactions(r.Context(), userIDFrom(r), kind, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(txs))
	for _, t := range txs {
		out = append(out, map[string]interface{}{
			"id":          t.ID,
			"amount":      t.Amount.String(),
			"kind":        t.Kind,
			"description": t.Description,
			"created_at":  t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": out,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

type createDepositRequest struct {
	Amount string `json:"amount"`
}

// handleCreateDeposit opens a pending mock payment intent and returns the
// callback URL a client can hit to simulate the provider's webhook.
func (s *Server) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req createDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.New(apierror.KindInvalidInput, "malformed request body"))
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, apierror.New(apierror.KindInvalidInput, "invalid deposit amount"))
		return
	}

	intent, err := s.payments.CreatePending(r.Context(), userIDFrom(r), amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"intent_id":    intent.ID,
		"amount":       intent.Amount.String(),
		"status":       intent.Status,
		"callback_url": intent.CallbackURL,
	})
}

type paymentWebhookRequest struct {
	Outcome string `json:"outcome"`
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req paymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.New(apierror.KindInvalidInput, "malformed request body"))
		return
	}

	var outcome payment.Status
	switch req.Outcome {
	case string(payment.StatusSucceeded):
		outcome = payment.StatusSucceeded
	case string(payment.StatusCanceled):
		outcome = payment.StatusCanceled
	default:
		writeError(w, apierror.New(apierror.KindInvalidInput, "outcome must be succeeded or canceled"))
		return
	}

	intent, err := s.payments.ObserveWebhook(r.Context(), payment.WebhookPayload{ExternalID: id, Outcome: outcome})
	if err != nil {
		writeError(w, apierror.New(apierror.KindInvalidInput, err.Error()))
		return
	}

	s.audit.Track(auditEntry(r, intent.UserID, "payment.webhook", "payment_intent", intent.ID, map[string]interface{}{
		"outcome": intent.Status,
		"amount":  intent.Amount.String(),
	}))

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": intent.Status})
}

func queryInt(q map[string][]string, key string, fallback int) int {
	vv, ok := q[key]
	if !ok || len(vv) == 0 {
		return fallback
	}
	n, err := strconv.Atoi(vv[0])
	if err != nil {
		return fallback
	}
	return n
}
