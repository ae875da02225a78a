package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/zncgate/proxy/internal/apierror"
)

// jwtClaims is the minimal claim set this gateway trusts. JWT *issuance*
// for the management API is an out-of-scope external collaborator
// (spec.md §2); this file only verifies a pre-issued HS256 compact JWT
// well enough to extract the principal, using stdlib HMAC — no JWT
// library appears anywhere in the example pack to ground a dependency on
// (see DESIGN.md).
type jwtClaims struct {
	Sub      string `json:"sub"`
	Elevated bool   `json:"elevated"`
	Exp      int64  `json:"exp"`
}

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyElevated
)

// RequireUser verifies the Authorization: Bearer <jwt> header with the
// configured signing secret and stores the principal in the request
// context for downstream handlers.
func RequireUser(signingSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				writeError(w, apierror.New(apierror.KindUnauthorized, "missing bearer token"))
				return
			}
			claims, err := verifyJWT(signingSecret, strings.TrimPrefix(authz, prefix))
			if err != nil {
				writeError(w, apierror.New(apierror.KindUnauthorized, "invalid token"))
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.Sub)
			ctx = context.WithValue(ctx, ctxKeyElevated, claims.Elevated)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userIDFrom(r *http.Request) string {
	v, _ := r.Context().Value(ctxKeyUserID).(string)
	return v
}

func elevatedFrom(r *http.Request) bool {
	v, _ := r.Context().Value(ctxKeyElevated).(bool)
	return v
}

func verifyJWT(secret, token string) (*jwtClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, apierror.New(apierror.KindUnauthorized, "malformed token")
	}

	signed := parts[0] + "." + parts[1]
	expected := signHS256(secret, signed)
	got, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, apierror.New(apierror.KindUnauthorized, "bad signature encoding")
	}
	if subtle.ConstantTimeCompare(expected, got) != 1 {
		return nil, apierror.New(apierror.KindUnauthorized, "bad signature")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, apierror.New(apierror.KindUnauthorized, "bad payload encoding")
	}
	var claims jwtClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, apierror.New(apierror.KindUnauthorized, "bad payload")
	}
	if claims.Sub == "" {
		return nil, apierror.New(apierror.KindUnauthorized, "missing subject")
	}
	if claims.Exp == 0 || time.Now().Unix() >= claims.Exp {
		return nil, apierror.New(apierror.KindUnauthorized, "token expired")
	}
	return &claims, nil
}

func signHS256(secret, data string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
