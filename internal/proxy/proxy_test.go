package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardHTTP_StripsAccessTokenAndInjectsIdentity(t *testing.T) {
	var gotPath string
	var gotToken, gotUserID, gotTokenID string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Access-Token")
		gotUserID = r.Header.Get("X-User-Id")
		gotTokenID = r.Header.Get("X-Token-Id")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	f, err := New(Config{
		UpstreamBaseURL:   upstream.URL,
		TLSVerify:         true,
		Timeout:           5 * time.Second,
		AccessTokenHeader: "X-Access-Token",
		DeviceIDHeader:    "X-Device-Id",
	}, zerolog.Nop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/proxy/api/v1/certificates/filter", nil)
	req.Header.Set("X-Access-Token", "secret-token-value")
	rec := httptest.NewRecorder()

	f.ForwardHTTP(rec, req, "/api/v1/certificates/filter", "user-1", "token-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/v1/certificates/filter", gotPath)
	assert.Empty(t, gotToken, "client access token must never reach upstream")
	assert.Equal(t, "user-1", gotUserID)
	assert.Equal(t, "token-1", gotTokenID)
	assert.Equal(t, `{"ok":true}`, rec.Body.String())
}

func TestForwardHTTP_UpstreamTimeoutMapsToGatewayTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	f, err := New(Config{
		UpstreamBaseURL:   upstream.URL,
		TLSVerify:         true,
		Timeout:           5 * time.Millisecond,
		AccessTokenHeader: "X-Access-Token",
	}, zerolog.Nop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/proxy/slow", nil)
	rec := httptest.NewRecorder()

	f.ForwardHTTP(rec, req, "/slow", "user-1", "token-1")

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}
