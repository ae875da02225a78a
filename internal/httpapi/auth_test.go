package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func makeJWT(t *testing.T, secret string, claims jwtClaims) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payloadBytes, err := json.Marshal(claims)
	require.NoError(t, err)
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signed := header + "." + payload
	sig := base64.RawURLEncoding.EncodeToString(signHS256(secret, signed))
	return signed + "." + sig
}

func futureExp() int64 { return time.Now().Add(time.Hour).Unix() }

func TestVerifyJWT_Valid(t *testing.T) {
	token := makeJWT(t, testSecret, jwtClaims{Sub: "user-1", Elevated: true, Exp: futureExp()})
	claims, err := verifyJWT(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Sub)
	assert.True(t, claims.Elevated)
}

func TestVerifyJWT_WrongSecret(t *testing.T) {
	token := makeJWT(t, testSecret, jwtClaims{Sub: "user-1", Exp: futureExp()})
	_, err := verifyJWT("a-different-secret", token)
	assert.Error(t, err)
}

func TestVerifyJWT_MissingSubject(t *testing.T) {
	token := makeJWT(t, testSecret, jwtClaims{Exp: futureExp()})
	_, err := verifyJWT(testSecret, token)
	assert.Error(t, err)
}

func TestVerifyJWT_Malformed(t *testing.T) {
	_, err := verifyJWT(testSecret, "not-a-jwt")
	assert.Error(t, err)
}

func TestVerifyJWT_Expired(t *testing.T) {
	token := makeJWT(t, testSecret, jwtClaims{Sub: "user-1", Exp: time.Now().Add(-time.Minute).Unix()})
	_, err := verifyJWT(testSecret, token)
	assert.Error(t, err)
}

func TestVerifyJWT_MissingExp(t *testing.T) {
	token := makeJWT(t, testSecret, jwtClaims{Sub: "user-1"})
	_, err := verifyJWT(testSecret, token)
	assert.Error(t, err)
}
