package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var (
	secret  = []byte(strings.Repeat("k", 32))
	account = common.HexToAddress("0xa11ce")
	now     = time.Unix(1_700_000_000, 0)
)

func newVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(Options{Secret: secret, Issuer: "creditd", Audience: []string{"credit-api"}, Now: func() time.Time { return now }})
	require.NoError(t, err)
	return v
}

func TestIssueAndVerify(t *testing.T) {
	v := newVerifier(t)
	token, err := v.Issue(account, RoleKeeper, []string{"credit-api"}, time.Hour, now)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, account, claims.Account)
	require.Equal(t, RoleKeeper, claims.Role)
}

func TestVerifyRejects(t *testing.T) {
	v := newVerifier(t)

	expired, err := v.Issue(account, RoleTrader, []string{"credit-api"}, -time.Minute, now)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongAud, err := v.Issue(account, RoleTrader, []string{"other"}, time.Hour, now)
	require.NoError(t, err)
	_, err = v.Verify(wrongAud)
	require.ErrorIs(t, err, ErrInvalidToken)

	badSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice", "iss": "creditd", "aud": []string{"credit-api"}, "exp": now.Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)
	_, err = v.Verify(badSub)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewVerifier(Options{Secret: []byte("short"), Issuer: "creditd"})
	require.Error(t, err)
}

func TestMiddlewareAndRoles(t *testing.T) {
	v := newVerifier(t)
	handler := v.Middleware(RequireRole(RoleKeeper)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := FromContext(r.Context())
		require.NoError(t, err)
		_, _ = w.Write([]byte(claims.Account.Hex()))
	})))

	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusUnauthorized, call("").Code)

	trader, err := v.Issue(account, RoleTrader, []string{"credit-api"}, time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, call(trader).Code)

	admin, err := v.Issue(account, RoleAdmin, []string{"credit-api"}, time.Hour, now)
	require.NoError(t, err)
	rec := call(admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, account.Hex(), rec.Body.String())
}
