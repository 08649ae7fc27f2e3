package membership

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"numrelay-go/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oracleAgainst(t *testing.T, handler http.HandlerFunc) *TelegramOracle {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTelegramOracle(srv.URL, "test-token", 1000, 2*time.Second)
}

func botReply(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true,"result":{"status":"` + status + `"}}`))
}

func botError(w http.ResponseWriter, httpStatus int, code int, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	w.Write([]byte(`{"ok":false,"error_code":` + strconv.Itoa(code) + `,"description":"` + desc + `"}`))
}

func TestOracleMemberStatuses(t *testing.T) {
	for _, status := range []string{"member", "administrator", "creator", "restricted"} {
		o := oracleAgainst(t, func(w http.ResponseWriter, r *http.Request) { botReply(w, status) })
		res, err := o.CheckMembership(context.Background(), 42, "@a")
		require.NoError(t, err, status)
		assert.Equal(t, ResultMember, res, status)
	}
}

func TestOracleNonMemberStatuses(t *testing.T) {
	for _, status := range []string{"left", "kicked"} {
		o := oracleAgainst(t, func(w http.ResponseWriter, r *http.Request) { botReply(w, status) })
		res, err := o.CheckMembership(context.Background(), 42, "@a")
		require.NoError(t, err, status)
		assert.Equal(t, ResultNonMember, res, status)
	}
}

func TestOracleNotFound(t *testing.T) {
	for _, desc := range []string{"Bad Request: user not found", "Bad Request: chat not found"} {
		o := oracleAgainst(t, func(w http.ResponseWriter, r *http.Request) {
			botError(w, http.StatusBadRequest, 400, desc)
		})
		res, err := o.CheckMembership(context.Background(), 42, "@a")
		require.NoError(t, err, desc)
		assert.Equal(t, ResultNotFound, res, desc)
	}
}

func TestOracleMemberListInaccessibleIsUnreachable(t *testing.T) {
	o := oracleAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		botError(w, http.StatusBadRequest, 400, "Bad Request: member list is inaccessible")
	})
	res, err := o.CheckMembership(context.Background(), 42, "@a")
	require.Error(t, err)
	assert.Equal(t, ResultUnreachable, res)
	assert.True(t, apperrors.IsKind(err, apperrors.KindMembershipUnreachable))
}

func TestOracleRateLimitFlagged(t *testing.T) {
	o := oracleAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		botError(w, http.StatusTooManyRequests, 429, "Too Many Requests: retry after 3")
	})
	res, err := o.CheckMembership(context.Background(), 42, "@a")
	require.Error(t, err)
	assert.Equal(t, ResultUnreachable, res)
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestOracleTransportFailureIsUnreachable(t *testing.T) {
	o := NewTelegramOracle("http://127.0.0.1:1", "tok", 1000, 200*time.Millisecond)
	res, err := o.CheckMembership(context.Background(), 42, "@a")
	require.Error(t, err)
	assert.Equal(t, ResultUnreachable, res)
}

func TestOracleIndecisiveStatusIsUnreachable(t *testing.T) {
	o := oracleAgainst(t, func(w http.ResponseWriter, r *http.Request) { botReply(w, "mystery") })
	res, err := o.CheckMembership(context.Background(), 42, "@a")
	require.Error(t, err)
	assert.Equal(t, ResultUnreachable, res)
}
