package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"numrelay-go/internal/account"
	"numrelay-go/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount() *account.Account {
	return account.New("AC00000000000000000000000000000000", "00000000000000000000000000000000")
}

func clientAgainst(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second)
}

func TestFetchAccountStatusActive(t *testing.T) {
	c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC00000000000000000000000000000000", user)
		assert.Equal(t, "00000000000000000000000000000000", pass)
		w.Write([]byte(`{"status":"active"}`))
	})

	status, err := c.FetchAccountStatus(context.Background(), testAccount())
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)
}

func TestFetchAccountStatusSuspendedAndClosed(t *testing.T) {
	for raw, want := range map[string]AccountStatus{
		"suspended": StatusSuspended,
		"closed":    StatusClosed,
	} {
		c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"` + raw + `"}`))
		})
		status, err := c.FetchAccountStatus(context.Background(), testAccount())
		require.NoError(t, err)
		assert.Equal(t, want, status)
	}
}

func TestFetchAccountStatusMissingFieldIsError(t *testing.T) {
	c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sid":"AC123"}`))
	})
	status, err := c.FetchAccountStatus(context.Background(), testAccount())
	require.Error(t, err)
	assert.Equal(t, StatusUnknown, status)
	assert.True(t, apperrors.IsKind(err, apperrors.KindTransient))
}

func TestCredentialRejectionClassified(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			w.Write([]byte(`{"message":"Authentication Error"}`))
		})
		_, err := c.FetchAccountStatus(context.Background(), testAccount())
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindCredential), "status %d", code)
	}
}

func TestRateLimitClassified(t *testing.T) {
	c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"Too many requests"}`))
	})
	_, err := c.FetchAccountStatus(context.Background(), testAccount())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindTransient))
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestServerErrorTransient(t *testing.T) {
	c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := c.FetchAccountStatus(context.Background(), testAccount())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindTransient))
}

func TestNetworkErrorTransient(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.FetchAccountStatus(context.Background(), testAccount())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindTransient))
}

func TestSearchAvailableNumbers(t *testing.T) {
	c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/AvailablePhoneNumbers/GB/Local.json")
		w.Write([]byte(`{"available_phone_numbers":[
			{"phone_number":"+441234567890","friendly_name":"+44 1234 567890","locality":"London"},
			{"phone_number":"+441234567891","friendly_name":"+44 1234 567891"}
		]}`))
	})

	numbers, err := c.SearchAvailableNumbers(context.Background(), testAccount(), SearchOptions{Country: "gb"})
	require.NoError(t, err)
	require.Len(t, numbers, 2)
	assert.Equal(t, "+441234567890", numbers[0].PhoneNumber)
	assert.Equal(t, "London", numbers[0].Locality)
}

func TestSearchTollFreeUsesTollFreePath(t *testing.T) {
	c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/AvailablePhoneNumbers/US/TollFree.json")
		w.Write([]byte(`{"available_phone_numbers":[]}`))
	})
	_, err := c.SearchAvailableNumbers(context.Background(), testAccount(), SearchOptions{TollFree: true})
	require.NoError(t, err)
}

func TestPurchaseNumber(t *testing.T) {
	c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "+15005550006", r.PostFormValue("PhoneNumber"))
		w.Write([]byte(`{"sid":"PN123","phone_number":"+15005550006","friendly_name":"test"}`))
	})

	owned, err := c.PurchaseNumber(context.Background(), testAccount(), "+15005550006")
	require.NoError(t, err)
	assert.Equal(t, "PN123", owned.SID)
	assert.Equal(t, "+15005550006", owned.PhoneNumber)
}

func TestPurchaseNumberMissingSIDIsError(t *testing.T) {
	c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	_, err := c.PurchaseNumber(context.Background(), testAccount(), "+15005550006")
	assert.Error(t, err)
}

func TestListMessagesFiltersAndParses(t *testing.T) {
	c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "+15005550006", r.URL.Query().Get("To"))
		w.Write([]byte(`{"messages":[
			{"from":"+12025550100","to":"+15005550006","body":"your code is 1234","status":"received","date_sent":"Sat, 29 Aug 2026 10:00:00 +0000"}
		]}`))
	})

	msgs, err := c.ListMessages(context.Background(), testAccount(), "+15005550006", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "your code is 1234", msgs[0].Body)
	assert.False(t, msgs[0].DateSent.IsZero())
}

func TestListOwnedNumbers(t *testing.T) {
	c := clientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "+15005550006", r.URL.Query().Get("PhoneNumber"))
		w.Write([]byte(`{"incoming_phone_numbers":[{"sid":"PN123","phone_number":"+15005550006"}]}`))
	})

	owned, err := c.ListOwnedNumbers(context.Background(), testAccount(), "+15005550006")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "PN123", owned[0].SID)
}
