package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func sinkAgainst(t *testing.T, handler http.HandlerFunc) *TelegramSink {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTelegramSink(srv.URL, "test-token", 1000, 1000, 2*time.Second)
}

func TestNotifyDelivered(t *testing.T) {
	s := sinkAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, int64(42), gjson.GetBytes(body, "chat_id").Int())
		assert.Equal(t, "hello", gjson.GetBytes(body, "text").String())
		w.Write([]byte(`{"ok":true}`))
	})
	assert.Equal(t, Delivered, s.Notify(context.Background(), 42, "hello"))
}

func TestNotifyBlockedClassification(t *testing.T) {
	for _, desc := range []string{
		"Forbidden: bot was blocked by the user",
		"Forbidden: user is deactivated",
		"Bad Request: chat not found",
	} {
		s := sinkAgainst(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"ok":false,"error_code":403,"description":"` + desc + `"}`))
		})
		assert.Equal(t, Blocked, s.Notify(context.Background(), 42, "hello"), desc)
	}
}

func TestNotifyRateLimitRetriesOnce(t *testing.T) {
	calls := 0
	s := sinkAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":0}}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})
	res := s.Notify(context.Background(), 42, "hello")
	assert.Equal(t, Delivered, res)
	assert.Equal(t, 2, calls)
}

func TestNotifyTransportFailure(t *testing.T) {
	s := NewTelegramSink("http://127.0.0.1:1", "tok", 1000, 1000, 200*time.Millisecond)
	assert.Equal(t, Failed, s.Notify(context.Background(), 42, "hello"))
}

type scriptedSink struct {
	results map[int64]DeliveryResult
	calls   []int64
}

func (s *scriptedSink) Notify(ctx context.Context, principal int64, message string) DeliveryResult {
	s.calls = append(s.calls, principal)
	if r, ok := s.results[principal]; ok {
		return r
	}
	return Delivered
}

func TestBroadcastCountsOutcomes(t *testing.T) {
	sink := &scriptedSink{results: map[int64]DeliveryResult{
		2: Blocked,
		3: Failed,
	}}
	summary := Broadcast(context.Background(), sink, []int64{1, 2, 3, 4}, "announcement")

	assert.Equal(t, 2, summary.Delivered)
	assert.Equal(t, 1, summary.Blocked)
	assert.Equal(t, 1, summary.Failed)
	require.Equal(t, []int64{1, 2, 3, 4}, sink.calls, "blocked recipients are skipped, not aborted on")
}

func TestDiscardSink(t *testing.T) {
	assert.Equal(t, Delivered, Discard{}.Notify(context.Background(), 1, "x"))
}
