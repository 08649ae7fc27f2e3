package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/time/rate"
)

// TelegramSink sends messages through the Bot API's sendMessage call.
type TelegramSink struct {
	apiBase string
	token   string
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewTelegramSink builds a sink paced at ratePerSecond with the given burst.
func NewTelegramSink(apiBase, token string, ratePerSecond, burst int, timeout time.Duration) *TelegramSink {
	if ratePerSecond <= 0 {
		ratePerSecond = 25
	}
	if burst <= 0 {
		burst = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSink{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Notify sends one message. A Bot API rate-limit reply pauses for the
// advertised retry_after and tries once more before giving up.
func (t *TelegramSink) Notify(ctx context.Context, principal int64, message string) DeliveryResult {
	result := t.send(ctx, principal, message)
	if result.retryAfter <= 0 {
		return result.outcome
	}

	select {
	case <-ctx.Done():
		return Failed
	case <-time.After(result.retryAfter):
	}
	return t.send(ctx, principal, message).outcome
}

type sendResult struct {
	outcome    DeliveryResult
	retryAfter time.Duration
}

func (t *TelegramSink) send(ctx context.Context, principal int64, message string) sendResult {
	if err := t.limiter.Wait(ctx); err != nil {
		return sendResult{outcome: Failed}
	}

	body, _ := sjson.Set("", "chat_id", principal)
	body, _ = sjson.Set(body, "text", message)
	body, _ = sjson.Set(body, "parse_mode", "HTML")
	body, _ = sjson.Set(body, "disable_web_page_preview", true)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(body)))
	if err != nil {
		return sendResult{outcome: Failed}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		log.WithError(err).WithField("principal", principal).Debug("Notification send failed")
		return sendResult{outcome: Failed}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return sendResult{outcome: Failed}
	}

	if gjson.GetBytes(payload, "ok").Bool() {
		return sendResult{outcome: Delivered}
	}

	desc := strings.ToLower(gjson.GetBytes(payload, "description").String())
	code := gjson.GetBytes(payload, "error_code").Int()

	switch {
	case code == http.StatusForbidden,
		strings.Contains(desc, "blocked"),
		strings.Contains(desc, "deactivated"),
		strings.Contains(desc, "chat not found"):
		log.WithFields(log.Fields{
			"principal":  principal,
			"error_code": code,
		}).Debug("Principal unreachable for notifications")
		return sendResult{outcome: Blocked}
	case code == http.StatusTooManyRequests:
		after := gjson.GetBytes(payload, "parameters.retry_after").Int()
		if after <= 0 {
			after = 1
		}
		return sendResult{outcome: Failed, retryAfter: time.Duration(after) * time.Second}
	default:
		log.WithFields(log.Fields{
			"principal":  principal,
			"error_code": code,
		}).Warn("Notification rejected by messaging service")
		return sendResult{outcome: Failed}
	}
}
