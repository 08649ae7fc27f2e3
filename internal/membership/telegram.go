package membership

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"numrelay-go/internal/apperrors"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// TelegramOracle answers membership questions through the Telegram Bot API's
// getChatMember call. Groups are channel usernames ("@channel").
type TelegramOracle struct {
	apiBase string
	token   string
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewTelegramOracle builds the oracle. ratePerSecond paces outbound calls so
// a verification burst does not trip the Bot API's own limits.
func NewTelegramOracle(apiBase, token string, ratePerSecond int, timeout time.Duration) *TelegramOracle {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramOracle{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
	}
}

// CheckMembership asks the Bot API whether the principal belongs to the
// group. A non-nil error always marks a retryable, unreachable condition.
func (o *TelegramOracle) CheckMembership(ctx context.Context, principal int64, group string) (Result, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return ResultUnreachable, apperrors.MembershipUnreachable(group, err)
	}

	q := url.Values{
		"chat_id": {group},
		"user_id": {strconv.FormatInt(principal, 10)},
	}
	endpoint := fmt.Sprintf("%s/bot%s/getChatMember?%s", o.apiBase, o.token, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ResultUnreachable, apperrors.MembershipUnreachable(group, err)
	}
	resp, err := o.httpc.Do(req)
	if err != nil {
		return ResultUnreachable, apperrors.MembershipUnreachable(group, apperrors.FromNetworkError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ResultUnreachable, apperrors.MembershipUnreachable(group, err)
	}

	return o.classify(principal, group, resp.StatusCode, body)
}

func (o *TelegramOracle) classify(principal int64, group string, httpStatus int, body []byte) (Result, error) {
	if gjson.GetBytes(body, "ok").Bool() {
		status := gjson.GetBytes(body, "result.status").String()
		switch status {
		case "member", "administrator", "creator":
			return ResultMember, nil
		case "left", "kicked":
			return ResultNonMember, nil
		case "restricted":
			// Restricted members are still members for gating purposes.
			return ResultMember, nil
		default:
			return ResultUnreachable, apperrors.MembershipUnreachable(group,
				fmt.Errorf("indecisive member status %q", status))
		}
	}

	desc := strings.ToLower(gjson.GetBytes(body, "description").String())
	code := gjson.GetBytes(body, "error_code").Int()

	log.WithFields(log.Fields{
		"principal":   principal,
		"group":       group,
		"http_status": httpStatus,
		"error_code":  code,
	}).Debug("membership source error")

	switch {
	case strings.Contains(desc, "user not found"), strings.Contains(desc, "chat not found"),
		strings.Contains(desc, "participant_id_invalid"):
		return ResultNotFound, nil
	case code == http.StatusTooManyRequests || strings.Contains(desc, "too many requests"):
		e := apperrors.MembershipUnreachable(group, fmt.Errorf("rate limited: %s", desc))
		e.RateLimit = true
		return ResultUnreachable, e
	default:
		// Includes "member list is inaccessible" and any other Bot API
		// failure: the answer could not be obtained, not that the
		// membership is absent.
		return ResultUnreachable, apperrors.MembershipUnreachable(group,
			fmt.Errorf("bot api error %d: %s", code, desc))
	}
}
