package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"numrelay-go/internal/account"
	"numrelay-go/internal/apperrors"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const apiVersion = "2010-04-01"

// Client talks to the telephony provider's REST API using per-account basic
// auth. One Client serves every account; credentials travel per call.
type Client struct {
	baseURL string
	httpc   *http.Client
	timeout time.Duration
}

// NewClient builds a provider client. timeout bounds each call; a blocked
// provider call must never hang a failover loop.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// FetchAccountStatus returns the provider's operational state for the
// account. Credential rejections and missing accounts surface as classified
// errors, not statuses.
func (c *Client) FetchAccountStatus(ctx context.Context, acct *account.Account) (AccountStatus, error) {
	path := fmt.Sprintf("/%s/Accounts/%s.json", apiVersion, acct.ID)
	body, err := c.get(ctx, acct, path, nil)
	if err != nil {
		return StatusUnknown, err
	}
	status := gjson.GetBytes(body, "status")
	if !status.Exists() {
		// A probe must positively confirm liveness; a decisive field
		// missing from the payload is a failure, not a pass.
		return StatusUnknown, apperrors.Transient("malformed_response", "account status missing from response", nil)
	}
	switch status.String() {
	case "active":
		return StatusActive, nil
	case "suspended":
		return StatusSuspended, nil
	case "closed":
		return StatusClosed, nil
	default:
		return StatusUnknown, nil
	}
}

// SearchAvailableNumbers lists purchasable numbers for the account.
func (c *Client) SearchAvailableNumbers(ctx context.Context, acct *account.Account, opts SearchOptions) ([]AvailableNumber, error) {
	country := strings.ToUpper(strings.TrimSpace(opts.Country))
	if country == "" {
		country = "US"
	}
	kind := "Local"
	if opts.TollFree {
		kind = "TollFree"
	}
	limit := opts.Limit
	if limit <= 0 || limit > 30 {
		limit = 10
	}

	q := url.Values{"PageSize": {strconv.Itoa(limit)}}
	if opts.Contains != "" {
		q.Set("Contains", opts.Contains)
	}
	path := fmt.Sprintf("/%s/Accounts/%s/AvailablePhoneNumbers/%s/%s.json", apiVersion, acct.ID, country, kind)
	body, err := c.get(ctx, acct, path, q)
	if err != nil {
		return nil, err
	}

	var out []AvailableNumber
	gjson.GetBytes(body, "available_phone_numbers").ForEach(func(_, v gjson.Result) bool {
		out = append(out, AvailableNumber{
			PhoneNumber:  v.Get("phone_number").String(),
			FriendlyName: v.Get("friendly_name").String(),
			Locality:     v.Get("locality").String(),
			Region:       v.Get("region").String(),
			Country:      country,
		})
		return true
	})
	return out, nil
}

// PurchaseNumber provisions a number on the account.
func (c *Client) PurchaseNumber(ctx context.Context, acct *account.Account, phoneNumber string) (*OwnedNumber, error) {
	path := fmt.Sprintf("/%s/Accounts/%s/IncomingPhoneNumbers.json", apiVersion, acct.ID)
	form := url.Values{"PhoneNumber": {phoneNumber}}
	body, err := c.postForm(ctx, acct, path, form)
	if err != nil {
		return nil, err
	}
	owned := &OwnedNumber{
		SID:          gjson.GetBytes(body, "sid").String(),
		PhoneNumber:  gjson.GetBytes(body, "phone_number").String(),
		FriendlyName: gjson.GetBytes(body, "friendly_name").String(),
	}
	if owned.SID == "" {
		return nil, apperrors.Transient("malformed_response", "purchase response missing number sid", nil)
	}
	return owned, nil
}

// ListOwnedNumbers returns the numbers provisioned on the account,
// optionally filtered to an exact number.
func (c *Client) ListOwnedNumbers(ctx context.Context, acct *account.Account, phoneNumber string) ([]OwnedNumber, error) {
	q := url.Values{}
	if phoneNumber != "" {
		q.Set("PhoneNumber", phoneNumber)
	}
	path := fmt.Sprintf("/%s/Accounts/%s/IncomingPhoneNumbers.json", apiVersion, acct.ID)
	body, err := c.get(ctx, acct, path, q)
	if err != nil {
		return nil, err
	}

	var out []OwnedNumber
	gjson.GetBytes(body, "incoming_phone_numbers").ForEach(func(_, v gjson.Result) bool {
		out = append(out, OwnedNumber{
			SID:          v.Get("sid").String(),
			PhoneNumber:  v.Get("phone_number").String(),
			FriendlyName: v.Get("friendly_name").String(),
		})
		return true
	})
	return out, nil
}

// ReleaseNumber removes a provisioned number from the account.
func (c *Client) ReleaseNumber(ctx context.Context, acct *account.Account, numberSID string) error {
	path := fmt.Sprintf("/%s/Accounts/%s/IncomingPhoneNumbers/%s.json", apiVersion, acct.ID, numberSID)
	req, err := c.newRequest(ctx, acct, http.MethodDelete, path, nil, "")
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// ListMessages returns recent inbound messages addressed to the number.
func (c *Client) ListMessages(ctx context.Context, acct *account.Account, to string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	q := url.Values{"PageSize": {strconv.Itoa(limit)}}
	if to != "" {
		q.Set("To", to)
	}
	path := fmt.Sprintf("/%s/Accounts/%s/Messages.json", apiVersion, acct.ID)
	body, err := c.get(ctx, acct, path, q)
	if err != nil {
		return nil, err
	}

	var out []Message
	gjson.GetBytes(body, "messages").ForEach(func(_, v gjson.Result) bool {
		msg := Message{
			From:   v.Get("from").String(),
			To:     v.Get("to").String(),
			Body:   v.Get("body").String(),
			Status: v.Get("status").String(),
		}
		if sent := v.Get("date_sent").String(); sent != "" {
			if t, perr := time.Parse(time.RFC1123Z, sent); perr == nil {
				msg.DateSent = t
			}
		}
		out = append(out, msg)
		return true
	})
	return out, nil
}

func (c *Client) get(ctx context.Context, acct *account.Account, path string, q url.Values) ([]byte, error) {
	full := path
	if len(q) > 0 {
		full = path + "?" + q.Encode()
	}
	req, err := c.newRequest(ctx, acct, http.MethodGet, full, nil, "")
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, acct *account.Account, path string, form url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, acct, http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) newRequest(ctx context.Context, acct *account.Account, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	// The http.Client timeout bounds the call even when the caller passes
	// a background context; a hung provider call must not stall failover.
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.SetBasicAuth(acct.ID, acct.Secret())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, apperrors.FromNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.FromNetworkError(err)
	}

	log.WithFields(log.Fields{
		"method":      req.Method,
		"path":        req.URL.Path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("provider call")

	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(body, "message").String()
		return nil, apperrors.FromHTTPStatus(resp.StatusCode, msg)
	}
	return body, nil
}
