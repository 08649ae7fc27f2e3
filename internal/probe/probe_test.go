package probe

import (
	"context"
	"errors"
	"testing"

	"numrelay-go/internal/account"
	"numrelay-go/internal/apperrors"
	"numrelay-go/internal/provider"

	"github.com/stretchr/testify/assert"
)

type stubFetcher struct {
	status provider.AccountStatus
	err    error
}

func (s stubFetcher) FetchAccountStatus(ctx context.Context, acct *account.Account) (provider.AccountStatus, error) {
	return s.status, s.err
}

func newAccount() *account.Account {
	return account.New("AC00000000000000000000000000000000", "00000000000000000000000000000000")
}

func TestProbeClassification(t *testing.T) {
	cases := []struct {
		name       string
		fetcher    stubFetcher
		want       Status
		wantHealth account.Health
	}{
		{
			name:       "active confirmed",
			fetcher:    stubFetcher{status: provider.StatusActive},
			want:       StatusActive,
			wantHealth: account.HealthActive,
		},
		{
			name:       "suspended",
			fetcher:    stubFetcher{status: provider.StatusSuspended},
			want:       StatusSuspended,
			wantHealth: account.HealthInactive,
		},
		{
			name:       "closed treated as suspended",
			fetcher:    stubFetcher{status: provider.StatusClosed},
			want:       StatusSuspended,
			wantHealth: account.HealthInactive,
		},
		{
			name:       "credential rejection",
			fetcher:    stubFetcher{err: apperrors.Credential("auth", "bad token", nil)},
			want:       StatusUnauthenticated,
			wantHealth: account.HealthInactive,
		},
		{
			name:       "transport error is unknown",
			fetcher:    stubFetcher{err: apperrors.Transient("timeout", "deadline exceeded", nil)},
			want:       StatusUnknown,
			wantHealth: account.HealthInactive,
		},
		{
			name:       "unclassified error is unknown",
			fetcher:    stubFetcher{err: errors.New("boom")},
			want:       StatusUnknown,
			wantHealth: account.HealthInactive,
		},
		{
			name:       "indecisive status is unknown",
			fetcher:    stubFetcher{status: provider.StatusUnknown},
			want:       StatusUnknown,
			wantHealth: account.HealthInactive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acct := newAccount()
			got := New(tc.fetcher).Probe(context.Background(), acct)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantHealth, acct.Status())
		})
	}
}

func TestProbeRecordsReason(t *testing.T) {
	acct := newAccount()
	New(stubFetcher{status: provider.StatusSuspended}).Probe(context.Background(), acct)
	assert.Contains(t, acct.FailureReason(), "suspended")
}

func TestProbeNeverReactivates(t *testing.T) {
	acct := newAccount()
	acct.Deactivate("previous failure")

	New(stubFetcher{status: provider.StatusActive}).Probe(context.Background(), acct)
	// A live probe result reports Active but does not flip health back;
	// reactivation is an explicit administrative action.
	assert.Equal(t, account.HealthInactive, acct.Status())
}
