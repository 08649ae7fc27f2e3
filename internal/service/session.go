package service

import (
	"context"
	"sort"
	"sync"

	"numrelay-go/internal/account"
	"numrelay-go/internal/apperrors"
	"numrelay-go/internal/probe"
	"numrelay-go/internal/store"

	log "github.com/sirupsen/logrus"
)

// bulkProbeWorkers bounds concurrent validation probes during a bulk login
// so a large paste does not open dozens of provider connections at once.
const bulkProbeWorkers = 5

// BulkReport summarizes a bulk login: which pasted credentials were
// malformed, which failed the liveness probe, and how many were installed.
type BulkReport struct {
	Installed int            `json:"installed"`
	Probed    int            `json:"probed"`
	Failed    []string       `json:"failed,omitempty"`
	Rejected  map[int]string `json:"rejected,omitempty"`
	Truncated bool           `json:"truncated"`
}

// Login installs a single-account private pool for the principal. The
// credential must pass a liveness probe before it replaces the pool.
func (s *Service) Login(ctx context.Context, principal int64, sid, token string) error {
	if err := s.gate(ctx, principal); err != nil {
		return err
	}
	if err := account.ValidatePair(sid, token); err != nil {
		return apperrors.HardDeny("invalid_credentials", err.Error())
	}

	acct := account.New(sid, token)
	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	status := s.prober.Probe(probeCtx, acct)
	cancel()
	if status != probe.StatusActive {
		return apperrors.Credential("login_rejected", "account failed liveness probe: "+status.String(), nil)
	}

	if err := s.registry.InstallPrivate(principal, []*account.Account{acct}); err != nil {
		return err
	}
	s.persistPool(ctx, principal)

	log.WithFields(log.Fields{
		"principal": principal,
		"account":   acct.ID,
	}).Info("Principal logged in")
	return nil
}

// BulkLogin parses a pasted credential blob, probes every well-formed pair
// concurrently, and installs the survivors as the principal's private pool.
func (s *Service) BulkLogin(ctx context.Context, principal int64, blob string) (*BulkReport, error) {
	if err := s.gate(ctx, principal); err != nil {
		return nil, err
	}

	parsed := account.ParseBulk(blob, s.registry.BulkLimit())
	report := &BulkReport{
		Probed:    len(parsed.Accounts),
		Rejected:  parsed.Rejected,
		Truncated: parsed.Truncated,
	}
	if len(parsed.Accounts) == 0 {
		return report, apperrors.HardDeny("no_valid_credentials", "no well-formed credential pairs in input")
	}

	// Probe in parallel with a bounded worker set. The probe deactivates
	// failing accounts itself, so survivors are exactly the usable ones.
	sem := make(chan struct{}, bulkProbeWorkers)
	var wg sync.WaitGroup
	for _, acct := range parsed.Accounts {
		wg.Add(1)
		sem <- struct{}{}
		go func(a *account.Account) {
			defer wg.Done()
			defer func() { <-sem }()
			probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
			defer cancel()
			s.prober.Probe(probeCtx, a)
		}(acct)
	}
	wg.Wait()

	var alive []*account.Account
	for _, acct := range parsed.Accounts {
		if acct.Usable() {
			alive = append(alive, acct)
		} else {
			report.Failed = append(report.Failed, acct.ID)
		}
	}
	sort.Strings(report.Failed)

	if len(alive) == 0 {
		return report, apperrors.Credential("bulk_login_rejected", "every supplied account failed the liveness probe", nil)
	}

	if err := s.registry.InstallPrivate(principal, alive); err != nil {
		return report, err
	}
	report.Installed = len(alive)
	s.persistPool(ctx, principal)

	log.WithFields(log.Fields{
		"principal": principal,
		"installed": report.Installed,
		"failed":    len(report.Failed),
		"rejected":  len(report.Rejected),
	}).Info("Bulk login installed private pool")
	return report, nil
}

// Logout removes the principal's private pool and reverts them to the
// shared pool. The gate is skipped on purpose: a principal must always be
// able to abandon their own credentials.
func (s *Service) Logout(ctx context.Context, principal int64) {
	s.registry.RemovePrivate(principal)
	s.mutateRecord(ctx, principal, func(rec *store.PrincipalRecord) {
		rec.Status = store.StatusLoggedOut
		rec.Accounts = nil
		rec.Cursor = 0
	})
	log.WithField("principal", principal).Info("Principal logged out")
}

// persistPool snapshots the principal's private pool into their record.
func (s *Service) persistPool(ctx context.Context, principal int64) {
	pool := s.registry.PoolFor(principal)
	if !s.registry.UsingPrivate(principal) {
		return
	}
	accounts := pool.Accounts()
	stored := make([]store.StoredAccount, 0, len(accounts))
	for _, a := range accounts {
		stored = append(stored, store.StoredAccount{
			SID:   a.ID,
			Token: a.Secret(),
			State: a.Snapshot(),
		})
	}
	cursor := s.registry.Cursor(principal)
	s.mutateRecord(ctx, principal, func(rec *store.PrincipalRecord) {
		rec.Status = store.StatusActive
		rec.Accounts = stored
		rec.Cursor = cursor
	})
}
