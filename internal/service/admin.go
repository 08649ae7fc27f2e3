package service

import (
	"context"
	"time"

	"numrelay-go/internal/account"
	"numrelay-go/internal/apperrors"
	"numrelay-go/internal/notify"
	"numrelay-go/internal/probe"

	log "github.com/sirupsen/logrus"
)

// AccountStatus is one pool slot in a status report, secrets redacted.
type AccountStatus struct {
	Slot          int    `json:"slot"`
	SID           string `json:"sid"`
	Token         string `json:"token"`
	Health        string `json:"health"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// PoolReport describes one pool for the management surface.
type PoolReport struct {
	Name     string          `json:"name"`
	Total    int             `json:"total"`
	Active   int             `json:"active"`
	Accounts []AccountStatus `json:"accounts"`
}

// StatusReport is the full pool inventory.
type StatusReport struct {
	Shared       PoolReport           `json:"shared"`
	PrivatePools map[int64]PoolReport `json:"private_pools,omitempty"`
}

func (s *Service) requireAdmin(principal int64) error {
	if s.admin == 0 || principal != s.admin {
		return apperrors.HardDeny("forbidden", "administrative operation")
	}
	return nil
}

// AddSharedAccount probes and installs a credential pair into the shared
// pool. An existing slot with the same SID is replaced.
func (s *Service) AddSharedAccount(ctx context.Context, principal int64, sid, token string) error {
	if err := s.requireAdmin(principal); err != nil {
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
		return apperrors.Credential("account_rejected", "account failed liveness probe: "+status.String(), nil)
	}

	slot := s.registry.Shared().Add(acct)
	log.WithFields(log.Fields{
		"account": acct.ID,
		"slot":    slot + 1,
	}).Info("Shared pool account added")
	return nil
}

// ReactivateSharedAccount flips a deactivated shared account back to
// active. Administrative override only; probes never promote.
func (s *Service) ReactivateSharedAccount(principal int64, sid string) error {
	if err := s.requireAdmin(principal); err != nil {
		return err
	}
	acct, _, ok := s.registry.Shared().FindByID(sid)
	if !ok {
		return apperrors.HardDeny("account_not_found", "no shared account with that SID")
	}
	acct.Reactivate()
	log.WithField("account", sid).Info("Shared account reactivated")
	return nil
}

// PoolStatus reports every pool with secrets masked.
func (s *Service) PoolStatus(principal int64) (*StatusReport, error) {
	if err := s.requireAdmin(principal); err != nil {
		return nil, err
	}

	report := &StatusReport{Shared: describePool(s.registry.Shared())}
	private := s.registry.PrivatePools()
	if len(private) > 0 {
		report.PrivatePools = make(map[int64]PoolReport, len(private))
		for id, pool := range private {
			report.PrivatePools[id] = describePool(pool)
		}
	}
	return report, nil
}

func describePool(pool *account.Pool) PoolReport {
	accounts := pool.Accounts()
	report := PoolReport{
		Name:     pool.Name(),
		Total:    len(accounts),
		Active:   pool.ActiveCount(),
		Accounts: make([]AccountStatus, 0, len(accounts)),
	}
	for i, a := range accounts {
		report.Accounts = append(report.Accounts, AccountStatus{
			Slot:          i + 1,
			SID:           a.ID,
			Token:         a.MaskedSecret(),
			Health:        a.Status().String(),
			FailureReason: a.FailureReason(),
		})
	}
	return report
}

// Broadcast fans a message out to every known principal. At least once per
// reachable principal; blocked principals are skipped and counted.
func (s *Service) Broadcast(ctx context.Context, principal int64, message string) (*notify.BroadcastSummary, error) {
	if err := s.requireAdmin(principal); err != nil {
		return nil, err
	}
	if message == "" {
		return nil, apperrors.HardDeny("empty_message", "broadcast message required")
	}

	targets := s.Principals()
	start := time.Now()
	summary := notify.Broadcast(ctx, s.sink, targets, message)

	log.WithFields(log.Fields{
		"targets":   len(targets),
		"delivered": summary.Delivered,
		"blocked":   summary.Blocked,
		"failed":    summary.Failed,
		"elapsed":   time.Since(start).String(),
	}).Info("Broadcast complete")
	return &summary, nil
}
