package service

import (
	"context"
	"strings"

	"numrelay-go/internal/account"
	"numrelay-go/internal/apperrors"
	"numrelay-go/internal/failover"
	"numrelay-go/internal/provider"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Target is the resolution of a number to the account that owns it.
type Target struct {
	AccountID string               `json:"account_id"`
	Number    provider.OwnedNumber `json:"number"`
}

// SearchNumbers lists purchasable local numbers in a country.
func (s *Service) SearchNumbers(ctx context.Context, principal int64, country string) ([]provider.AvailableNumber, error) {
	if err := s.gate(ctx, principal); err != nil {
		return nil, err
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		country = "US"
	}

	numbers, err := failover.DoValue(ctx, s.exec, principal,
		func(ctx context.Context, acct *account.Account) ([]provider.AvailableNumber, error) {
			return s.provider.SearchAvailableNumbers(ctx, acct, provider.SearchOptions{Country: country})
		})
	if err != nil {
		s.reportExhaustion(principal, err)
		return nil, err
	}
	return numbers, nil
}

// SearchTollFree lists purchasable toll-free numbers. Toll-free inventory
// is only offered for the US.
func (s *Service) SearchTollFree(ctx context.Context, principal int64) ([]provider.AvailableNumber, error) {
	if err := s.gate(ctx, principal); err != nil {
		return nil, err
	}

	numbers, err := failover.DoValue(ctx, s.exec, principal,
		func(ctx context.Context, acct *account.Account) ([]provider.AvailableNumber, error) {
			return s.provider.SearchAvailableNumbers(ctx, acct, provider.SearchOptions{Country: "US", TollFree: true})
		})
	if err != nil {
		s.reportExhaustion(principal, err)
		return nil, err
	}
	return numbers, nil
}

// PurchaseNumber provisions the number on the principal's current account,
// rotating to the next on failure.
func (s *Service) PurchaseNumber(ctx context.Context, principal int64, phoneNumber string) (*Target, error) {
	if err := s.gate(ctx, principal); err != nil {
		return nil, err
	}
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return nil, apperrors.HardDeny("invalid_number", "phone number required")
	}

	// One purchase id spans every rotation attempt so a purchase that
	// succeeded on the second account is still traceable as one operation.
	purchaseID := uuid.NewString()

	var target Target
	err := s.exec.Do(ctx, principal, func(ctx context.Context, acct *account.Account) error {
		owned, perr := s.provider.PurchaseNumber(ctx, acct, phoneNumber)
		if perr != nil {
			return perr
		}
		target = Target{AccountID: acct.ID, Number: *owned}
		return nil
	})
	if err != nil {
		s.reportExhaustion(principal, err)
		return nil, err
	}

	log.WithFields(log.Fields{
		"principal":   principal,
		"purchase_id": purchaseID,
		"number":      target.Number.PhoneNumber,
		"account":     target.AccountID,
	}).Info("Number purchased")
	return &target, nil
}

// ResolveTarget finds which of the principal's accounts owns the number.
// Only usable accounts are consulted; ownership scanning is read-only and
// never rotates the pool.
func (s *Service) ResolveTarget(ctx context.Context, principal int64, phoneNumber string) (*Target, error) {
	if err := s.gate(ctx, principal); err != nil {
		return nil, err
	}
	return s.resolveTarget(ctx, principal, phoneNumber)
}

func (s *Service) resolveTarget(ctx context.Context, principal int64, phoneNumber string) (*Target, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return nil, apperrors.HardDeny("invalid_number", "phone number required")
	}

	pool := s.registry.PoolFor(principal)
	var lastErr error
	for _, acct := range pool.Accounts() {
		if !acct.Usable() {
			continue
		}
		owned, err := s.provider.ListOwnedNumbers(ctx, acct, phoneNumber)
		if err != nil {
			lastErr = err
			continue
		}
		for _, n := range owned {
			if n.PhoneNumber == phoneNumber {
				return &Target{AccountID: acct.ID, Number: n}, nil
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, apperrors.HardDeny("number_not_found", "number not owned by any account in the pool")
}

// FetchMessages returns recent inbound messages for a number the principal
// controls. The number is resolved to its owning account first; messages
// only exist on the account that provisioned the number.
func (s *Service) FetchMessages(ctx context.Context, principal int64, phoneNumber string, limit int) ([]provider.Message, error) {
	if err := s.gate(ctx, principal); err != nil {
		return nil, err
	}

	target, err := s.resolveTarget(ctx, principal, phoneNumber)
	if err != nil {
		return nil, err
	}

	acct, _, ok := s.registry.PoolFor(principal).FindByID(target.AccountID)
	if !ok {
		return nil, apperrors.HardDeny("number_not_found", "owning account no longer in the pool")
	}
	return s.provider.ListMessages(ctx, acct, phoneNumber, limit)
}
