// Package service implements the relay's application operations: every
// principal-facing call runs through the membership gate, then through
// failover rotation over the principal's account pool.
package service

import (
	"context"
	"sync"
	"time"

	"numrelay-go/internal/account"
	"numrelay-go/internal/apperrors"
	"numrelay-go/internal/failover"
	"numrelay-go/internal/membership"
	"numrelay-go/internal/notify"
	"numrelay-go/internal/probe"
	"numrelay-go/internal/provider"
	"numrelay-go/internal/store"

	log "github.com/sirupsen/logrus"
)

// Service binds the verifier, the account registry, the provider client and
// the durable store into the operation surface the server exposes.
type Service struct {
	verifier *membership.Verifier
	registry *account.Registry
	exec     *failover.Executor
	provider *provider.Client
	prober   *probe.Prober
	backend  store.Backend
	sink     notify.Sink
	ledger   *membership.MemoryLedger

	admin        int64
	probeTimeout time.Duration
	now          func() time.Time

	mu      sync.Mutex
	records map[int64]*store.PrincipalRecord
}

// Options configure a Service.
type Options struct {
	Verifier       *membership.Verifier
	Registry       *account.Registry
	Executor       *failover.Executor
	Provider       *provider.Client
	Prober         *probe.Prober
	Store          store.Backend
	Sink           notify.Sink
	Ledger         *membership.MemoryLedger
	AdminPrincipal int64
	ProbeTimeout   time.Duration
	Now            func() time.Time
}

// New assembles a Service. The ledger's mutation hook is claimed here so
// every verification outcome lands in the durable store.
func New(opts Options) *Service {
	if opts.Sink == nil {
		opts.Sink = notify.Discard{}
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		verifier:     opts.Verifier,
		registry:     opts.Registry,
		exec:         opts.Executor,
		provider:     opts.Provider,
		prober:       opts.Prober,
		backend:      opts.Store,
		sink:         opts.Sink,
		ledger:       opts.Ledger,
		admin:        opts.AdminPrincipal,
		probeTimeout: opts.ProbeTimeout,
		now:          now,
		records:      make(map[int64]*store.PrincipalRecord),
	}
	if s.ledger != nil {
		s.ledger.OnMutate(s.persistLedger)
	}
	return s
}

// Registry exposes the account registry for the management API.
func (s *Service) Registry() *account.Registry { return s.registry }

// Verifier exposes the membership verifier for the management API.
func (s *Service) Verifier() *membership.Verifier { return s.verifier }

// Bootstrap loads persisted principal state: ledger trust, private pools
// with their health snapshots, and rotation cursors.
func (s *Service) Bootstrap(ctx context.Context) error {
	records, err := s.backend.LoadPrincipals(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	restoredPools := 0
	for id, rec := range records {
		if s.ledger != nil && len(rec.Verified) > 0 {
			s.ledger.Load(id, rec.Verified)
		}
		if rec.Status == store.StatusActive && len(rec.Accounts) > 0 {
			accounts := make([]*account.Account, 0, len(rec.Accounts))
			states := make(map[string]account.State, len(rec.Accounts))
			for _, sa := range rec.Accounts {
				accounts = append(accounts, account.New(sa.SID, sa.Token))
				states[sa.SID] = sa.State
			}
			if err := s.registry.InstallPrivate(id, accounts); err != nil {
				log.WithError(err).WithField("principal", id).Warn("Skipping persisted private pool")
				continue
			}
			s.registry.PoolFor(id).RestoreStates(states)
			s.registry.CommitCursor(id, rec.Cursor)
			restoredPools++
		}
	}

	log.WithFields(log.Fields{
		"principals":    len(records),
		"private_pools": restoredPools,
	}).Info("Principal state restored")
	return nil
}

// gate runs the membership check. Denials notify the principal and come
// back as hard-deny errors so nothing downstream retries them.
func (s *Service) gate(ctx context.Context, principal int64) error {
	decision := s.verifier.Verify(ctx, principal)
	if decision.Admit {
		s.touch(ctx, principal)
		return nil
	}

	log.WithFields(log.Fields{
		"principal": principal,
		"path":      decision.Path,
	}).Info("Access denied")
	s.notifyAsync(principal, "Access denied: required group membership could not be confirmed.")
	return apperrors.HardDeny("access_denied", "required group membership not confirmed")
}

// reportExhaustion tells the principal when their pool ran dry. The sink
// result is advisory only.
func (s *Service) reportExhaustion(principal int64, err error) {
	if apperrors.IsKind(err, apperrors.KindPoolExhausted) {
		s.notifyAsync(principal, "No working account is currently available. Please try again later.")
	}
}

func (s *Service) notifyAsync(principal int64, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.sink.Notify(ctx, principal, message)
	}()
}

// touch ensures the principal has a record with a first-use time.
func (s *Service) touch(ctx context.Context, principal int64) {
	s.mu.Lock()
	rec, ok := s.records[principal]
	if !ok {
		rec = &store.PrincipalRecord{
			Principal: principal,
			Status:    store.StatusActive,
			FirstUse:  s.now(),
		}
		s.records[principal] = rec
	}
	snapshot := rec.Clone()
	s.mu.Unlock()

	if !ok {
		s.save(ctx, snapshot)
	}
}

// persistLedger is the ledger mutation hook: verification outcomes flow
// into the principal record on every change.
func (s *Service) persistLedger(principal int64, entries map[string]membership.LedgerEntry) {
	s.mu.Lock()
	rec, ok := s.records[principal]
	if !ok {
		rec = &store.PrincipalRecord{
			Principal: principal,
			Status:    store.StatusActive,
			FirstUse:  s.now(),
		}
		s.records[principal] = rec
	}
	rec.Verified = entries
	rec.UpdatedAt = s.now()
	snapshot := rec.Clone()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.save(ctx, snapshot)
}

func (s *Service) save(ctx context.Context, rec *store.PrincipalRecord) {
	if err := s.backend.SavePrincipal(ctx, rec); err != nil {
		log.WithError(err).WithField("principal", rec.Principal).Error("Failed to persist principal record")
	}
}

// mutateRecord applies fn to the principal's record under lock and persists
// the result.
func (s *Service) mutateRecord(ctx context.Context, principal int64, fn func(rec *store.PrincipalRecord)) {
	s.mu.Lock()
	rec, ok := s.records[principal]
	if !ok {
		rec = &store.PrincipalRecord{
			Principal: principal,
			Status:    store.StatusActive,
			FirstUse:  s.now(),
		}
		s.records[principal] = rec
	}
	fn(rec)
	rec.UpdatedAt = s.now()
	snapshot := rec.Clone()
	s.mu.Unlock()

	s.save(ctx, snapshot)
}

// Principals returns the IDs of every known principal.
func (s *Service) Principals() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.records))
	for id := range s.records {
		out = append(out, id)
	}
	return out
}

// Record returns a detached copy of one principal's record.
func (s *Service) Record(principal int64) (*store.PrincipalRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[principal]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}
