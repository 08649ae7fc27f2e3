// Package store persists principal records across restarts. Four
// interchangeable backends share one interface; the file backend is the
// default and the only one with no external service requirement.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"numrelay-go/internal/account"
	"numrelay-go/internal/config"
	"numrelay-go/internal/membership"
)

// Principal status values.
const (
	StatusActive    = "active"
	StatusLoggedOut = "logged_out"
)

// StoredAccount is one credential pair inside a principal's private pool,
// with the runtime health state it had at save time.
type StoredAccount struct {
	SID   string        `json:"sid"`
	Token string        `json:"token"`
	State account.State `json:"state"`
}

// PrincipalRecord is everything durable about one principal: verification
// trust, private pool contents and cursor, and bookkeeping times.
type PrincipalRecord struct {
	Principal int64                             `json:"principal"`
	Status    string                            `json:"status"`
	Verified  map[string]membership.LedgerEntry `json:"verified_groups,omitempty"`
	Accounts  []StoredAccount                   `json:"accounts,omitempty"`
	Cursor    int                               `json:"cursor,omitempty"`
	FirstUse  time.Time                         `json:"first_use,omitempty"`
	UpdatedAt time.Time                         `json:"updated_at,omitempty"`
}

// Clone returns a detached copy safe to hand across goroutines.
func (r *PrincipalRecord) Clone() *PrincipalRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Verified != nil {
		out.Verified = make(map[string]membership.LedgerEntry, len(r.Verified))
		for k, v := range r.Verified {
			out.Verified[k] = v
		}
	}
	if r.Accounts != nil {
		out.Accounts = append([]StoredAccount(nil), r.Accounts...)
	}
	return &out
}

// Backend is the storage contract. Implementations must tolerate concurrent
// SavePrincipal calls for different principals.
type Backend interface {
	// Initialize sets up the backend (connects, migrates, loads).
	Initialize(ctx context.Context) error

	// Close releases the backend.
	Close() error

	// Health checks backend availability.
	Health(ctx context.Context) error

	// LoadPrincipals returns every stored record keyed by principal ID.
	LoadPrincipals(ctx context.Context) (map[int64]*PrincipalRecord, error)

	// SavePrincipals replaces the full record set.
	SavePrincipals(ctx context.Context, records map[int64]*PrincipalRecord) error

	// SavePrincipal upserts a single record.
	SavePrincipal(ctx context.Context, rec *PrincipalRecord) error

	// DeletePrincipal removes a record. Deleting a missing principal is
	// not an error.
	DeletePrincipal(ctx context.Context, principal int64) error
}

// ErrNotFound is returned when a principal record does not exist.
type ErrNotFound struct {
	Principal int64
}

func (e *ErrNotFound) Error() string {
	return "principal record not found: " + strconv.FormatInt(e.Principal, 10)
}

// Open constructs the backend named by the configuration. The returned
// backend is not yet initialized.
func Open(cfg *config.Config) (Backend, error) {
	switch cfg.StorageBackend {
	case "", "file":
		return NewFileBackend(cfg.StorageBaseDir), nil
	case "redis":
		return NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix), nil
	case "mongodb":
		return NewMongoBackend(cfg.MongoDBURI, cfg.MongoDatabase), nil
	case "postgres":
		return NewPostgresBackend(cfg.PostgresDSN), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
