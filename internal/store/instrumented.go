package store

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const slowOpThreshold = 500 * time.Millisecond

// WithInstrumentation wraps a backend so every operation is timed and slow
// or failing operations are logged with the backend label.
func WithInstrumentation(inner Backend, label string) Backend {
	if inner == nil {
		return inner
	}
	if label == "" {
		label = "unknown"
	}
	return &instrumentedBackend{inner: inner, label: label}
}

type instrumentedBackend struct {
	inner Backend
	label string
}

func (i *instrumentedBackend) instrument(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	fields := log.Fields{
		"backend":   i.label,
		"operation": op,
		"elapsed":   elapsed.String(),
	}
	switch {
	case err != nil:
		log.WithError(err).WithFields(fields).Warn("Store operation failed")
	case elapsed > slowOpThreshold:
		log.WithFields(fields).Warn("Slow store operation")
	default:
		log.WithFields(fields).Debug("Store operation")
	}
	return err
}

func (i *instrumentedBackend) Initialize(ctx context.Context) error {
	return i.instrument("initialize", func() error { return i.inner.Initialize(ctx) })
}

func (i *instrumentedBackend) Close() error {
	return i.instrument("close", i.inner.Close)
}

func (i *instrumentedBackend) Health(ctx context.Context) error {
	return i.instrument("health", func() error { return i.inner.Health(ctx) })
}

func (i *instrumentedBackend) LoadPrincipals(ctx context.Context) (map[int64]*PrincipalRecord, error) {
	var result map[int64]*PrincipalRecord
	err := i.instrument("load_principals", func() error {
		var innerErr error
		result, innerErr = i.inner.LoadPrincipals(ctx)
		return innerErr
	})
	return result, err
}

func (i *instrumentedBackend) SavePrincipals(ctx context.Context, records map[int64]*PrincipalRecord) error {
	return i.instrument("save_principals", func() error { return i.inner.SavePrincipals(ctx, records) })
}

func (i *instrumentedBackend) SavePrincipal(ctx context.Context, rec *PrincipalRecord) error {
	return i.instrument("save_principal", func() error { return i.inner.SavePrincipal(ctx, rec) })
}

func (i *instrumentedBackend) DeletePrincipal(ctx context.Context, principal int64) error {
	return i.instrument("delete_principal", func() error { return i.inner.DeletePrincipal(ctx, principal) })
}
