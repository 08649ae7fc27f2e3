package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	principalsFile = "principals.json"
	backupSuffix   = ".backup"
)

// FileBackend keeps all principal records in a single JSON file. Writes go
// through a temp file and rename so a crash mid-write never leaves a
// truncated primary, and the previous good primary is rotated to a backup
// before every replace.
type FileBackend struct {
	baseDir string

	mu      sync.RWMutex
	records map[int64]*PrincipalRecord
}

// NewFileBackend creates a file-based backend rooted at baseDir.
func NewFileBackend(baseDir string) *FileBackend {
	return &FileBackend{
		baseDir: baseDir,
		records: make(map[int64]*PrincipalRecord),
	}
}

func (f *FileBackend) path() string       { return filepath.Join(f.baseDir, principalsFile) }
func (f *FileBackend) backupPath() string { return f.path() + backupSuffix }

func (f *FileBackend) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("create storage directory %s: %w", f.baseDir, err)
	}
	records, err := f.loadWithRecovery()
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.records = records
	f.mu.Unlock()
	return nil
}

func (f *FileBackend) Close() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.flushLocked()
}

func (f *FileBackend) Health(ctx context.Context) error {
	_, err := os.Stat(f.baseDir)
	return err
}

func (f *FileBackend) LoadPrincipals(ctx context.Context) (map[int64]*PrincipalRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[int64]*PrincipalRecord, len(f.records))
	for id, rec := range f.records {
		out[id] = rec.Clone()
	}
	return out, nil
}

func (f *FileBackend) SavePrincipals(ctx context.Context, records map[int64]*PrincipalRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records = make(map[int64]*PrincipalRecord, len(records))
	for id, rec := range records {
		f.records[id] = rec.Clone()
	}
	return f.flushLocked()
}

func (f *FileBackend) SavePrincipal(ctx context.Context, rec *PrincipalRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records[rec.Principal] = rec.Clone()
	return f.flushLocked()
}

func (f *FileBackend) DeletePrincipal(ctx context.Context, principal int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.records[principal]; !ok {
		return nil
	}
	delete(f.records, principal)
	return f.flushLocked()
}

// flushLocked writes the full record set to disk. Caller holds at least a
// read lock; the temp+rename pair keeps readers of the file itself safe.
func (f *FileBackend) flushLocked() error {
	serializable := make(map[string]*PrincipalRecord, len(f.records))
	for id, rec := range f.records {
		serializable[strconv.FormatInt(id, 10)] = rec
	}
	payload, err := json.MarshalIndent(serializable, "", "  ")
	if err != nil {
		return fmt.Errorf("encode principal records: %w", err)
	}

	primary := f.path()

	// Rotate the last good primary before replacing it. A corrupt write
	// then recovers from the backup on next load.
	if _, err := os.Stat(primary); err == nil {
		if err := copyFile(primary, f.backupPath()); err != nil {
			log.WithError(err).Warn("Failed to rotate principal store backup")
		}
	}

	tmp, err := os.CreateTemp(f.baseDir, principalsFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, primary); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", primary, err)
	}
	return nil
}

// loadWithRecovery reads the primary file, falling back to the backup when
// the primary is missing or corrupt. A corrupt primary is preserved beside
// the store for inspection rather than silently discarded.
func (f *FileBackend) loadWithRecovery() (map[int64]*PrincipalRecord, error) {
	records, err := readRecordFile(f.path())
	if err == nil {
		return records, nil
	}
	if os.IsNotExist(err) {
		return make(map[int64]*PrincipalRecord), nil
	}

	log.WithError(err).WithField("file", f.path()).Warn("Principal store unreadable, trying backup")
	quarantine := f.path() + ".corrupt." + time.Now().UTC().Format("20060102T150405")
	if renameErr := os.Rename(f.path(), quarantine); renameErr == nil {
		log.WithField("file", quarantine).Warn("Corrupt principal store preserved")
	}

	records, backupErr := readRecordFile(f.backupPath())
	if backupErr == nil {
		log.WithField("file", f.backupPath()).Info("Recovered principal store from backup")
		return records, nil
	}
	if os.IsNotExist(backupErr) {
		log.Warn("No principal store backup available, starting empty")
		return make(map[int64]*PrincipalRecord), nil
	}
	return nil, fmt.Errorf("primary unreadable (%v) and backup unreadable: %w", err, backupErr)
}

func readRecordFile(path string) (map[int64]*PrincipalRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]*PrincipalRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	records := make(map[int64]*PrincipalRecord, len(raw))
	for key, rec := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse principal key %q in %s: %w", key, path, err)
		}
		if rec == nil {
			continue
		}
		rec.Principal = id
		records[id] = rec
	}
	return records, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
