// Package bankconfig loads the bank registry: which banks the service
// knows, whether they are enabled, and which extractor module serves
// each one. The registry lives in a TOML file that operators can edit
// without redeploying; entries are re-read on a TTL and on demand.
package bankconfig

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/insightdelivered/statement-extractor/internal/models"
)

// DefaultTTL is how long a loaded registry is served before the file
// is consulted again.
const DefaultTTL = 300 * time.Second

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Entry describes one configured bank.
type Entry struct {
	ID           models.BankID       `toml:"id"`
	Name         string              `toml:"name"`
	Module       string              `toml:"module"`
	Status       string              `toml:"status"`
	Version      string              `toml:"version"`
	Capabilities []models.Capability `toml:"capabilities"`
	MaxFileMB    int                 `toml:"max_file_size_mb"`
}

func (e Entry) Active() bool { return e.Status == StatusActive }

type file struct {
	Banks []Entry `toml:"bank"`
}

// Registry serves bank entries from a TOML file with TTL-based
// refresh. A missing file yields the builtin defaults; a file that
// stops parsing mid-flight keeps serving the last good load.
type Registry struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	entries  map[models.BankID]Entry
	loadedAt time.Time
}

func New(path string, ttl time.Duration, logger *slog.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		path:   path,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Lookup returns the entry for id, refreshing from disk if the cached
// load has expired.
func (r *Registry) Lookup(id models.BankID) (Entry, bool) {
	r.refreshIfStale()
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// All returns every configured entry sorted by bank id.
func (r *Registry) All() []Entry {
	r.refreshIfStale()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveIDs returns the ids of enabled banks sorted alphabetically.
func (r *Registry) ActiveIDs() []models.BankID {
	var ids []models.BankID
	for _, e := range r.All() {
		if e.Active() {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Reload re-reads the file immediately, bypassing the TTL.
func (r *Registry) Reload() error {
	entries, err := r.load()
	if err != nil {
		r.mu.Lock()
		if r.entries == nil {
			r.entries = entryMap(Defaults())
			r.loadedAt = r.now()
			r.mu.Unlock()
			r.logger.Warn("bank registry unreadable, serving builtin defaults",
				"path", r.path, "error", err)
			return nil
		}
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.entries = entries
	r.loadedAt = r.now()
	r.mu.Unlock()
	return nil
}

// LoadedAt reports when the current entries were read.
func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

func (r *Registry) refreshIfStale() {
	r.mu.RLock()
	fresh := r.entries != nil && r.now().Sub(r.loadedAt) < r.ttl
	r.mu.RUnlock()
	if fresh {
		return
	}
	if err := r.Reload(); err != nil {
		r.logger.Error("bank registry reload failed, keeping previous entries",
			"path", r.path, "error", err)
		r.mu.Lock()
		r.loadedAt = r.now()
		r.mu.Unlock()
	}
}

func (r *Registry) load() (map[models.BankID]Entry, error) {
	if r.path == "" {
		return entryMap(Defaults()), nil
	}
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return entryMap(Defaults()), nil
	}
	if err != nil {
		return nil, err
	}

	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.path, err)
	}
	if len(f.Banks) == 0 {
		return nil, fmt.Errorf("parse %s: no [[bank]] entries", r.path)
	}

	entries := make(map[models.BankID]Entry, len(f.Banks))
	for _, e := range f.Banks {
		if e.ID == "" {
			return nil, fmt.Errorf("parse %s: [[bank]] entry without id", r.path)
		}
		if e.Module == "" {
			e.Module = "builtin/" + string(e.ID)
		}
		if e.Status == "" {
			e.Status = StatusInactive
		}
		entries[e.ID] = e
	}
	return entries, nil
}

func entryMap(entries []Entry) map[models.BankID]Entry {
	m := make(map[models.BankID]Entry, len(entries))
	for _, e := range entries {
		m[e.ID] = e
	}
	return m
}

// Defaults lists the banks shipped with the binary, all active.
func Defaults() []Entry {
	return []Entry{
		{
			ID:           models.BankCanara,
			Name:         "Canara Bank",
			Module:       "builtin/canara",
			Status:       StatusActive,
			Version:      "1.2.0",
			Capabilities: append(models.StandardCapabilities(), models.CapMultiLineTransactions),
			MaxFileMB:    25,
		},
		{
			ID:           models.BankUnionBank,
			Name:         "Union Bank of India",
			Module:       "builtin/union_bank",
			Status:       StatusActive,
			Version:      "2.1.0",
			Capabilities: append(models.StandardCapabilities(), models.CapMultiLineTransactions),
			MaxFileMB:    25,
		},
		{
			ID:           models.BankAPGVB,
			Name:         "Andhra Pradesh Grameena Vikas Bank",
			Module:       "builtin/apgvb",
			Status:       StatusActive,
			Version:      "1.0.0",
			Capabilities: models.StandardCapabilities(),
			MaxFileMB:    25,
		},
	}
}
