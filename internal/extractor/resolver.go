package extractor

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/insightdelivered/statement-extractor/internal/bankconfig"
	"github.com/insightdelivered/statement-extractor/internal/metrics"
	"github.com/insightdelivered/statement-extractor/internal/models"
)

// DefaultCacheTTL bounds how long a resolved extractor instance is
// reused before it is constructed afresh.
const DefaultCacheTTL = 300 * time.Second

// moduleScheme is the only locator scheme the resolver will load.
// Anything else in a registry entry is treated as a load failure, not
// a lookup path.
const moduleScheme = "builtin/"

// Resolver turns a bank id into a ready extractor instance. It
// consults the bank registry for status and module locator, keeps
// constructed instances in a TTL cache, and collapses concurrent
// requests for the same bank into a single construction.
type Resolver struct {
	registry *bankconfig.Registry
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[models.BankID]cachedInstance
	group singleflight.Group
}

type cachedInstance struct {
	ext     Extractor
	expires time.Time
}

func NewResolver(registry *bankconfig.Registry, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		registry: registry,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		cache:    make(map[models.BankID]cachedInstance),
	}
}

// Resolve returns the extractor for id or a typed error: UNKNOWN_BANK
// for ids absent from the registry, INACTIVE_BANK for disabled
// entries, LOAD_ERROR when the configured module cannot be loaded or
// violates the extractor contract. Load failures are never cached.
func (r *Resolver) Resolve(id models.BankID) (Extractor, error) {
	entry, ok := r.registry.Lookup(id)
	if !ok {
		return nil, Errorf(CodeUnknownBank,
			"unsupported bank %q; supported banks: %s", id, joinIDs(r.registry.ActiveIDs()))
	}
	if !entry.Active() {
		return nil, Errorf(CodeInactiveBank, "bank %q is currently disabled", id)
	}

	if ext, ok := r.cached(id); ok {
		metrics.ResolverCacheHits.Inc()
		return ext, nil
	}
	metrics.ResolverCacheMisses.Inc()

	v, err, _ := r.group.Do(string(id), func() (any, error) {
		if ext, ok := r.cached(id); ok {
			return ext, nil
		}
		ext, err := r.load(entry)
		if err != nil {
			return nil, err
		}
		r.store(id, ext)
		return ext, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Extractor), nil
}

// Invalidate drops the cached instance for id, forcing the next
// Resolve to construct afresh.
func (r *Resolver) Invalidate(id models.BankID) {
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()
}

// InvalidateAll clears the instance cache.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[models.BankID]cachedInstance)
	r.mu.Unlock()
}

// Cached reports whether a live instance for id is in the cache.
func (r *Resolver) Cached(id models.BankID) bool {
	_, ok := r.cached(id)
	return ok
}

func (r *Resolver) cached(id models.BankID) (Extractor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cache[id]
	if !ok || r.now().After(c.expires) {
		return nil, false
	}
	return c.ext, true
}

func (r *Resolver) store(id models.BankID, ext Extractor) {
	r.mu.Lock()
	r.cache[id] = cachedInstance{ext: ext, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

// load constructs the extractor named by the entry's module locator.
// Error messages name the bank, never the locator.
func (r *Resolver) load(entry bankconfig.Entry) (Extractor, error) {
	name, ok := strings.CutPrefix(entry.Module, moduleScheme)
	if !ok {
		r.logger.Error("bank module locator not allow-listed",
			"bank", entry.ID, "module", entry.Module)
		return nil, Errorf(CodeLoadError, "extractor for bank %q failed to load", entry.ID)
	}

	ctor, ok := Builtin(models.BankID(name))
	if !ok {
		r.logger.Error("bank module locator names no builtin extractor",
			"bank", entry.ID, "module", entry.Module)
		return nil, Errorf(CodeLoadError, "extractor for bank %q failed to load", entry.ID)
	}

	ext := ctor()
	if err := verifyContract(ext); err != nil {
		r.logger.Error("extractor violates contract", "bank", entry.ID, "error", err)
		return nil, WrapErr(CodeLoadError, err, "extractor for bank %q failed to load", entry.ID)
	}

	r.logger.Info("extractor loaded",
		"bank", entry.ID, "name", ext.BankName(), "version", ext.Version())
	return ext, nil
}

func verifyContract(ext Extractor) error {
	if ext.BankName() == "" {
		return Errorf(CodeLoadError, "extractor reports empty bank name")
	}
	if ext.Version() == "" {
		return Errorf(CodeLoadError, "extractor reports empty version")
	}
	if len(ext.Capabilities()) == 0 {
		return Errorf(CodeLoadError, "extractor reports no capabilities")
	}
	return nil
}

func joinIDs(ids []models.BankID) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
