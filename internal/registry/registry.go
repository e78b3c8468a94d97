package registry

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"chainIndexer/internal/decoder"
	"chainIndexer/internal/model"
)

// Source lists the registered contract interfaces.
type Source interface {
	ListInterfaces(ctx context.Context) ([]model.ContractInterface, error)
}

// Registry caches parsed interfaces from a Source and ranks decode candidates.
// Interfaces are registered out-of-band, so the cache reloads once it is
// older than the refresh interval.
type Registry struct {
	source  Source
	refresh time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	loadedAt time.Time
	byAddr   map[common.Address]decoder.Interface
	ordered  []decoder.Interface

	reloadMu sync.Mutex
}

// New builds a Registry. A zero refresh loads the source once.
func New(source Source, refresh time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		source:  source,
		refresh: refresh,
		logger:  logger,
		now:     time.Now,
		byAddr:  make(map[common.Address]decoder.Interface),
	}
}

// Reload replaces the cache with the current content of the source. Entries
// that fail to parse are skipped.
func (r *Registry) Reload(ctx context.Context) error {
	items, err := r.source.ListInterfaces(ctx)
	if err != nil {
		return err
	}

	byAddr := make(map[common.Address]decoder.Interface, len(items))
	for _, item := range items {
		parsed, err := decoder.ParseInterface(item)
		if err != nil {
			r.logger.Warn("skip contract interface", zap.String("address", item.Address), zap.Error(err))
			continue
		}
		byAddr[parsed.Address] = parsed
	}

	ordered := make([]decoder.Interface, 0, len(byAddr))
	for _, item := range byAddr {
		ordered = append(ordered, item)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].Address.Bytes(), ordered[j].Address.Bytes()) < 0
	})

	r.mu.Lock()
	r.byAddr = byAddr
	r.ordered = ordered
	r.loadedAt = r.now()
	r.mu.Unlock()

	r.logger.Debug("contract interfaces loaded", zap.Int("count", len(ordered)))
	return nil
}

// Lookup returns the interface registered for address.
func (r *Registry) Lookup(ctx context.Context, address common.Address) (decoder.Interface, bool) {
	r.ensureFresh(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.byAddr[address]
	return item, ok
}

// Candidates returns the interfaces to try for a log emitted by address: its
// own interface, then the implementation behind it when it is a proxy, then
// every other known interface.
func (r *Registry) Candidates(ctx context.Context, address common.Address) []decoder.Interface {
	r.ensureFresh(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]decoder.Interface, 0, len(r.ordered))
	seen := make(map[common.Address]struct{}, 2)

	if own, ok := r.byAddr[address]; ok {
		out = append(out, own)
		seen[own.Address] = struct{}{}
		if own.Implementation != nil {
			if impl, ok := r.byAddr[*own.Implementation]; ok {
				out = append(out, impl)
				seen[impl.Address] = struct{}{}
			}
		}
	}
	for _, item := range r.ordered {
		if _, ok := seen[item.Address]; ok {
			continue
		}
		out = append(out, item)
	}
	return out
}

// ensureFresh reloads a stale cache. A failed reload keeps the previous
// snapshot until the next refresh period.
func (r *Registry) ensureFresh(ctx context.Context) {
	if !r.stale() {
		return
	}

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()
	if !r.stale() {
		return
	}
	if err := r.Reload(ctx); err != nil {
		r.logger.Warn("reload contract interfaces", zap.Error(err))
		r.mu.Lock()
		r.loadedAt = r.now()
		r.mu.Unlock()
	}
}

func (r *Registry) stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.loadedAt.IsZero() {
		return true
	}
	return r.refresh > 0 && r.now().Sub(r.loadedAt) >= r.refresh
}
