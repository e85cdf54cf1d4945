package metacache

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// State is the prefetch lifecycle for one connected wallet.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// Status is the observable prefetch state for one owner.
type Status struct {
	State  State
	Key    string
	Reason string
}

// FetchSource builds the fetch function for one owner's collection.
type FetchSource func(owner common.Address) FetchFn

// Prefetcher warms the metadata cache on wallet connect and drops it on
// disconnect. It is an explicit state machine: transitions happen only on
// connect, disconnect, and fetch-settled events, with no state captured
// in closures beyond the owner and its generation.
type Prefetcher struct {
	cache  *Cache
	source FetchSource
	log    *zap.Logger

	mu       sync.Mutex
	statuses map[common.Address]Status
	gens     map[common.Address]uint64
}

func NewPrefetcher(cache *Cache, source FetchSource, log *zap.Logger) *Prefetcher {
	return &Prefetcher{
		cache:    cache,
		source:   source,
		log:      log,
		statuses: make(map[common.Address]Status),
		gens:     make(map[common.Address]uint64),
	}
}

// Connect transitions the owner to Fetching and resolves its collection in
// the background. A connect while a fetch is already outstanding is a
// no-op; the running fetch settles the state.
func (p *Prefetcher) Connect(ctx context.Context, owner common.Address) {
	key := CollectionKey(owner)

	p.mu.Lock()
	if p.statuses[owner].State == StateFetching {
		p.mu.Unlock()
		return
	}
	p.statuses[owner] = Status{State: StateFetching, Key: key}
	gen := p.gens[owner]
	p.mu.Unlock()

	go func() {
		_, err := p.cache.GetOrFetch(ctx, key, p.source(owner))
		p.settle(owner, gen, key, err)
	}()
}

// Disconnect invalidates the owner's cached lookups and returns the
// machine to Idle. Any in-flight fetch result for an older generation is
// discarded on arrival.
func (p *Prefetcher) Disconnect(owner common.Address) {
	p.cache.Invalidate(CollectionKey(owner))
	p.cache.Invalidate(OwnershipKey(owner))

	p.mu.Lock()
	p.gens[owner]++
	p.statuses[owner] = Status{State: StateIdle}
	p.mu.Unlock()
}

// Status reports the owner's current prefetch state.
func (p *Prefetcher) Status(owner common.Address) Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.statuses[owner]
	if !ok {
		return Status{State: StateIdle}
	}
	return s
}

func (p *Prefetcher) settle(owner common.Address, gen uint64, key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gens[owner] != gen {
		return // disconnected while fetching; result already invalidated
	}
	if err != nil {
		p.statuses[owner] = Status{State: StateFailed, Key: key, Reason: err.Error()}
		p.log.Warn("collection prefetch failed",
			zap.String("owner", owner.Hex()),
			zap.Error(err),
		)
		return
	}
	p.statuses[owner] = Status{State: StateReady, Key: key}
}
