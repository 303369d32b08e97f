package core

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jabolina/go-artery/pkg/artery/media"
	"github.com/jabolina/go-artery/pkg/artery/pool"
	"github.com/jabolina/go-artery/pkg/artery/types"
	"github.com/jabolina/go-artery/pkg/artery/wildcard"
)

// AssociationRegistry is spec §4.4: address- and UID-indexed maps over
// Association, with idempotent lazy creation. Concurrent association(addr)
// calls for the same address are coalesced with singleflight so they
// return the identical instance (P3).
type AssociationRegistry struct {
	local  types.UniqueAddress
	config *types.Config
	log    types.Logger
	events *types.EventBus

	driver       media.Driver
	matcher      *wildcard.Matcher
	envelopePool *pool.ObjectPool[*types.OutboundEnvelope]

	group singleflight.Group

	mu       sync.RWMutex
	byAddr   map[string]*Association
	byUID    map[types.UID]*Association
}

func NewAssociationRegistry(local types.UniqueAddress, cfg *types.Config, log types.Logger, events *types.EventBus, driver media.Driver, matcher *wildcard.Matcher, envelopePool *pool.ObjectPool[*types.OutboundEnvelope]) *AssociationRegistry {
	return &AssociationRegistry{
		local:        local,
		config:       cfg,
		log:          log,
		events:       events,
		driver:       driver,
		matcher:      matcher,
		envelopePool: envelopePool,
		byAddr:       make(map[string]*Association),
		byUID:        make(map[types.UID]*Association),
	}
}

// Association returns the Association for addr, creating it on first
// reference. Calling it with the local address is a caller error (spec
// §4.4); the registry does not guard against it since the core never does
// this itself.
func (r *AssociationRegistry) Association(addr types.Address) *Association {
	key := addr.String()

	r.mu.RLock()
	if a, ok := r.byAddr[key]; ok {
		r.mu.RUnlock()
		return a
	}
	r.mu.RUnlock()

	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if a, ok := r.byAddr[key]; ok {
			return a, nil
		}
		a := NewAssociation(r.local, addr, r.config, r.log, r.events, r.driver, r.matcher, r.envelopePool)
		r.byAddr[key] = a
		return a, nil
	})
	return v.(*Association)
}

// ByUID returns the Association whose handshake has completed with uid,
// or nil if no peer has registered that UID yet.
func (r *AssociationRegistry) ByUID(uid types.UID) *Association {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUID[uid]
}

// SetUID associates peer's UID with its address-indexed Association,
// creating the Association if needed. Idempotent.
func (r *AssociationRegistry) SetUID(peer types.UniqueAddress) *Association {
	a := r.Association(peer.Address)
	a.CompleteHandshake(peer)

	r.mu.Lock()
	r.byUID[peer.UID] = a
	r.mu.Unlock()
	return a
}

// All returns a snapshot of every Association created so far.
func (r *AssociationRegistry) All() []*Association {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Association, 0, len(r.byAddr))
	for _, a := range r.byAddr {
		out = append(out, a)
	}
	return out
}
