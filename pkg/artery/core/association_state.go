package core

import (
	"time"

	"github.com/jabolina/go-artery/pkg/artery/types"
)

// uidPromise is a one-shot future for the remote peer's UniqueAddress,
// fulfilled exactly once per incarnation by the handshake.
type uidPromise struct {
	fulfilled bool
	value     types.UniqueAddress
	waiters   []chan types.UniqueAddress
}

func newUIDPromise() *uidPromise {
	return &uidPromise{}
}

// fulfill returns a new promise fulfilled with addr; p itself is not
// modified. The waiters field is never populated or signalled: readers
// poll fulfilled on the current state (see Association.awaitHandshake).
// Calling it twice on the same promise is a caller error; associationState
// never reuses one.
func (p *uidPromise) fulfill(addr types.UniqueAddress) *uidPromise {
	next := &uidPromise{fulfilled: true, value: addr}
	return next
}

// AssociationState is the immutable per-peer snapshot of spec §3, swapped
// wholesale via atomic.Pointer CAS by Association.
type AssociationState struct {
	Incarnation  uint32
	RemoteAddr   *uidPromise
	Quarantined  map[types.UID]time.Time
	OutboundComp OutboundCompression
}

// newInitialState is the "Initialized" state of the §4.5 state machine:
// incarnation 1, a pending UID promise, empty quarantine set.
func newInitialState(outbound OutboundCompression) *AssociationState {
	return &AssociationState{
		Incarnation:  1,
		RemoteAddr:   newUIDPromise(),
		Quarantined:  make(map[types.UID]time.Time),
		OutboundComp: outbound,
	}
}

// withHandshake returns the successor state after a HandshakeRsp/Req names
// peer as the remote incarnation. If the promise is already fulfilled with
// a different UID this is a reincarnation: incarnation increments, a fresh
// promise and compression table are installed, and the quarantine set
// carries forward (old UIDs stay quarantined for the Association's life).
func (s *AssociationState) withHandshake(peer types.UniqueAddress, freshCompression OutboundCompression) *AssociationState {
	if !s.RemoteAddr.fulfilled {
		next := &AssociationState{
			Incarnation:  s.Incarnation,
			RemoteAddr:   s.RemoteAddr.fulfill(peer),
			Quarantined:  s.Quarantined,
			OutboundComp: s.OutboundComp,
		}
		return next
	}
	if s.RemoteAddr.value.UID == peer.UID {
		return s
	}
	return &AssociationState{
		Incarnation:  s.Incarnation + 1,
		RemoteAddr:   newUIDPromise().fulfill(peer),
		Quarantined:  copyQuarantine(s.Quarantined),
		OutboundComp: freshCompression,
	}
}

// withQuarantine returns the successor "Quarantined" state: the current
// peer UID (if any) is recorded with a monotonic timestamp and the
// outbound compression table is replaced by the no-op sentinel.
func (s *AssociationState) withQuarantine(now time.Time, noop OutboundCompression) *AssociationState {
	q := copyQuarantine(s.Quarantined)
	if s.RemoteAddr.fulfilled {
		q[s.RemoteAddr.value.UID] = now
	}
	return &AssociationState{
		Incarnation:  s.Incarnation,
		RemoteAddr:   s.RemoteAddr,
		Quarantined:  q,
		OutboundComp: noop,
	}
}

// isQuarantined reports whether uid was ever banned on this Association.
func (s *AssociationState) isQuarantined(uid types.UID) bool {
	_, ok := s.Quarantined[uid]
	return ok
}

func copyQuarantine(m map[types.UID]time.Time) map[types.UID]time.Time {
	cp := make(map[types.UID]time.Time, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
