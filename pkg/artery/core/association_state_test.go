package core

import (
	"testing"
	"time"

	"github.com/jabolina/go-artery/pkg/artery/types"
)

func TestInitialStateIsPendingIncarnationOne(t *testing.T) {
	s := newInitialState(newCompressionTable())
	if s.Incarnation != 1 {
		t.Fatalf("expected incarnation 1, got %d", s.Incarnation)
	}
	if s.RemoteAddr.fulfilled {
		t.Fatal("expected a pending promise for a fresh state")
	}
	if len(s.Quarantined) != 0 {
		t.Fatal("expected an empty quarantine set")
	}
}

func TestWithHandshakeFulfillsPendingPromise(t *testing.T) {
	s := newInitialState(newCompressionTable())
	peer := types.UniqueAddress{Address: types.Address{Host: "127.0.0.1", Port: 2552}, UID: 42}

	next := s.withHandshake(peer, newCompressionTable())
	if !next.RemoteAddr.fulfilled {
		t.Fatal("expected the promise to be fulfilled")
	}
	if next.RemoteAddr.value.UID != 42 {
		t.Fatalf("expected uid 42, got %d", next.RemoteAddr.value.UID)
	}
	if next.Incarnation != 1 {
		t.Fatalf("first fulfillment must not bump incarnation, got %d", next.Incarnation)
	}
}

func TestWithHandshakeReincarnatesOnDifferentUID(t *testing.T) {
	s := newInitialState(newCompressionTable())
	first := types.UniqueAddress{Address: types.Address{Host: "127.0.0.1", Port: 2552}, UID: 1}
	second := types.UniqueAddress{Address: types.Address{Host: "127.0.0.1", Port: 2552}, UID: 2}

	s = s.withHandshake(first, newCompressionTable())
	s = s.withQuarantine(time.Now(), noopCompression)
	next := s.withHandshake(second, newCompressionTable())

	if next.Incarnation != 2 {
		t.Fatalf("expected incarnation 2 after reincarnation, got %d", next.Incarnation)
	}
	if !next.isQuarantined(1) {
		t.Fatal("expected the prior uid to remain quarantined across reincarnation")
	}
	if next.isQuarantined(2) {
		t.Fatal("the new incarnation's uid must not be quarantined")
	}
	if next.RemoteAddr.value.UID != 2 {
		t.Fatalf("expected the fresh promise to hold uid 2, got %d", next.RemoteAddr.value.UID)
	}
}

func TestWithQuarantineReplacesOutboundCompressionWithSentinel(t *testing.T) {
	s := newInitialState(newCompressionTable())
	peer := types.UniqueAddress{Address: types.Address{Host: "127.0.0.1", Port: 2552}, UID: 7}
	s = s.withHandshake(peer, newCompressionTable())

	next := s.withQuarantine(time.Now(), noopCompression)
	if next.OutboundComp != noopCompression {
		t.Fatal("expected outbound compression to become the no-op sentinel")
	}
	if !next.isQuarantined(7) {
		t.Fatal("expected uid 7 recorded in the quarantine set")
	}
}

func TestQuarantineSetNeverLosesAnEntry(t *testing.T) {
	s := newInitialState(newCompressionTable())
	for uid := types.UID(1); uid <= 5; uid++ {
		peer := types.UniqueAddress{Address: types.Address{Host: "127.0.0.1", Port: 2552}, UID: uid}
		s = s.withHandshake(peer, newCompressionTable())
		s = s.withQuarantine(time.Now(), noopCompression)
	}
	for uid := types.UID(1); uid <= 5; uid++ {
		if !s.isQuarantined(uid) {
			t.Fatalf("expected uid %d to still be quarantined", uid)
		}
	}
}
