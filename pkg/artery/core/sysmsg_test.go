package core

import (
	"testing"
	"time"

	"github.com/jabolina/go-artery/pkg/artery/pool"
	"github.com/jabolina/go-artery/pkg/artery/types"
	"github.com/jabolina/go-artery/pkg/artery/wildcard"
)

func newTestAssociation(t *testing.T) *Association {
	t.Helper()
	local := types.UniqueAddress{Address: types.Address{Host: "127.0.0.1", Port: 2551}, UID: 1}
	remote := types.Address{Host: "127.0.0.1", Port: 2552}
	cfg := types.DefaultConfig()
	cfg.SysMsgBufferSize = 4
	cfg.SystemMessageResendInterval = time.Hour
	cfg.GiveUpSendAfter = 2 * time.Second
	envPool := pool.NewObjectPool(4, func() *types.OutboundEnvelope {
		e := &types.OutboundEnvelope{}
		e.MarkPooled()
		return e
	})
	return NewAssociation(local, remote, cfg, newTestLogger(), types.NewEventBus(), newTestDriver(), wildcard.New(), envPool)
}

func TestSystemMessageDeliveryAssignsIncreasingSequences(t *testing.T) {
	assoc := newTestAssociation(t)
	defer assoc.Shutdown()

	for i := 0; i < 3; i++ {
		if err := assoc.SystemMessageDelivery().Deliver("hello"); err != nil {
			t.Fatalf("unexpected error delivering message %d: %v", i, err)
		}
	}
	if assoc.sysDelivery.nextSeq != 4 {
		t.Fatalf("expected next sequence 4 after 3 deliveries, got %d", assoc.sysDelivery.nextSeq)
	}
}

func TestSystemMessageDeliveryFailsWhenBufferFull(t *testing.T) {
	assoc := newTestAssociation(t)
	defer assoc.Shutdown()

	for i := 0; i < 4; i++ {
		requireNoError(t, assoc.SystemMessageDelivery().Deliver(i))
	}
	if err := assoc.SystemMessageDelivery().Deliver("overflow"); err != ErrSystemMessageBufferFull {
		t.Fatalf("expected ErrSystemMessageBufferFull, got %v", err)
	}
}

func TestSystemMessageDeliveryAckClearsBuffer(t *testing.T) {
	assoc := newTestAssociation(t)
	defer assoc.Shutdown()

	for i := 0; i < 3; i++ {
		requireNoError(t, assoc.SystemMessageDelivery().Deliver(i))
	}
	assoc.SystemMessageDelivery().Ack(2)
	if len(assoc.sysDelivery.buffer) != 1 {
		t.Fatalf("expected 1 entry left after acking seq 2, got %d", len(assoc.sysDelivery.buffer))
	}
	if _, ok := assoc.sysDelivery.buffer[3]; !ok {
		t.Fatal("expected seq 3 to remain unacked")
	}
}

func TestSystemMessageAckerDeliversInOrderDespiteGaps(t *testing.T) {
	assoc := newTestAssociation(t)
	defer assoc.Shutdown()

	var delivered []interface{}
	deliver := func(msg interface{}) { delivered = append(delivered, msg) }

	acker := assoc.SystemMessageAcker()
	acker.Receive(types.SystemMessageEnvelope{Seq: 2, Message: "b"}, deliver)
	if len(delivered) != 0 {
		t.Fatal("seq 2 must be buffered until seq 1 arrives")
	}
	acker.Receive(types.SystemMessageEnvelope{Seq: 1, Message: "a"}, deliver)
	acker.Receive(types.SystemMessageEnvelope{Seq: 3, Message: "c"}, deliver)

	if len(delivered) != 3 {
		t.Fatalf("expected all 3 messages delivered, got %d", len(delivered))
	}
	for i, want := range []string{"a", "b", "c"} {
		if delivered[i] != want {
			t.Fatalf("expected delivery order a,b,c; got %v at index %d", delivered[i], i)
		}
	}
}

func TestSystemMessageAckerDiscardsAlreadyAcked(t *testing.T) {
	assoc := newTestAssociation(t)
	defer assoc.Shutdown()

	var delivered int
	deliver := func(interface{}) { delivered++ }

	acker := assoc.SystemMessageAcker()
	acker.Receive(types.SystemMessageEnvelope{Seq: 1, Message: "a"}, deliver)
	acker.Receive(types.SystemMessageEnvelope{Seq: 1, Message: "a-retransmit"}, deliver)

	if delivered != 1 {
		t.Fatalf("expected the retransmitted duplicate to be discarded, delivered=%d", delivered)
	}
}
