package artery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/go-artery/pkg/artery/definition"
	"github.com/jabolina/go-artery/pkg/artery/media"
	"github.com/jabolina/go-artery/pkg/artery/types"
)

// memNetwork is an in-memory stand-in for the UDP media driver: each
// (address, stream) pair has its own mailbox, exactly mirroring the real
// ReltDriver's one-relt-instance-per-local-stream design, just without a
// socket underneath.
type memNetwork struct {
	mu    sync.Mutex
	boxes map[string]chan media.InboundFrame
}

func newMemNetwork() *memNetwork {
	return &memNetwork{boxes: make(map[string]chan media.InboundFrame)}
}

func (n *memNetwork) box(addr types.Address, stream types.StreamID) chan media.InboundFrame {
	key := fmt.Sprintf("%s#%s", addr.String(), stream)
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.boxes[key]
	if !ok {
		b = make(chan media.InboundFrame, 256)
		n.boxes[key] = b
	}
	return b
}

type memDriver struct {
	net   *memNetwork
	local types.Address
}

func (d *memDriver) Start(context.Context) error { return nil }
func (d *memDriver) Stop() error                 { return nil }
func (d *memDriver) Errors() <-chan error         { return make(chan error) }

func (d *memDriver) Publication(remote types.Address, stream types.StreamID) (media.Publication, error) {
	return &memPublication{box: d.net.box(remote, stream), from: d.local}, nil
}

func (d *memDriver) Subscription(stream types.StreamID) (media.Subscription, error) {
	return &memSubscription{box: d.net.box(d.local, stream)}, nil
}

type memPublication struct {
	box  chan media.InboundFrame
	from types.Address
}

func (p *memPublication) Offer(ctx context.Context, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case p.box <- media.InboundFrame{From: p.from, Data: cp}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *memPublication) Close() error { return nil }

type memSubscription struct{ box chan media.InboundFrame }

func (s *memSubscription) Frames() <-chan media.InboundFrame { return s.box }
func (s *memSubscription) Errors() <-chan error              { return make(chan error) }
func (s *memSubscription) Close() error                      { return nil }

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []interface{}
}

func (d *recordingDispatcher) Dispatch(env *types.InboundEnvelope) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, env.Message)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.messages)
}

func newTestTransport(t *testing.T, net *memNetwork, port int, dispatcher types.Dispatcher) *Transport {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.ArteryHostname = "127.0.0.1"
	cfg.ArteryPort = port
	cfg.InjectHandshakeInterval = 20 * time.Millisecond
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.GiveUpSendAfter = 2 * time.Second
	cfg.ErrorLogPollFirstDelay = time.Hour
	cfg.ErrorLogPollInterval = time.Hour

	log := definition.NewDefaultLogger()
	tr, err := NewTransport(cfg, log, dispatcher)
	if err != nil {
		t.Fatalf("constructing transport: %v", err)
	}
	tr.newDriver = func(local types.Address) media.Driver {
		return &memDriver{net: net, local: local}
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("starting transport: %v", err)
	}
	return tr
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestTransportHandshakeAndDeliver(t *testing.T) {
	net := newMemNetwork()
	dispatchB := &recordingDispatcher{}

	a := newTestTransport(t, net, 3001, &recordingDispatcher{})
	b := newTestTransport(t, net, 3002, dispatchB)
	defer a.Shutdown()
	defer b.Shutdown()

	a.Send("hello", nil, nil, b.LocalAddress().Address)

	waitFor(t, 2*time.Second, func() bool { return dispatchB.count() == 1 })

	assocToB := a.registry.Association(b.LocalAddress().Address)
	waitFor(t, time.Second, func() bool {
		_, ok := assocToB.RemoteUID()
		return ok
	})
	uid, _ := assocToB.RemoteUID()
	if uid != b.LocalAddress().UID {
		t.Fatal("expected A's association to have learned B's uid")
	}
}

func TestTransportQuarantineStopsDelivery(t *testing.T) {
	net := newMemNetwork()
	dispatchB := &recordingDispatcher{}

	a := newTestTransport(t, net, 3011, &recordingDispatcher{})
	b := newTestTransport(t, net, 3012, dispatchB)
	defer a.Shutdown()
	defer b.Shutdown()

	a.Send("first", nil, nil, b.LocalAddress().Address)
	waitFor(t, 2*time.Second, func() bool { return dispatchB.count() == 1 })

	assocToB := a.registry.Association(b.LocalAddress().Address)
	uid, _ := assocToB.RemoteUID()
	a.Quarantine(b.LocalAddress().Address, &uid, "test quarantine")

	a.Send("second", nil, nil, b.LocalAddress().Address)
	time.Sleep(200 * time.Millisecond)
	if dispatchB.count() != 1 {
		t.Fatalf("expected no further delivery after quarantine, got %d messages", dispatchB.count())
	}
}

func TestTransportGoroutinesDoNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	net := newMemNetwork()
	a := newTestTransport(t, net, 3021, &recordingDispatcher{})
	b := newTestTransport(t, net, 3022, &recordingDispatcher{})

	a.Send("ping", nil, nil, b.LocalAddress().Address)
	time.Sleep(100 * time.Millisecond)

	a.Shutdown()
	b.Shutdown()
	time.Sleep(100 * time.Millisecond)
}
