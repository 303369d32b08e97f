package core

import (
	"context"
	"sync"
	"testing"

	"github.com/jabolina/go-artery/pkg/artery/media"
	"github.com/jabolina/go-artery/pkg/artery/types"
)

// testLogger discards everything; assertions happen via *testing.T.
type testLogger struct{}

func newTestLogger() types.Logger { return testLogger{} }

func (testLogger) Info(...interface{})           {}
func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Warn(...interface{})           {}
func (testLogger) Warnf(string, ...interface{})  {}
func (testLogger) Error(...interface{})          {}
func (testLogger) Errorf(string, ...interface{}) {}
func (testLogger) Debug(...interface{})          {}
func (testLogger) Debugf(string, ...interface{}) {}
func (testLogger) Fatal(...interface{})          {}
func (testLogger) Fatalf(string, ...interface{}) {}
func (testLogger) ToggleDebug(v bool) bool       { return v }

var _ types.Logger = testLogger{}

// testDriver is an in-memory media.Driver: every Publication for a given
// stream writes directly into that stream's shared Subscription channel,
// so tests can exercise association/codec wiring without a real socket.
type testDriver struct {
	mu   sync.Mutex
	subs map[types.StreamID]*testSubscription
	errs chan error
}

func newTestDriver() *testDriver {
	return &testDriver{subs: make(map[types.StreamID]*testSubscription), errs: make(chan error, 4)}
}

func (d *testDriver) Start(context.Context) error { return nil }
func (d *testDriver) Stop() error                 { return nil }
func (d *testDriver) Errors() <-chan error         { return d.errs }

func (d *testDriver) sub(stream types.StreamID) *testSubscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.subs[stream]
	if !ok {
		s = &testSubscription{frames: make(chan media.InboundFrame, 256), errs: make(chan error, 4)}
		d.subs[stream] = s
	}
	return s
}

func (d *testDriver) Publication(remote types.Address, stream types.StreamID) (media.Publication, error) {
	return &testPublication{sub: d.sub(stream), from: remote}, nil
}

func (d *testDriver) Subscription(stream types.StreamID) (media.Subscription, error) {
	return d.sub(stream), nil
}

type testPublication struct {
	sub  *testSubscription
	from types.Address
}

func (p *testPublication) Offer(ctx context.Context, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case p.sub.frames <- media.InboundFrame{Stream: 0, From: p.from, Data: cp}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *testPublication) Close() error { return nil }

type testSubscription struct {
	frames chan media.InboundFrame
	errs   chan error
}

func (s *testSubscription) Frames() <-chan media.InboundFrame { return s.frames }
func (s *testSubscription) Errors() <-chan error              { return s.errs }
func (s *testSubscription) Close() error                      { return nil }

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
