package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/jabolina/relt/pkg/relt"

	"github.com/jabolina/go-artery/pkg/artery/types"
)

// ReltDriver adapts github.com/jabolina/relt — a reliable multicast-group
// transport — into the per-stream point-to-point model artery needs. Each
// local stream binds its own relt exchange group named after this node's
// address; sends target the remote peer's group computed the same way on
// both sides, broadcasting into a destination group address distinct from
// the relt instance's own listening group rather than a pair-keyed channel
// (see DESIGN.md): a pair-keyed group cannot receive an unsolicited first
// message, since neither side would have joined it before the first send.
type ReltDriver struct {
	local types.Address
	log   types.Logger
	errs  chan error

	mu       sync.Mutex
	channels map[types.StreamID]*reltChannel
	subs     map[types.StreamID]*fanInSubscription
}

func NewReltDriver(local types.Address, log types.Logger) *ReltDriver {
	return &ReltDriver{
		local:    local,
		log:      log,
		errs:     make(chan error, 16),
		channels: make(map[types.StreamID]*reltChannel),
		subs:     make(map[types.StreamID]*fanInSubscription),
	}
}

func groupAddress(addr types.Address, stream types.StreamID) relt.GroupAddress {
	return relt.GroupAddress(fmt.Sprintf("%s:%d#%s", addr.Host, addr.Port, stream))
}

// Start eagerly opens the channel for every well-known stream so the
// control stream in particular is already listening before any peer can
// possibly reach it.
func (d *ReltDriver) Start(ctx context.Context) error {
	for _, stream := range []types.StreamID{types.StreamControl, types.StreamOrdinary, types.StreamLarge} {
		if _, err := d.ensureChannel(stream); err != nil {
			return err
		}
	}
	return nil
}

func (d *ReltDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for _, ch := range d.channels {
		if err := ch.relt.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (d *ReltDriver) Errors() <-chan error { return d.errs }

func (d *ReltDriver) Publication(remote types.Address, stream types.StreamID) (Publication, error) {
	ch, err := d.ensureChannel(stream)
	if err != nil {
		return nil, err
	}
	return &reltPublication{relt: ch.relt, target: groupAddress(remote, stream)}, nil
}

func (d *ReltDriver) Subscription(stream types.StreamID) (Subscription, error) {
	if _, err := d.ensureChannel(stream); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ensureSubscriptionLocked(stream), nil
}

func (d *ReltDriver) ensureChannel(stream types.StreamID) (*reltChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[stream]; ok {
		return ch, nil
	}
	conf := relt.DefaultReltConfiguration()
	conf.Name = fmt.Sprintf("%s-%s", d.local.String(), stream)
	conf.Exchange = groupAddress(d.local, stream)
	r, err := relt.NewRelt(*conf)
	if err != nil {
		return nil, err
	}
	ch := &reltChannel{relt: r}
	d.channels[stream] = ch
	sub := d.ensureSubscriptionLocked(stream)
	go d.pump(stream, ch, sub)
	return ch, nil
}

func (d *ReltDriver) ensureSubscriptionLocked(stream types.StreamID) *fanInSubscription {
	if sub, ok := d.subs[stream]; ok {
		return sub
	}
	sub := newFanInSubscription(stream)
	d.subs[stream] = sub
	return sub
}

func (d *ReltDriver) pump(stream types.StreamID, ch *reltChannel, sub *fanInSubscription) {
	listener, err := ch.relt.Consume()
	if err != nil {
		d.errs <- err
		return
	}
	for recv := range listener {
		if recv.Error != nil {
			select {
			case sub.errs <- recv.Error:
			default:
			}
			continue
		}
		if recv.Data == nil {
			continue
		}
		sub.frames <- InboundFrame{
			Stream: stream,
			From: types.Address{
				Protocol: d.local.Protocol,
				System:   d.local.System,
				Host:     recv.Origin,
				Port:     d.local.Port,
			},
			Data: recv.Data,
		}
	}
}

type reltChannel struct {
	relt *relt.Relt
}

type reltPublication struct {
	relt   *relt.Relt
	target relt.GroupAddress
}

func (p *reltPublication) Offer(ctx context.Context, data []byte) error {
	return p.relt.Broadcast(ctx, relt.Send{Address: p.target, Data: data})
}

func (p *reltPublication) Close() error { return nil }

type fanInSubscription struct {
	stream types.StreamID
	frames chan InboundFrame
	errs   chan error
}

func newFanInSubscription(stream types.StreamID) *fanInSubscription {
	return &fanInSubscription{
		stream: stream,
		frames: make(chan InboundFrame, 256),
		errs:   make(chan error, 16),
	}
}

func (s *fanInSubscription) Frames() <-chan InboundFrame { return s.frames }
func (s *fanInSubscription) Errors() <-chan error        { return s.errs }
func (s *fanInSubscription) Close() error                { return nil }
