// Package media is the out-of-scope collaborator boundary for the
// underlying UDP publication/subscription primitives (spec §1's "media
// driver and UDP publication/subscription primitives" out-of-scope item).
// The core only depends on these interfaces; ReltDriver is the concrete
// adapter over github.com/jabolina/relt.
package media

import (
	"context"

	"github.com/jabolina/go-artery/pkg/artery/types"
)

// InboundFrame is one received datagram tagged with its stream and the
// peer address it arrived from, handed to a Transport's inbound pipeline.
type InboundFrame struct {
	Stream types.StreamID
	From   types.Address
	Data   []byte
}

// Publication is a send-only handle to one (peer, stream) channel.
type Publication interface {
	Offer(ctx context.Context, data []byte) error
	Close() error
}

// Subscription is a receive-only handle fanning in every peer's traffic
// for one stream id.
type Subscription interface {
	Frames() <-chan InboundFrame
	Errors() <-chan error
	Close() error
}

// Driver is the media driver lifecycle and publication/subscription
// factory a Transport depends on.
type Driver interface {
	Start(ctx context.Context) error
	Stop() error

	// Publication returns the outbound handle for sending to remote on
	// the given stream, creating the underlying transport lazily.
	Publication(remote types.Address, stream types.StreamID) (Publication, error)

	// Subscription returns the shared inbound handle for the given
	// stream, fed by every peer this driver has opened.
	Subscription(stream types.StreamID) (Subscription, error)

	// Errors surfaces media-driver-level errors for the error-log
	// poller (spec §4.11), independent of any one stream's Subscription.
	Errors() <-chan error
}
