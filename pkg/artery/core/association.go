package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jabolina/go-artery/pkg/artery/media"
	"github.com/jabolina/go-artery/pkg/artery/pool"
	"github.com/jabolina/go-artery/pkg/artery/types"
	"github.com/jabolina/go-artery/pkg/artery/wildcard"
)

// outboundQueueCapacity bounds each per-stream outbound sink (spec §5:
// "UDP sinks may back-pressure up to giveUpSendAfter").
const outboundQueueCapacity = 1024

// Association is the per-peer facade of spec §4.5: owner of the current
// AssociationState and the three outbound pipelines.
type Association struct {
	local  types.UniqueAddress
	remote types.Address
	config *types.Config
	log    types.Logger
	events *types.EventBus

	state atomic.Pointer[AssociationState]

	inboundCompression *compressionTable

	driver  media.Driver
	matcher *wildcard.Matcher
	encoder *Encoder

	ordinaryQ chan *types.OutboundEnvelope
	largeQ    chan *types.OutboundEnvelope
	controlQ  chan types.ControlMessage

	controlSubject chan types.ControlMessage

	envelopePool *pool.ObjectPool[*types.OutboundEnvelope]

	kill    *KillSwitch
	invoker Invoker
	restart *RestartCounter

	sysDelivery *SystemMessageDelivery
	sysAcker    *SystemMessageAcker

	ordinaryBuffers *pool.EnvelopeBufferPool
	largeBuffers    *pool.EnvelopeBufferPool

	now func() time.Time
}

// NewAssociation constructs an Association for remote and launches its
// three outbound loops. Per the registry contract it is never constructed
// more than once for the same remote address.
func NewAssociation(local types.UniqueAddress, remote types.Address, cfg *types.Config, log types.Logger, events *types.EventBus, driver media.Driver, matcher *wildcard.Matcher, envelopePool *pool.ObjectPool[*types.OutboundEnvelope]) *Association {
	a := &Association{
		local:               local,
		remote:              remote,
		config:              cfg,
		log:                 log,
		events:              events,
		inboundCompression:  newCompressionTable(),
		driver:              driver,
		matcher:             matcher,
		encoder:             NewEncoder(),
		ordinaryQ:           make(chan *types.OutboundEnvelope, outboundQueueCapacity),
		largeQ:              make(chan *types.OutboundEnvelope, outboundQueueCapacity),
		controlQ:            make(chan types.ControlMessage, outboundQueueCapacity),
		controlSubject:      make(chan types.ControlMessage, 256),
		envelopePool:        envelopePool,
		kill:                NewKillSwitch(),
		invoker:             InvokerInstance(),
		restart:             NewRestartCounter(cfg.RestartTimeout, cfg.MaxRestarts),
		ordinaryBuffers:     pool.NewOrdinaryBufferPool(),
		largeBuffers:        pool.NewLargeBufferPool(),
		now:                 time.Now,
	}
	a.state.Store(newInitialState(newCompressionTable()))
	a.sysDelivery = NewSystemMessageDelivery(a)
	a.sysAcker = NewSystemMessageAcker(a)

	a.invoker.Spawn(func() { a.runOutbound(types.StreamControl) })
	a.invoker.Spawn(func() { a.runOutbound(types.StreamOrdinary) })
	a.invoker.Spawn(func() { a.runOutbound(types.StreamLarge) })
	a.invoker.Spawn(func() { a.sysDelivery.Run(a.kill) })
	return a
}

// SystemMessageDelivery exposes the sender-side reliable-delivery layer
// for this peer (spec §4.9).
func (a *Association) SystemMessageDelivery() *SystemMessageDelivery { return a.sysDelivery }

// SystemMessageAcker exposes the receiver-side reliable-delivery layer
// for this peer (spec §4.9).
func (a *Association) SystemMessageAcker() *SystemMessageAcker { return a.sysAcker }

// InboundCompression is this peer's always-growing decompression table,
// owned directly (not CAS'd, since it only ever accumulates).
func (a *Association) InboundCompression() InboundCompression { return a.inboundCompression }

// State returns the current immutable snapshot.
func (a *Association) State() *AssociationState {
	return a.state.Load()
}

// RemoteUID returns the peer's UID once its handshake promise is
// fulfilled, and false while it is still pending.
func (a *Association) RemoteUID() (types.UID, bool) {
	s := a.state.Load()
	if !s.RemoteAddr.fulfilled {
		return 0, false
	}
	return s.RemoteAddr.value.UID, true
}

// Send enqueues a user message onto the ordinary or large sink, chosen by
// matching recipient.Path() against the large-message wildcard matcher.
func (a *Association) Send(msg interface{}, sender, recipient types.Recipient) {
	env := a.envelopePool.Acquire()
	env.Sender = sender
	env.Recipient = recipient
	env.RecipientAddr = a.remote
	env.Message = msg

	q := a.ordinaryQ
	if recipient != nil && a.matcher.Matches(recipient.Path()) {
		q = a.largeQ
	}

	select {
	case q <- env:
	case <-time.After(a.config.GiveUpSendAfter):
		a.log.Warnf("artery: give up sending to %s after %s", a.remote, a.config.GiveUpSendAfter)
		a.events.Publish(types.Dropped{Reason: "give-up-send-after"})
		a.releaseEnvelope(env)
	}
}

// SendControl enqueues a control message onto the control sink.
func (a *Association) SendControl(msg types.ControlMessage) {
	select {
	case a.controlQ <- msg:
	case <-time.After(a.config.GiveUpSendAfter):
		a.log.Warnf("artery: give up sending control message to %s", a.remote)
		a.events.Publish(types.Dropped{Reason: "control-give-up"})
	}
}

// ControlSubject returns this association's control-message channel
// (spec §6's "control_subject" collaborator handle). Nothing in the core
// writes to or reads from it: the inbound control pipeline hands
// SystemMessageAck straight to SystemMessageDelivery.Ack and other
// control messages to the ControlJunction.
func (a *Association) ControlSubject() chan<- types.ControlMessage {
	return a.controlSubject
}

// Quarantine transitions this Association into the quarantined state if
// uid is unspecified or matches the current peer incarnation (spec §4.5,
// §4.7). Returns false if the call did not apply (stale uid).
func (a *Association) Quarantine(reason string, uid *types.UID) bool {
	for {
		cur := a.state.Load()
		if uid != nil {
			if !cur.RemoteAddr.fulfilled || cur.RemoteAddr.value.UID != *uid {
				return false
			}
		}
		next := cur.withQuarantine(a.now(), noopCompression)
		if a.state.CompareAndSwap(cur, next) {
			a.log.Warnf("artery: quarantining %s: %s", a.remote, reason)
			a.events.Publish(types.QuarantinedEvent{Remote: types.UniqueAddress{Address: a.remote, UID: quarantinedUID(cur)}, Reason: reason})
			return true
		}
	}
}

func quarantinedUID(s *AssociationState) types.UID {
	if s.RemoteAddr.fulfilled {
		return s.RemoteAddr.value.UID
	}
	return 0
}

// CompleteHandshake fulfills the pending UID promise, or starts a new
// incarnation if peer names a different UID than the one already
// fulfilled (spec §4.5's reincarnation transition).
func (a *Association) CompleteHandshake(peer types.UniqueAddress) {
	for {
		cur := a.state.Load()
		next := cur.withHandshake(peer, newCompressionTable())
		if next == cur {
			return
		}
		if a.state.CompareAndSwap(cur, next) {
			return
		}
	}
}

// bufferPoolFor picks the buffer pool sized for stream's frame cap (spec
// §4.1): control and ordinary share the smaller size, large gets its own.
func (a *Association) bufferPoolFor(stream types.StreamID) *pool.EnvelopeBufferPool {
	if stream == types.StreamLarge {
		return a.largeBuffers
	}
	return a.ordinaryBuffers
}

// offerFrame acquires a pooled buffer sized for stream, copies frame into
// it, offers it to pub, and releases the buffer back to the pool
// regardless of outcome (spec §4.1's "acquire at stream head, release at
// stream terminal").
func (a *Association) offerFrame(pub media.Publication, stream types.StreamID, frame []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.GiveUpSendAfter)
	defer cancel()

	bufferPool := a.bufferPoolFor(stream)
	buf, err := bufferPool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer bufferPool.Release(buf)

	if len(frame) > len(buf) {
		return fmt.Errorf("artery: frame of %d bytes exceeds %s stream's %d byte cap", len(frame), stream, len(buf))
	}
	n := copy(buf, frame)
	return pub.Offer(ctx, buf[:n])
}

func (a *Association) releaseEnvelope(env *types.OutboundEnvelope) {
	if env.Reusable() {
		a.envelopePool.Release(env)
	}
}

// Shutdown pulls the kill switch, stopping all three outbound loops, the
// handshake injector and the system-message resend loop. Envelopes still
// queued at that point are not sent.
func (a *Association) Shutdown() {
	a.kill.Pull()
}

func (a *Association) runOutbound(stream types.StreamID) {
	for {
		if err := a.outboundLoop(stream); err == nil {
			return
		}
		if a.kill.IsPulled() {
			return
		}
		if !a.restart.Restart() {
			a.log.Errorf("artery: outbound pipeline %s to %s exceeded restart budget", stream, a.remote)
			return
		}
		a.log.Warnf("artery: restarting outbound pipeline %s to %s", stream, a.remote)
	}
}

// outboundLoop runs one incarnation of the stream's send loop until the
// kill switch is pulled (clean exit, nil) or a handshake timeout fails it
// (spec §4.6, triggers the restart wrapped around this call).
func (a *Association) outboundLoop(stream types.StreamID) error {
	var q <-chan *types.OutboundEnvelope
	switch stream {
	case types.StreamOrdinary:
		q = a.ordinaryQ
	case types.StreamLarge:
		q = a.largeQ
	}

	pub, err := a.driver.Publication(a.remote, stream)
	if err != nil {
		return err
	}

	if stream == types.StreamControl {
		return a.controlOutboundLoop(pub)
	}

	for {
		select {
		case <-a.kill.Done():
			return nil
		case env := <-q:
			if err := a.sendUserEnvelope(pub, stream, env); err != nil {
				return err
			}
		}
	}
}

func (a *Association) sendUserEnvelope(pub media.Publication, stream types.StreamID, env *types.OutboundEnvelope) error {
	defer a.releaseEnvelope(env)

	if err := a.awaitHandshake(); err != nil {
		a.events.Publish(types.Dropped{Reason: "handshake-timeout"})
		return err
	}

	state := a.state.Load()
	if uid, ok := a.RemoteUID(); ok && state.isQuarantined(uid) {
		// Silent for outbound: a quarantined peer's user messages are
		// dropped without failing the pipeline (spec §7).
		a.events.Publish(types.Dropped{Reason: "quarantined-peer"})
		return nil
	}

	recipientPath := ""
	if env.Recipient != nil {
		recipientPath = env.Recipient.Path()
	}
	senderPath := ""
	if env.Sender != nil {
		senderPath = env.Sender.Path()
	}
	payload, err := json.Marshal(env.Message)
	if err != nil {
		a.log.Errorf("artery: marshalling payload for %s: %v", a.remote, err)
		return nil
	}
	frame, err := a.encoder.Encode(a.local.UID, env.Serializer, senderPath, recipientPath, "", payload, state.OutboundComp)
	if err != nil {
		a.log.Errorf("artery: encode failed for %s: %v", a.remote, err)
		return nil
	}

	if err := a.offerFrame(pub, stream, frame); err != nil {
		a.log.Warnf("artery: offer to %s failed: %v", a.remote, err)
		a.events.Publish(types.Dropped{Reason: "offer-failed"})
	}
	return nil
}

func (a *Association) controlOutboundLoop(pub media.Publication) error {
	injector := newHandshakeInjector(a)
	a.invoker.Spawn(func() { injector.run(a.kill) })

	for {
		select {
		case <-a.kill.Done():
			return nil
		case msg := <-a.controlQ:
			payload, err := encodeControl(msg)
			if err != nil {
				a.log.Errorf("artery: control encode failed: %v", err)
				continue
			}
			frame, err := a.encoder.Encode(a.local.UID, 0, "", "", "control", payload, a.state.Load().OutboundComp)
			if err != nil {
				a.log.Errorf("artery: control frame encode failed: %v", err)
				continue
			}
			if err := a.offerFrame(pub, types.StreamControl, frame); err != nil {
				a.log.Warnf("artery: control offer to %s failed: %v", a.remote, err)
			}
		}
	}
}

// awaitHandshake blocks until the remote UID promise is fulfilled or
// config.HandshakeTimeout elapses.
func (a *Association) awaitHandshake() error {
	if a.state.Load().RemoteAddr.fulfilled {
		return nil
	}
	deadline := time.After(a.config.HandshakeTimeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			return &HandshakeTimeoutError{Remote: a.remote}
		case <-a.kill.Done():
			return &HandshakeTimeoutError{Remote: a.remote}
		case <-ticker.C:
			if a.state.Load().RemoteAddr.fulfilled {
				return nil
			}
		}
	}
}
