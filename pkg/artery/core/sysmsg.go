package core

import (
	"errors"
	"sync"
	"time"

	"github.com/jabolina/go-artery/pkg/artery/types"
)

// ErrSystemMessageBufferFull is returned by SystemMessageDelivery.Deliver
// when the unacked buffer is at SysMsgBufferSize; spec §4.9 requires the
// caller to quarantine the peer on this condition.
var ErrSystemMessageBufferFull = errors.New("artery: system message buffer full")

// SystemMessageDelivery is the sender side of spec §4.9: a strictly
// increasing per-association sequence, a bounded unacked buffer, and
// periodic retransmission of everything still unacked.
type SystemMessageDelivery struct {
	assoc *Association

	mu       sync.Mutex
	nextSeq  uint64
	buffer   map[uint64]types.SystemMessageEnvelope
	capacity int
}

func NewSystemMessageDelivery(assoc *Association) *SystemMessageDelivery {
	return &SystemMessageDelivery{
		assoc:    assoc,
		nextSeq:  1,
		buffer:   make(map[uint64]types.SystemMessageEnvelope),
		capacity: assoc.config.SysMsgBufferSize,
	}
}

// Deliver assigns the next sequence number, buffers the envelope, and
// sends it on the control stream.
func (d *SystemMessageDelivery) Deliver(msg interface{}) error {
	d.mu.Lock()
	if len(d.buffer) >= d.capacity {
		d.mu.Unlock()
		return ErrSystemMessageBufferFull
	}
	seq := d.nextSeq
	d.nextSeq++
	env := types.SystemMessageEnvelope{Seq: seq, From: d.assoc.local, Message: msg}
	d.buffer[seq] = env
	d.mu.Unlock()

	d.assoc.SendControl(env)
	return nil
}

// Ack removes every buffered entry with seq <= acked (cumulative ack).
func (d *SystemMessageDelivery) Ack(acked uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for seq := range d.buffer {
		if seq <= acked {
			delete(d.buffer, seq)
		}
	}
}

// Run resends every still-unacked envelope every
// SystemMessageResendInterval until kill is pulled.
func (d *SystemMessageDelivery) Run(kill *KillSwitch) {
	ticker := time.NewTicker(d.assoc.config.SystemMessageResendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-kill.Done():
			return
		case <-ticker.C:
			d.resendUnacked()
		}
	}
}

func (d *SystemMessageDelivery) resendUnacked() {
	d.mu.Lock()
	pending := make([]types.SystemMessageEnvelope, 0, len(d.buffer))
	for _, env := range d.buffer {
		pending = append(pending, env)
	}
	d.mu.Unlock()

	for _, env := range pending {
		d.assoc.SendControl(env)
	}
}

// SystemMessageAcker is the receiver side of spec §4.9: tracks the
// highest contiguous sequence delivered to the dispatcher, buffers
// out-of-order arrivals until the gap fills, and acks cumulatively.
type SystemMessageAcker struct {
	assoc *Association

	mu            sync.Mutex
	lastDelivered uint64
	pending       map[uint64]types.SystemMessageEnvelope
}

func NewSystemMessageAcker(assoc *Association) *SystemMessageAcker {
	return &SystemMessageAcker{assoc: assoc, pending: make(map[uint64]types.SystemMessageEnvelope)}
}

// Receive handles one inbound SystemMessageEnvelope, delivering it (and
// any now-contiguous buffered successors) to deliver, then sending a
// cumulative ack.
func (a *SystemMessageAcker) Receive(env types.SystemMessageEnvelope, deliver func(interface{})) {
	a.mu.Lock()
	if env.Seq <= a.lastDelivered {
		ack := a.lastDelivered
		a.mu.Unlock()
		a.assoc.SendControl(types.SystemMessageAck{Seq: ack})
		return
	}
	a.pending[env.Seq] = env

	for {
		next, ok := a.pending[a.lastDelivered+1]
		if !ok {
			break
		}
		delete(a.pending, a.lastDelivered+1)
		a.lastDelivered++
		a.mu.Unlock()
		deliver(next.Message)
		a.mu.Lock()
	}
	ack := a.lastDelivered
	a.mu.Unlock()

	a.assoc.SendControl(types.SystemMessageAck{Seq: ack})
}
