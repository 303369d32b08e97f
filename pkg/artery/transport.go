// Package artery is the remote messaging transport core: association
// lifecycle, handshake, quarantine, and the three-stream per-peer
// pipeline over an unreliable UDP-based media driver.
package artery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jabolina/go-artery/pkg/artery/core"
	"github.com/jabolina/go-artery/pkg/artery/media"
	"github.com/jabolina/go-artery/pkg/artery/pool"
	"github.com/jabolina/go-artery/pkg/artery/types"
	"github.com/jabolina/go-artery/pkg/artery/wildcard"
)

// Transport is the lifecycle owner of spec §4.11: media driver, local
// UniqueAddress, the three inbound pipelines, and their restart
// supervision.
type Transport struct {
	config *types.Config
	log    types.Logger
	events *types.EventBus

	local    types.UniqueAddress
	driver   media.Driver
	registry *core.AssociationRegistry
	matcher  *wildcard.Matcher

	outboundPool *pool.ObjectPool[*types.OutboundEnvelope]
	inboundPool  *pool.ObjectPool[*types.InboundEnvelope]

	dispatcher types.Dispatcher

	restart *core.RestartCounter

	ctx    context.Context
	cancel context.CancelFunc

	// newDriver constructs the media driver for localAddr; overridden in
	// tests to substitute an in-memory media.Driver for the real
	// relt-backed one.
	newDriver func(localAddr types.Address) media.Driver

	mu        sync.Mutex
	shutdown  bool
	pipelines []*pipelineHandle
	errPoll   *time.Ticker
}

type pipelineHandle struct {
	stream types.StreamID
	stage  *core.InboundStage
	source media.Subscription
}

// NewTransport constructs a Transport for the given local hostname/port
// and dispatcher; the media driver and pipelines are not started until
// Start is called.
func NewTransport(cfg *types.Config, log types.Logger, dispatcher types.Dispatcher) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		config:     cfg,
		log:        log,
		events:     types.NewEventBus(),
		dispatcher: dispatcher,
		restart:    core.NewRestartCounter(cfg.RestartTimeout, cfg.MaxRestarts),
		ctx:        ctx,
		cancel:     cancel,
	}
	t.newDriver = func(localAddr types.Address) media.Driver {
		return media.NewReltDriver(localAddr, log)
	}
	return t, nil
}

// Events exposes the transport's lifecycle event bus.
func (t *Transport) Events() *types.EventBus { return t.events }

// LocalAddress is only valid once Start has returned successfully.
func (t *Transport) LocalAddress() types.UniqueAddress { return t.local }

// Start brings up the media driver, resolves the local address, and
// launches the control/ordinary (/large, if configured) inbound pipelines
// under restart supervision (spec §4.11).
func (t *Transport) Start() error {
	port, err := resolvePort(t.config.ArteryHostname, t.config.ArteryPort)
	if err != nil {
		return fmt.Errorf("artery: resolving local port: %w", err)
	}

	localAddr := types.Address{
		Protocol: "artery",
		System:   t.config.AeronDirectoryName,
		Host:     t.config.ArteryHostname,
		Port:     port,
	}
	t.local = types.UniqueAddress{Address: localAddr, UID: newProcessUID()}

	t.driver = t.newDriver(localAddr)
	if err := t.driver.Start(t.ctx); err != nil {
		return fmt.Errorf("artery: starting media driver: %w", err)
	}

	t.matcher = wildcard.New(t.config.LargeMessageDestinations...)
	t.outboundPool = pool.NewObjectPool(pool.OutboundPoolCapacity, newOutboundEnvelope)
	t.inboundPool = pool.NewObjectPool(pool.InboundPoolCapacity, newInboundEnvelope)
	t.registry = core.NewAssociationRegistry(t.local, t.config, t.log, t.events, t.driver, t.matcher, t.outboundPool)

	quarantine := core.NewQuarantineCheck(t.events)
	junction := core.NewControlJunction()
	junction.Attach(core.NewQuarantineObserver(t.local, t.registry, t.events))
	junction.Attach(core.NewCompressionObserver(t.registry, t.events))

	streams := []types.StreamID{types.StreamControl, types.StreamOrdinary}
	if len(t.config.LargeMessageDestinations) > 0 {
		streams = append(streams, types.StreamLarge)
	}

	for _, stream := range streams {
		if err := t.startInboundPipeline(stream, quarantine, junction); err != nil {
			return fmt.Errorf("artery: starting %s pipeline: %w", stream, err)
		}
	}

	t.mu.Lock()
	t.errPoll = time.NewTicker(t.config.ErrorLogPollInterval)
	t.mu.Unlock()
	core.InvokerInstance().Spawn(t.pollErrors)

	t.log.Infof("artery: transport started at %s", t.local)
	return nil
}

func (t *Transport) startInboundPipeline(stream types.StreamID, quarantine *core.QuarantineCheck, junction *core.ControlJunction) error {
	sub, err := t.driver.Subscription(stream)
	if err != nil {
		return err
	}
	stage := core.NewInboundStage(stream, t.local, t.config.ProtocolVersion, t.registry, quarantine, junction, t.dispatcher, t.log, t.events, t.inboundPool)
	handle := &pipelineHandle{stream: stream, stage: stage, source: sub}

	t.mu.Lock()
	t.pipelines = append(t.pipelines, handle)
	t.mu.Unlock()

	core.InvokerInstance().Spawn(func() { t.runPipeline(handle) })
	return nil
}

// runPipeline drives one inbound pipeline incarnation after another,
// applying the restart budget of spec §4.12 between failures.
func (t *Transport) runPipeline(h *pipelineHandle) {
	for {
		kill := core.NewKillSwitch()
		go func() {
			select {
			case <-t.ctx.Done():
				kill.Pull()
			case <-kill.Done():
			}
		}()

		pl := core.NewPipeline(h.stage, t.adaptFrames(h.source), kill)
		pl.Run(t.ctx)
		kill.Pull()

		if t.isShutdown() {
			return
		}
		if err := pl.Err(); err == nil {
			return
		}
		if !t.restart.Restart() {
			t.log.Errorf("artery: %s pipeline exceeded restart budget, terminating transport", h.stream)
			t.terminate()
			return
		}
		t.log.Warnf("artery: restarting %s pipeline", h.stream)
	}
}

// adaptFrames narrows a media.Subscription's InboundFrame channel to the
// raw byte-frame channel core.Pipeline drives over.
func (t *Transport) adaptFrames(sub media.Subscription) <-chan []byte {
	out := make(chan []byte, 256)
	core.InvokerInstance().Spawn(func() {
		defer close(out)
		for {
			select {
			case <-t.ctx.Done():
				return
			case frame, ok := <-sub.Frames():
				if !ok {
					return
				}
				select {
				case out <- frame.Data:
				case <-t.ctx.Done():
					return
				}
			}
		}
	})
	return out
}

func (t *Transport) pollErrors() {
	select {
	case <-time.After(t.config.ErrorLogPollFirstDelay):
	case <-t.ctx.Done():
		return
	}
	t.mu.Lock()
	ticker := t.errPoll
	t.mu.Unlock()
	if ticker == nil {
		return
	}
	t.drainErrors()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.drainErrors()
		}
	}
}

func (t *Transport) drainErrors() {
	for {
		select {
		case err := <-t.driver.Errors():
			t.log.Errorf("artery: media driver error: %v", err)
		default:
			return
		}
	}
}

func (t *Transport) isShutdown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shutdown
}

// terminate shuts this Transport down after restart budget exhaustion;
// wider actor-system termination is the embedding collaborator's concern
// (spec §1 out-of-scope boundary).
func (t *Transport) terminate() {
	t.Shutdown()
}

// Shutdown is idempotent (spec §4.11): pulls every association's kill
// switch, stops the error poller, and stops the media driver.
func (t *Transport) Shutdown() {
	t.mu.Lock()
	if t.shutdown {
		t.mu.Unlock()
		return
	}
	t.shutdown = true
	if t.errPoll != nil {
		t.errPoll.Stop()
	}
	t.mu.Unlock()

	t.cancel()
	if t.registry != nil {
		for _, assoc := range t.registry.All() {
			assoc.Shutdown()
		}
	}
	if t.driver != nil {
		if err := t.driver.Stop(); err != nil {
			t.log.Warnf("artery: stopping media driver: %v", err)
		}
	}
	t.log.Infof("artery: transport %s shut down", t.local)
}

// Send is the user-facing entry point: look up (creating if needed) the
// Association for recipientAddr and enqueue msg onto its ordinary/large
// outbound sink.
func (t *Transport) Send(msg interface{}, sender, recipient types.Recipient, recipientAddr types.Address) {
	t.registry.Association(recipientAddr).Send(msg, sender, recipient)
}

// DeliverSystemMessage hands msg to the reliable delivery layer for the
// association identified by recipientAddr (spec §4.9).
func (t *Transport) DeliverSystemMessage(msg interface{}, recipientAddr types.Address) error {
	return t.registry.Association(recipientAddr).SystemMessageDelivery().Deliver(msg)
}

// Quarantine quarantines the association for addr, optionally scoped to a
// specific peer UID, and notifies the peer via a Quarantined control
// message.
func (t *Transport) Quarantine(addr types.Address, uid *types.UID, reason string) {
	assoc := t.registry.Association(addr)
	if !assoc.Quarantine(reason, uid) {
		return
	}
	peerUID := types.UID(0)
	if uid != nil {
		peerUID = *uid
	}
	assoc.SendControl(types.Quarantined{
		From: t.local,
		To:   types.UniqueAddress{Address: addr, UID: peerUID},
	})
}

func resolvePort(host string, configured int) (uint16, error) {
	if configured != 0 {
		return uint16(configured), nil
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(host), Port: 0})
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return uint16(conn.LocalAddr().(*net.UDPAddr).Port), nil
}

func newProcessUID() types.UID {
	id := uuid.New()
	return types.UID(uint64(id[0])<<56 | uint64(id[1])<<48 | uint64(id[2])<<40 | uint64(id[3])<<32 |
		uint64(id[4])<<24 | uint64(id[5])<<16 | uint64(id[6])<<8 | uint64(id[7]))
}

func newOutboundEnvelope() *types.OutboundEnvelope {
	e := &types.OutboundEnvelope{}
	e.MarkPooled()
	return e
}

func newInboundEnvelope() *types.InboundEnvelope {
	e := &types.InboundEnvelope{}
	e.MarkPooled()
	return e
}
