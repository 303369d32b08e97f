package core

import (
	"encoding/json"

	"github.com/jabolina/go-artery/pkg/artery/pool"
	"github.com/jabolina/go-artery/pkg/artery/types"
)

// InboundStage implements Stage for one of the three per-transport
// inbound pipelines: decoder → quarantine check → (control stream)
// handshake/sysmsg handling or junction fan-out, (other streams)
// dispatcher. Frames are not held back while a handshake is pending.
type InboundStage struct {
	stream   types.StreamID
	local    types.UniqueAddress
	version  string
	registry *AssociationRegistry
	decoder  *Decoder
	quarantine *QuarantineCheck
	junction   *ControlJunction
	dispatcher types.Dispatcher
	log        types.Logger
	events     *types.EventBus
	envelopes  *pool.ObjectPool[*types.InboundEnvelope]
}

func NewInboundStage(stream types.StreamID, local types.UniqueAddress, version string, registry *AssociationRegistry, quarantine *QuarantineCheck, junction *ControlJunction, dispatcher types.Dispatcher, log types.Logger, events *types.EventBus, envelopes *pool.ObjectPool[*types.InboundEnvelope]) *InboundStage {
	return &InboundStage{
		stream:     stream,
		local:      local,
		version:    version,
		registry:   registry,
		decoder:    NewDecoder(),
		quarantine: quarantine,
		junction:   junction,
		dispatcher: dispatcher,
		log:        log,
		events:     events,
		envelopes:  envelopes,
	}
}

// OnPush decodes one frame and routes it; decode/compression errors are
// dropped and logged rather than failing the pipeline (spec §7).
func (s *InboundStage) OnPush(frame []byte) error {
	decoded, err := s.decoder.Decode(frame, s.lookupCompression)
	if err != nil {
		s.log.Warnf("artery: dropping malformed frame on %s: %v", s.stream, err)
		s.events.Publish(types.Dropped{Reason: "decode-error"})
		return nil
	}

	assoc := s.registry.ByUID(decoded.UID)
	if !s.quarantine.Admit(assoc, decoded.UID) {
		return nil
	}

	if s.stream == types.StreamControl {
		s.handleControl(decoded)
		return nil
	}
	s.dispatch(decoded)
	return nil
}

func (s *InboundStage) lookupCompression(uid types.UID) InboundCompression {
	assoc := s.registry.ByUID(uid)
	if assoc == nil {
		return passthroughCompression
	}
	return assoc.InboundCompression()
}

func (s *InboundStage) handleControl(decoded *DecodedFrame) {
	msg, err := decodeControl(decoded.Payload)
	if err != nil {
		s.log.Warnf("artery: dropping malformed control message: %v", err)
		s.events.Publish(types.Dropped{Reason: "control-decode-error"})
		return
	}

	switch m := msg.(type) {
	case types.HandshakeReq:
		if !CompatibleProtocol(s.version, m.Version) {
			s.log.Warnf("artery: dropping handshake from %s with incompatible protocol version %q", m.From, m.Version)
			s.events.Publish(types.Dropped{Reason: "incompatible-protocol-version"})
			return
		}
		HandleHandshakeReq(s.local, s.version, m, s.registry)
	case types.HandshakeRsp:
		HandleHandshakeRsp(m, s.registry)
	case types.SystemMessageEnvelope:
		assoc := s.registry.Association(m.From.Address)
		assoc.SystemMessageAcker().Receive(m, func(payload interface{}) {
			s.deliver(m.From.UID, payload)
		})
	case types.SystemMessageAck:
		assoc := s.registry.ByUID(decoded.UID)
		if assoc != nil {
			assoc.SystemMessageDelivery().Ack(m.Seq)
		}
	case types.SystemMessageNack:
		// optimization hint only; correctness never depends on acting on it.
	default:
		s.junction.Notify(msg)
	}
}

func (s *InboundStage) dispatch(decoded *DecodedFrame) {
	var payload interface{}
	if err := json.Unmarshal(decoded.Payload, &payload); err != nil {
		s.log.Warnf("artery: dropping frame with unparseable payload on %s: %v", s.stream, err)
		s.events.Publish(types.Dropped{Reason: "payload-decode-error"})
		return
	}
	s.deliver(decoded.UID, payload)
}

func (s *InboundStage) deliver(origin types.UID, payload interface{}) {
	env := s.envelopes.Acquire()
	env.OriginUID = origin
	env.Message = payload
	s.dispatcher.Dispatch(env)
	if env.Reusable() {
		s.envelopes.Release(env)
	}
}

func (s *InboundStage) OnComplete() {}

func (s *InboundStage) OnFailure(err error) {
	s.log.Errorf("artery: inbound pipeline %s failed: %v", s.stream, err)
}

var _ Stage = (*InboundStage)(nil)
