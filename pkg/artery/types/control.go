package types

// ControlMessage is the sealed set of control-stream message kinds
// (spec §6). Only SystemMessageEnvelope is delivered reliably and in order,
// through SystemMessageDelivery/SystemMessageAcker; every other kind,
// including Handshake{Req,Rsp}, Quarantined and the acks, is sent once on
// the control stream with no retransmission.
type ControlMessage interface {
	controlMessage()
}

// HandshakeReq is emitted by the outbound side on first send to a peer
// and periodically until a HandshakeRsp is observed.
type HandshakeReq struct {
	From    UniqueAddress
	To      Address
	Version string
}

func (HandshakeReq) controlMessage() {}

// HandshakeRsp answers a HandshakeReq once the recipient has registered
// the requester's UID.
type HandshakeRsp struct {
	From    UniqueAddress
	Version string
}

func (HandshakeRsp) controlMessage() {}

// Quarantined notifies To that From has quarantined it. When To is the
// receiving node itself, it publishes ThisActorSystemQuarantined.
type Quarantined struct {
	From UniqueAddress
	To   UniqueAddress
}

func (Quarantined) controlMessage() {}

// ActorRefCompressionAdvertisement tells the receiver "use ID for Ref from
// now on when sending to me".
type ActorRefCompressionAdvertisement struct {
	From UniqueAddress
	Ref  string
	ID   int32
}

func (ActorRefCompressionAdvertisement) controlMessage() {}

// ClassManifestCompressionAdvertisement is the manifest-string analog of
// ActorRefCompressionAdvertisement.
type ClassManifestCompressionAdvertisement struct {
	From     UniqueAddress
	Manifest string
	ID       int32
}

func (ClassManifestCompressionAdvertisement) controlMessage() {}

// SystemMessageEnvelope wraps one reliably-delivered system message with
// its per-association sequence number.
type SystemMessageEnvelope struct {
	Seq     uint64
	From    UniqueAddress
	Message interface{}
}

func (SystemMessageEnvelope) controlMessage() {}

// SystemMessageAck is the receiver's cumulative acknowledgement of the
// highest contiguous sequence delivered to the dispatcher.
type SystemMessageAck struct {
	Seq uint64
}

func (SystemMessageAck) controlMessage() {}

// SystemMessageNack is a permitted optimization hint; correctness must
// never depend on it arriving or being acted on.
type SystemMessageNack struct {
	Expected uint64
}

func (SystemMessageNack) controlMessage() {}
