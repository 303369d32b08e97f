package types

// Recipient is the out-of-scope remote-actor-ref collaborator; the core
// only needs its path for wildcard classification and addressing.
type Recipient interface {
	Path() string
}

// Dispatcher is the out-of-scope actor dispatcher that ultimately
// consumes decoded inbound envelopes.
type Dispatcher interface {
	Dispatch(env *InboundEnvelope)
}

// OutboundEnvelope is a reusable wrapper carrying one outbound send.
// Reusable instances must be released back to their ObjectPool after the
// terminal sink consumes them.
type OutboundEnvelope struct {
	Sender        Recipient
	Recipient     Recipient
	RecipientAddr Address
	Message       interface{}
	Serializer    int32

	pooled bool
}

func (e *OutboundEnvelope) Reset() {
	pooled := e.pooled
	*e = OutboundEnvelope{pooled: pooled}
}

// Reusable reports whether this instance came from a pool and must be
// released; non-reusable instances are ignored by the terminal sink.
func (e *OutboundEnvelope) Reusable() bool { return e.pooled }

// MarkPooled is called once by the constructor function passed to
// NewObjectPool so instances it mints know to be released rather than
// dropped for GC.
func (e *OutboundEnvelope) MarkPooled() { e.pooled = true }

// InboundEnvelope is a reusable wrapper carrying one decoded inbound
// message on its way to the dispatcher.
type InboundEnvelope struct {
	Sender     Recipient
	Recipient  Recipient
	OriginUID  UID
	Message    interface{}
	Serializer int32

	pooled bool
}

func (e *InboundEnvelope) Reset() {
	pooled := e.pooled
	*e = InboundEnvelope{pooled: pooled}
}

func (e *InboundEnvelope) Reusable() bool { return e.pooled }

func (e *InboundEnvelope) MarkPooled() { e.pooled = true }
